package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "empty", token: "", want: ""},
		{name: "short", token: "abc", want: "***"},
		{name: "long", token: "abcdef123456xyz", want: "abc...xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskToken(tt.token))
		})
	}
}

func TestOrNopNeverNil(t *testing.T) {
	l := OrNop(nil)
	assert.NotNil(t, l)
	l.Infow("discarded", "k", "v")
}
