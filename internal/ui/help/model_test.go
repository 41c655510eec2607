package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/memberdesk/internal/keys"
	"github.com/nhle/memberdesk/internal/ui/command"
)

func TestViewListsEveryCommand(t *testing.T) {
	view := New(keys.DefaultKeyMap(), 100, 40).View()

	for _, c := range command.Commands() {
		assert.Contains(t, view, string(c.Name))
	}
	assert.Contains(t, view, "interval <seconds>")
}

func TestUsageLine(t *testing.T) {
	assert.Equal(t, "refresh", usageLine(command.Usage{Name: command.Refresh}))
	assert.Equal(t, "interval <seconds>", usageLine(command.Usage{Name: command.Interval, Args: "<seconds>"}))
}

func TestTinyWindowDoesNotPanic(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 2, 2)
	assert.NotPanics(t, func() { _ = m.View() })
}
