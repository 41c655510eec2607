package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want CommandMsg
	}{
		{"refresh", CommandMsg{Name: Refresh, Args: []string{}}},
		{"ref", CommandMsg{Name: Refresh, Args: []string{}}},
		{"  MARK-ALL ", CommandMsg{Name: MarkAll, Args: []string{}}},
		{"interval 30s", CommandMsg{Name: Interval, Args: []string{"30s"}}},
		{"q", CommandMsg{Name: Quit, Args: []string{}}},
		{"logo", CommandMsg{Name: Logout, Args: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("frobnicate")
	assert.ErrorContains(t, err, "unknown")

	// "lo" matches both login and logout.
	_, err = Parse("lo")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestEnterEmitsParsedCommand(t *testing.T) {
	m := New(80, 24)
	m.input.SetValue("delete-all")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: DeleteAll, Args: []string{}}, cmd())
	assert.Empty(t, m.input.Value())
}

func TestEnterWithUnknownCommandKeepsInput(t *testing.T) {
	m := New(80, 24)
	m.input.SetValue("nope")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, "nope", m.input.Value())
	assert.Contains(t, m.View(), "unknown command")
}
