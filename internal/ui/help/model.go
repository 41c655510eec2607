// Package help renders the keyboard and command palette reference.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/keys"
	"github.com/nhle/memberdesk/internal/theme"
	"github.com/nhle/memberdesk/internal/ui/command"
)

// Model is the help overlay.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates the overlay for k.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.ShowAll = true
	m := Model{keys: k, help: h}
	m.SetSize(width, height)
	return m
}

// Update is a no-op; the app closes the overlay.
func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the overlay.
func (m Model) View() string {
	section := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	content := lipgloss.JoinVertical(lipgloss.Left,
		section.Render("Keys"),
		m.help.View(m.keys),
		"",
		section.Render("Commands (press :)"),
		commandTable(),
		"",
		theme.HelpStyle.Render(
			"Feeds refresh in the background. Scroll to the top of the\n"+
				"messages panel, or press g, to load older history."),
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

func commandTable() string {
	cmds := command.Commands()
	width := 0
	for _, c := range cmds {
		width = max(width, len(usageLine(c)))
	}
	var b strings.Builder
	for i, c := range cmds {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-*s  %s", width, usageLine(c), theme.HelpStyle.Render(c.Summary))
	}
	return b.String()
}

func usageLine(c command.Usage) string {
	if c.Args == "" {
		return string(c.Name)
	}
	return string(c.Name) + " " + c.Args
}

// SetSize updates the overlay dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = max(width-8, 0)
}
