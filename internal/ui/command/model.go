package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh   Name = "refresh"
	MarkAll   Name = "mark-all"
	DeleteAll Name = "delete-all"
	Interval  Name = "interval"
	Login     Name = "login"
	Logout    Name = "logout"
	Quit      Name = "quit"
)

var known = []Name{Refresh, MarkAll, DeleteAll, Interval, Login, Logout, Quit}

// Usage documents one command for the help overlay.
type Usage struct {
	Name    Name
	Args    string
	Summary string
}

// Commands lists every palette command in display order.
func Commands() []Usage {
	return []Usage{
		{Refresh, "", "poll both feeds now"},
		{MarkAll, "", "mark the active feed read"},
		{DeleteAll, "", "delete everything in the active feed"},
		{Interval, "<seconds>", "change the poll interval"},
		{Login, "", "sign in with another token"},
		{Logout, "", "forget the stored token"},
		{Quit, "", "exit"},
	}
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name Name
	Args []string
}

// CancelMsg is emitted when the palette is dismissed.
type CancelMsg struct{}

// Parse splits a palette line into a command and its arguments. Unique
// prefixes are accepted, so "ref" runs refresh.
func Parse(line string) (CommandMsg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}
	word := strings.ToLower(fields[0])
	if word == "q" {
		word = string(Quit)
	}

	var match []Name
	for _, n := range known {
		if string(n) == word {
			match = []Name{n}
			break
		}
		if strings.HasPrefix(string(n), word) {
			match = append(match, n)
		}
	}
	switch len(match) {
	case 0:
		return CommandMsg{}, fmt.Errorf("unknown command %q", fields[0])
	case 1:
		return CommandMsg{Name: match[0], Args: fields[1:]}, nil
	default:
		return CommandMsg{}, fmt.Errorf("ambiguous command %q", fields[0])
	}
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh, mark-all, delete-all, interval 30s, logout..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			cmd, err := Parse(line)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.input.Reset()
			return m, func() tea.Msg { return cmd }
		case "esc":
			m.err = nil
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	parts := []string{title, m.input.View()}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()))
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
