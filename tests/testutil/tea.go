package testutil

import tea "github.com/charmbracelet/bubbletea"

// Drain runs cmd and every command batched inside it, returning the
// resulting messages in order. Commands that tick or block must not be
// passed here.
func Drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, Drain(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}
