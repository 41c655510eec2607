package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/model"
)

// MutationDoneMsg reports the outcome of a mutation's remote call. By the
// time it arrives the feed has already confirmed or rolled back.
type MutationDoneMsg struct {
	Feed     model.FeedKind
	Mutation feed.MutationKind
	Err      error
}

// StatusMsg sets the transient status line.
type StatusMsg struct {
	Text  string
	Error bool
}

// Mutate applies m to f right away and returns a command performing the
// remote call. The caller re-renders from f.Snapshot() immediately to show
// the optimistic state.
func Mutate(f *feed.Feed, m feed.Mutation) (tea.Cmd, error) {
	commit, err := f.Optimistic(m)
	if err != nil {
		return nil, err
	}
	kind := f.Kind()
	return func() tea.Msg {
		// No deadline here: the API client bounds each attempt itself and
		// may wait out a Retry-After between attempts.
		return MutationDoneMsg{Feed: kind, Mutation: m.Kind, Err: commit(context.Background())}
	}, nil
}

// ErrorStatus returns a command that shows err on the status line.
func ErrorStatus(err error) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Text: err.Error(), Error: true}
	}
}

// Status returns a command that shows an informational status line.
func Status(format string, args ...any) tea.Cmd {
	text := fmt.Sprintf(format, args...)
	return func() tea.Msg {
		return StatusMsg{Text: text}
	}
}
