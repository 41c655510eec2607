package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
)

// openLoginMsg and logoutMsg defer palette actions to the next update so
// they run against the model that closed the palette.
type (
	openLoginMsg struct{}
	logoutMsg    struct{}
)

// syncStatus returns a short string describing the combined sync state.
func (m Model) syncStatus() string {
	if m.authErrorMessage != "" {
		return "⚠ token rejected"
	}
	if len(m.pollErr) > 0 {
		return "⚠ unreachable: " + joinFeedNames(m.pollErr)
	}
	if !m.live() {
		return "signed out"
	}
	if m.lastSync.IsZero() {
		return "connecting..."
	}
	return fmt.Sprintf("synced %s · every %s",
		m.lastSync.Local().Format("15:04:05"), m.scheduler.Interval())
}

// joinFeedNames lists the failing feeds in a stable order.
func joinFeedNames(errs map[model.FeedKind]error) string {
	names := make([]string, 0, len(errs))
	for kind := range errs {
		names = append(names, string(kind))
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// keyHints returns keyboard shortcut hints or the current status for the
// status bar.
func (m Model) keyHints() string {
	if m.status != "" {
		if m.statusErr {
			return theme.ErrorStyle.Render(m.status)
		}
		return m.status
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewLogin:
		return "tab next field | enter submit | esc cancel"
	}

	// Show auth error prominently when present.
	if m.authErrorMessage != "" {
		return theme.ErrorStyle.Render(m.authErrorMessage)
	}

	switch m.currentView {
	case ViewMessages:
		if m.messages.Composing() {
			return "enter send | esc stop writing"
		}
		return "c compose | g older | M mark seen | D delete all | tab notifications | ? help"
	default:
		return "m read | d delete | M read all | D delete all | enter open | tab messages | ? help"
	}
}
