// Package alerts shows the transient notices raised for newly arrived
// feed items. Alerts queue up and expire after a fixed TTL; the newest
// one is shown.
package alerts

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
)

// expireMsg asks the queue to drop alerts past their TTL.
type expireMsg struct{ at time.Time }

// Model is the alert queue.
type Model struct {
	alerts []model.Alert
	ttl    time.Duration
	width  int
}

// New creates an empty queue whose alerts live for ttl.
func New(ttl time.Duration, width int) Model {
	return Model{ttl: ttl, width: width}
}

// Push queues alerts and schedules their expiry.
func (m Model) Push(alerts ...model.Alert) (Model, tea.Cmd) {
	if len(alerts) == 0 {
		return m, nil
	}
	m.alerts = append(m.alerts, alerts...)
	return m, tea.Tick(m.ttl, func(t time.Time) tea.Msg { return expireMsg{at: t} })
}

// Update drops expired alerts.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if e, ok := msg.(expireMsg); ok {
		m.expire(e.at)
	}
	return m, nil
}

func (m *Model) expire(now time.Time) {
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.Expired(now, m.ttl) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
}

// Dismiss clears all alerts.
func (m *Model) Dismiss() {
	m.alerts = nil
}

// Len returns the number of queued alerts.
func (m Model) Len() int {
	return len(m.alerts)
}

// SetTTL changes the lifetime of alerts queued from now on.
func (m *Model) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		m.ttl = ttl
	}
}

// SetWidth updates the render width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// View renders the newest alert on one line, followed by the number of
// older alerts still showing, or "" when there are none.
func (m Model) View() string {
	if len(m.alerts) == 0 {
		return ""
	}

	a := m.alerts[len(m.alerts)-1]
	text := feedLabel(a.Feed) + a.Message
	if a.Link != "" {
		text += "  → " + a.Link
	}
	if extra := len(m.alerts) - 1; extra > 0 {
		text += theme.HelpStyle.Render(fmt.Sprintf("  +%d more", extra))
	}
	return theme.AlertStyle(a.Category).
		Width(m.width).
		MaxWidth(m.width).
		MaxHeight(1).
		Render(text)
}

func feedLabel(k model.FeedKind) string {
	if k == model.FeedMessages {
		return "✉ "
	}
	return "🔔 "
}
