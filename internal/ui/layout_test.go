package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/memberdesk/internal/model"
)

func TestContentHeight(t *testing.T) {
	assert.Equal(t, 20, NewLayout(80, 24).ContentHeight())
	assert.Zero(t, NewLayout(80, 2).ContentHeight())
}

func TestUnreadLabel(t *testing.T) {
	assert.Equal(t, "7", UnreadLabel(7))
	assert.Equal(t, "99+", UnreadLabel(150))
}

func TestRenderTabsShowsBadgesOnlyForUnread(t *testing.T) {
	l := NewLayout(80, 24)
	out := l.RenderTabs([]Tab{
		{Feed: model.FeedNotifications, Title: "Notifications", Unread: 3},
		{Feed: model.FeedMessages, Title: "Messages"},
	}, model.FeedMessages)

	assert.Contains(t, out, "1 Notifications")
	assert.Contains(t, out, "2 Messages")
	assert.Contains(t, out, "3")
	assert.LessOrEqual(t, lipgloss.Width(out), 80)
}

func TestRenderStatusBarFillsWidth(t *testing.T) {
	l := NewLayout(60, 24)
	assert.Equal(t, 60, lipgloss.Width(l.RenderStatusBar("q quit")))
}

func TestRenderWithFrameKeepsHeight(t *testing.T) {
	l := NewLayout(40, 10)
	tall := ""
	for range 30 {
		tall += "line\n"
	}
	out := l.RenderWithFrame("header", "tabs", tall, "", "status")
	assert.Equal(t, 10, lipgloss.Height(out))
}
