package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
)

// Layout manages the terminal layout dimensions: header, tab row, the
// active panel, the alert strip and the status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TabsHeight      int
	AlertHeight     int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// The header, tab row, alert strip and status bar are one line each.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TabsHeight:      1,
		AlertHeight:     1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the active panel.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.TabsHeight - l.AlertHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// Tab is one entry of the panel switcher.
type Tab struct {
	Feed   model.FeedKind
	Title  string
	Unread int
}

// RenderHeader renders the top header bar with a title and sync status.
func (l Layout) RenderHeader(title string, syncStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(syncStatus)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderTabs renders the panel switcher with an unread badge per feed.
func (l Layout) RenderTabs(tabs []Tab, active model.FeedKind) string {
	parts := make([]string, 0, len(tabs))
	for i, t := range tabs {
		label := fmt.Sprintf("%d %s", i+1, t.Title)
		style := theme.TabStyle
		if t.Feed == active {
			style = theme.ActiveTabStyle
		}
		rendered := style.Render(label)
		if t.Unread > 0 {
			rendered += theme.BadgeStyle.Render(UnreadLabel(t.Unread))
		}
		parts = append(parts, rendered)
	}
	return lipgloss.NewStyle().
		MaxWidth(l.Width).
		Render(strings.Join(parts, "  "))
}

// UnreadLabel formats an unread count for a badge.
func UnreadLabel(n int) string {
	if n > 99 {
		return "99+"
	}
	return fmt.Sprintf("%d", n)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, tabs, content area, alert strip and status bar. The content
// is clipped to ContentHeight so the frame never scrolls.
func (l Layout) RenderWithFrame(
	header string,
	tabs string,
	content string,
	alert string,
	statusBar string,
) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	alert = lipgloss.NewStyle().
		Height(l.AlertHeight).
		MaxHeight(l.AlertHeight).
		Render(alert)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		tabs,
		content,
		alert,
		statusBar,
	)
}
