package notifications

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	model.FeedItem

	// Pending is set while a mutation touching the item awaits the server.
	Pending bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Body }

// Title returns the notification text.
func (i Item) Title() string { return i.Body }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{string(i.Category), relativeTime(i.CreatedAt)}
	if link := i.Link(); link != "" {
		parts = append(parts, link)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	marker := "●"
	if it.Read {
		marker = " "
	}

	badge := theme.CategoryStyle(it.Category).Render(categoryLabel(it.Category))

	link := ""
	if it.Link() != "" {
		link = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render(" ↗")
	}

	pending := ""
	if it.Pending {
		pending = theme.PendingStyle.Render(" syncing…")
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(it.CreatedAt))

	line := fmt.Sprintf("%s %s %s%s%s  %s", marker, badge, it.Body, link, pending, timeStr)

	if it.Read {
		line = theme.ReadItemStyle.Render(line)
	}
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// categoryLabel returns a fixed-width label for a notification category.
func categoryLabel(c model.Category) string {
	switch c {
	case model.CategorySuccess:
		return "OK  "
	case model.CategoryWarning:
		return "WARN"
	case model.CategoryError:
		return "ERR "
	default:
		return "INFO"
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
