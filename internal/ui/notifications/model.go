// Package notifications is the notification panel: a newest-first list
// with per-item and bulk read/delete actions applied optimistically.
package notifications

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/keys"
	"github.com/nhle/memberdesk/internal/theme"
	"github.com/nhle/memberdesk/internal/ui"
)

// OpenLinkMsg asks the app to follow a notification's deep link.
type OpenLinkMsg struct {
	ItemID int64
	Link   string
}

// Model is the notification panel.
type Model struct {
	list   list.Model
	feed   *feed.Feed
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates the panel for f.
func New(f *feed.Feed, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:   l,
		feed:   f,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Sync rebuilds the list from the feed's current snapshot, keeping the
// cursor on the same notification when it still exists.
func (m *Model) Sync() tea.Cmd {
	var selected int64
	if it, ok := m.list.SelectedItem().(Item); ok {
		selected = it.ID
	}

	snap := m.feed.Snapshot().Items()
	slices.Reverse(snap)

	items := make([]list.Item, len(snap))
	cursor := 0
	for i, it := range snap {
		items[i] = Item{FeedItem: it, Pending: m.feed.Pending(it.ID)}
		if it.ID == selected {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(min(cursor, len(items)-1))
	}
	return cmd
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (Item, bool) {
	it, ok := m.list.SelectedItem().(Item)
	return it, ok
}

// Update handles messages for the notification panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ui.MutationDoneMsg:
		return m, m.Sync()

	case tea.KeyMsg:
		if cmd, handled := m.handleKeys(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.MarkRead):
		it, ok := m.Selected()
		if !ok || it.Read {
			return nil, true
		}
		return m.mutate(feed.Mutation{Kind: feed.MutationMarkRead, IDs: []int64{it.ID}}), true

	case key.Matches(msg, m.keys.Delete):
		it, ok := m.Selected()
		if !ok {
			return nil, true
		}
		return m.mutate(feed.Mutation{Kind: feed.MutationDelete, IDs: []int64{it.ID}}), true

	case key.Matches(msg, m.keys.MarkAll):
		return m.MarkAll(), true

	case key.Matches(msg, m.keys.DeleteAll):
		return m.DeleteAll(), true

	case key.Matches(msg, m.keys.Open):
		it, ok := m.Selected()
		if !ok || it.Link() == "" {
			return nil, true
		}
		open := func() tea.Msg { return OpenLinkMsg{ItemID: it.ID, Link: it.Link()} }
		if it.Read {
			return open, true
		}
		return tea.Batch(open, m.mutate(feed.Mutation{
			Kind: feed.MutationMarkRead,
			IDs:  []int64{it.ID},
		})), true
	}
	return nil, false
}

// MarkAll marks every notification read.
func (m *Model) MarkAll() tea.Cmd {
	return m.mutate(feed.Mutation{Kind: feed.MutationMarkAllRead})
}

// DeleteAll removes every notification.
func (m *Model) DeleteAll() tea.Cmd {
	return m.mutate(feed.Mutation{Kind: feed.MutationDeleteAll})
}

func (m *Model) mutate(mutation feed.Mutation) tea.Cmd {
	commit, err := ui.Mutate(m.feed, mutation)
	if err != nil {
		return ui.ErrorStatus(err)
	}
	return tea.Batch(m.Sync(), commit)
}

// View renders the notification panel.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		text := "No notifications."
		if !m.feed.Loaded() {
			text = "Loading notifications..."
		}
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(text)
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
