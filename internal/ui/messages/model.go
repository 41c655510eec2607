// Package messages is the direct-message panel: a chronological viewport
// that loads older history when scrolled to the top, and a composer.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/keys"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
	"github.com/nhle/memberdesk/internal/ui"
)

// footerHeight is the status line plus the composer line.
const footerHeight = 2

// PageLoadedMsg carries the outcome of a history page load.
type PageLoadedMsg struct {
	Result feed.PageResult
	Err    error
}

// SentMsg carries the outcome of sending the draft.
type SentMsg struct {
	Item model.FeedItem
	Err  error
}

// Model is the message panel.
type Model struct {
	viewport viewport.Model
	composer textinput.Model
	feed     *feed.Feed
	keys     *keys.KeyMap

	composing bool
	sending   bool
	loading   bool

	// seenBefore is the watermark when the panel was opened; a divider
	// marks the first message above it.
	seenBefore int64
	minID      int64
	lines      int

	status    string
	statusErr bool

	width, height int
}

// New creates the panel for f.
func New(f *feed.Feed, k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, max(height-footerHeight, 1))
	vp.Style = lipgloss.NewStyle()
	vp.KeyMap.HalfPageDown.SetEnabled(false)
	vp.KeyMap.HalfPageUp.SetEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "press c to write a message"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = width - 4

	return Model{
		viewport: vp,
		composer: ti,
		feed:     f,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Composing reports whether key input goes to the composer.
func (m Model) Composing() bool {
	return m.composing
}

// Activate is called when the panel is opened: the feed is marked seen and
// the view scrolled to the newest message.
func (m *Model) Activate(ctx context.Context) tea.Cmd {
	m.seenBefore = m.feed.Watermark(ctx)
	if err := m.feed.MarkSeen(ctx); err != nil && !errors.Is(err, feed.ErrDisposed) {
		m.setStatus(err.Error(), true)
	}
	m.Sync()
	m.viewport.GotoBottom()
	return nil
}

// Sync re-renders the conversation from the feed's snapshot. A reader at
// the bottom follows new messages; a reader scrolled up keeps their place,
// including when older history is inserted above.
func (m *Model) Sync() {
	snap := m.feed.Snapshot()
	follow := m.lines == 0 || m.viewport.AtBottom()
	prevLines, prevMin := m.lines, m.minID

	content := m.renderContent(snap.Items())
	m.viewport.SetContent(content)
	m.lines = lipgloss.Height(content)
	m.minID = snap.MinID()

	switch {
	case prevMin != 0 && m.minID < prevMin:
		m.viewport.SetYOffset(m.viewport.YOffset + m.lines - prevLines)
	case follow:
		m.viewport.GotoBottom()
	}
}

// Update handles messages for the message panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PageLoadedMsg:
		m.loading = false
		switch {
		case errors.Is(msg.Err, feed.ErrLoadInFlight), errors.Is(msg.Err, feed.ErrDisposed):
		case msg.Err != nil:
			m.setStatus(msg.Err.Error(), true)
		case msg.Result.Added > 0:
			m.Sync()
			m.clearStatus()
		}
		return m, nil

	case SentMsg:
		m.sending = false
		if msg.Err != nil {
			if !errors.Is(msg.Err, feed.ErrDisposed) {
				m.setStatus(msg.Err.Error()+" (draft kept)", true)
			}
			return m, nil
		}
		m.composer.SetValue(m.feed.Draft())
		m.clearStatus()
		m.Sync()
		m.viewport.GotoBottom()
		return m, nil

	case ui.MutationDoneMsg:
		m.Sync()
		return m, nil

	case tea.KeyMsg:
		if m.composing {
			return m.handleComposerKeys(msg)
		}
		return m.handleNormalKeys(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.loadOlderAtTop())
	}

	if m.composing {
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleComposerKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		m.feed.SetDraft(m.composer.Value())
		if strings.TrimSpace(m.composer.Value()) == "" || m.sending {
			return m, nil
		}
		m.sending = true
		m.setStatus("Sending...", false)
		return m, m.send()

	case key.Matches(msg, m.keys.Back):
		m.feed.SetDraft(m.composer.Value())
		m.composing = false
		m.composer.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	m.feed.SetDraft(m.composer.Value())
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Compose):
		m.composing = true
		m.composer.SetValue(m.feed.Draft())
		m.composer.CursorEnd()
		return m, m.composer.Focus()

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, m.loadOlder()

	case key.Matches(msg, m.keys.MarkAll):
		if err := m.feed.MarkAllRead(context.Background()); err != nil {
			return m, ui.ErrorStatus(err)
		}
		m.seenBefore = m.feed.Snapshot().MaxID()
		m.Sync()
		return m, nil

	case key.Matches(msg, m.keys.DeleteAll):
		return m, m.DeleteAll()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.loadOlderAtTop())
}

// DeleteAll removes the whole conversation.
func (m *Model) DeleteAll() tea.Cmd {
	commit, err := ui.Mutate(m.feed, feed.Mutation{Kind: feed.MutationDeleteAll})
	if err != nil {
		return ui.ErrorStatus(err)
	}
	m.Sync()
	return commit
}

func (m *Model) loadOlderAtTop() tea.Cmd {
	if !m.viewport.AtTop() {
		return nil
	}
	return m.loadOlder()
}

// loadOlder starts one history page load unless one is already running or
// the history is exhausted.
func (m *Model) loadOlder() tea.Cmd {
	pager := m.feed.Pager()
	if m.loading || pager.Loading() || !pager.Cursor().HasMore || !m.feed.Loaded() {
		return nil
	}
	m.loading = true
	return func() tea.Msg {
		res, err := pager.LoadNext(context.Background())
		return PageLoadedMsg{Result: res, Err: err}
	}
}

func (m Model) send() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		item, err := f.Send(context.Background())
		return SentMsg{Item: item, Err: err}
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}

// renderContent lays out the conversation oldest first.
func (m Model) renderContent(items []model.FeedItem) string {
	var b strings.Builder

	if !m.feed.Pager().Cursor().HasMore {
		b.WriteString(theme.HelpStyle.Render("Beginning of conversation"))
		b.WriteString("\n\n")
	} else if len(items) > 0 {
		b.WriteString(theme.HelpStyle.Render("g or scroll up for older messages"))
		b.WriteString("\n\n")
	}

	divided := false
	body := lipgloss.NewStyle().Width(max(m.width-2, 10))
	for _, it := range items {
		if !divided && m.seenBefore > 0 && it.ID > m.seenBefore {
			b.WriteString(theme.ErrorStyle.Render("── new ──"))
			b.WriteString("\n")
			divided = true
		}

		sender := it.Sender
		if sender == "" {
			sender = string(it.Category)
		}
		header := fmt.Sprintf("%s %s",
			theme.CategoryStyle(it.Category).Render(sender),
			theme.HelpStyle.Render(it.CreatedAt.Local().Format("Jan 02 15:04")),
		)
		if m.feed.Pending(it.ID) {
			header += theme.PendingStyle.Render(" syncing…")
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(body.Render(it.Body))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// View renders the message panel.
func (m Model) View() string {
	var main string
	if m.feed.Snapshot().Len() == 0 {
		text := "No messages yet."
		if !m.feed.Loaded() {
			text = "Loading messages..."
		}
		main = lipgloss.NewStyle().
			Width(m.width).
			Height(m.viewport.Height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(text)
	} else {
		main = m.viewport.View()
	}

	status := m.status
	switch {
	case m.loading:
		status = theme.HelpStyle.Render("Loading older messages...")
	case m.statusErr:
		status = theme.ErrorStyle.Render(status)
	default:
		status = theme.HelpStyle.Render(status)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, status, m.composer.View())
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-footerHeight, 1)
	m.composer.Width = width - 4
	m.lines = 0
	m.Sync()
}
