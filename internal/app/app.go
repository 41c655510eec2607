package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/credential"
	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/keys"
	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/model"
	appsync "github.com/nhle/memberdesk/internal/sync"
	"github.com/nhle/memberdesk/internal/ui"
	"github.com/nhle/memberdesk/internal/ui/alerts"
	"github.com/nhle/memberdesk/internal/ui/command"
	helpview "github.com/nhle/memberdesk/internal/ui/help"
	"github.com/nhle/memberdesk/internal/ui/login"
	"github.com/nhle/memberdesk/internal/ui/messages"
	"github.com/nhle/memberdesk/internal/ui/notifications"
)

// ConfigReloadedMsg is sent when the configuration file changes on disk.
type ConfigReloadedMsg struct {
	Config *model.AppConfig
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewNotifications ViewState = iota
	ViewMessages
	ViewHelp
	ViewCommand
	ViewLogin
)

// Options wires the root model to the feeds and services built in main.
type Options struct {
	Config *model.AppConfig

	Notifications *feed.Feed
	Messages      *feed.Feed
	Scheduler     *appsync.Scheduler

	// Login verifies and persists credentials entered in the login view.
	Login login.Saver

	// Reconnect points the API client at new credentials after a login.
	Reconnect func(baseURL, token string)

	// Logout forgets the stored token. Defaults to credential.DeleteToken.
	Logout func(account string) error

	// NeedsLogin starts the app on the login view.
	NeedsLogin bool

	Log *zap.SugaredLogger
}

// Model is the root Bubble Tea model that manages view routing, the feed
// sessions and the polling results.
type Model struct {
	currentView  ViewState
	previousView ViewState
	activePanel  ViewState

	layout    ui.Layout
	keys      *keys.KeyMap
	cfg       *model.AppConfig
	opts      Options
	log       *zap.SugaredLogger
	scheduler *appsync.Scheduler

	notifications notifications.Model
	messages      messages.Model
	alerts        alerts.Model
	helpView      helpview.Model
	commandView   command.Model
	loginView     login.Model

	unread  map[model.FeedKind]int
	pollErr map[model.FeedKind]error

	lastSync         time.Time
	authErrorMessage string
	status           string
	statusErr        bool

	// listening is set once a WaitForNextResult command is outstanding.
	listening bool
	ready     bool
}

// New creates the root model. Both feeds are registered with the scheduler
// but only started by Init or after a successful login.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	opts.Scheduler.Register(opts.Notifications)
	opts.Scheduler.Register(opts.Messages)
	if opts.Logout == nil {
		opts.Logout = credential.DeleteToken
	}

	m := Model{
		currentView:   ViewNotifications,
		previousView:  ViewNotifications,
		activePanel:   ViewNotifications,
		keys:          k,
		cfg:           opts.Config,
		opts:          opts,
		log:           logger.OrNop(opts.Log),
		scheduler:     opts.Scheduler,
		notifications: notifications.New(opts.Notifications, k, 80, 20),
		messages:      messages.New(opts.Messages, k, 80, 20),
		alerts:        alerts.New(alertTTL(opts.Config), 80),
		helpView:      helpview.New(k, 80, 20),
		commandView:   command.New(80, 20),
		loginView:     login.New(opts.Config, opts.Login, 80, 20),
		unread:        make(map[model.FeedKind]int),
		pollErr:       make(map[model.FeedKind]error),
	}
	if opts.NeedsLogin {
		m.currentView = ViewLogin
	} else {
		m.listening = true
	}
	return m
}

func alertTTL(cfg *model.AppConfig) time.Duration {
	return time.Duration(cfg.Display.AlertTTLSec) * time.Second
}

// Init starts the feed sessions and polling, or the login form when no
// token is available.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewLogin {
		return m.loginView.Init()
	}
	return m.startSession()
}

// startSession initializes both feeds and starts polling. The returned
// command waits for the first poll result.
func (m Model) startSession() tea.Cmd {
	ctx := context.Background()
	m.opts.Notifications.Init(ctx)
	m.opts.Messages.Init(ctx)
	return m.scheduler.Start()
}

// endSession stops polling and disposes both feeds so that late results
// are discarded.
func (m Model) endSession() {
	m.scheduler.Stop()
	m.opts.Notifications.Dispose()
	m.opts.Messages.Dispose()
}

func (m Model) live() bool {
	return m.opts.Notifications.Live()
}

func (m Model) feedFor(kind model.FeedKind) *feed.Feed {
	if kind == model.FeedMessages {
		return m.opts.Messages
	}
	return m.opts.Notifications
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.notifications.SetSize(w, h)
		m.messages.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.loginView.SetSize(w, h)
		m.alerts.SetWidth(w)
		// Forward to the active view so huh forms can lay out.
		return m.updateActiveView(msg)

	case appsync.PollResultMsg:
		return m.handlePollResult(msg)

	case ui.MutationDoneMsg:
		var cmd tea.Cmd
		if msg.Feed == model.FeedMessages {
			m.messages, cmd = m.messages.Update(msg)
		} else {
			m.notifications, cmd = m.notifications.Update(msg)
		}
		m.refreshUnread()
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("%s failed, change reverted: %v", msg.Mutation, msg.Err), true)
		}
		return m, cmd

	case ui.StatusMsg:
		m.setStatus(msg.Text, msg.Error)
		return m, nil

	case notifications.OpenLinkMsg:
		m.refreshUnread()
		m.setStatus("Open in browser: "+m.cfg.API.BaseURL+msg.Link, false)
		return m, nil

	case messages.PageLoadedMsg, messages.SentMsg:
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		m.refreshUnread()
		return m, cmd

	case login.DoneMsg:
		return m.handleLogin(msg)

	case login.CancelledMsg:
		if !m.live() {
			return m, tea.Quit
		}
		m.currentView = m.activePanel
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case ConfigReloadedMsg:
		return m.applyConfig(msg.Config)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.alerts, cmd = m.alerts.Update(msg)
	next, viewCmd := m.updateActiveView(msg)
	return next, tea.Batch(cmd, viewCmd)
}

func (m Model) handlePollResult(msg appsync.PollResultMsg) (tea.Model, tea.Cmd) {
	wait := m.scheduler.WaitForNextResult()

	switch {
	case msg.AuthError != nil:
		m.authErrorMessage = msg.AuthError.Message
	case msg.Err == nil:
		m.authErrorMessage = ""
	}
	if msg.Err != nil {
		m.pollErr[msg.Feed] = msg.Err
	} else {
		delete(m.pollErr, msg.Feed)
		m.lastSync = msg.At
	}

	if msg.Feed == model.FeedMessages {
		if m.currentView == ViewMessages {
			// New messages are on screen.
			err := m.opts.Messages.MarkSeen(context.Background())
			if err != nil && !errors.Is(err, feed.ErrDisposed) {
				m.setStatus(err.Error(), true)
			}
		}
		m.messages.Sync()
	} else {
		m.notifications.Sync()
	}
	m.refreshUnread()

	var alertCmd tea.Cmd
	m.alerts, alertCmd = m.alerts.Push(msg.Alerts...)
	return m, tea.Batch(alertCmd, wait)
}

func (m Model) handleLogin(msg login.DoneMsg) (tea.Model, tea.Cmd) {
	m.cfg = msg.Config
	if m.opts.Reconnect != nil {
		m.opts.Reconnect(msg.Config.API.BaseURL, msg.Token)
	}
	m.authErrorMessage = ""
	clear(m.pollErr)

	if m.live() {
		m.endSession()
	}
	wait := m.startSession()
	if m.listening {
		wait = nil
	}
	m.listening = true

	m.currentView = m.activePanel
	m.notifications.Sync()
	m.messages.Sync()
	m.setStatus(fmt.Sprintf("Signed in as %s (%d notifications)",
		msg.Config.API.Username, msg.Notifications), false)
	return m, wait
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, m.quit()
	}

	switch m.currentView {
	case ViewLogin, ViewCommand:
		return m.updateActiveView(msg)
	case ViewHelp:
		switch {
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Back):
			m.currentView = m.previousView
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()
		}
		return m, nil
	}

	if m.currentView == ViewMessages && m.messages.Composing() {
		return m.updateActiveView(msg)
	}

	m.status, m.statusErr = "", false

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Help):
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus()

	case key.Matches(msg, m.keys.NextPanel):
		if m.currentView == ViewMessages {
			return m.switchPanel(ViewNotifications)
		}
		return m.switchPanel(ViewMessages)

	case key.Matches(msg, m.keys.Notifications):
		return m.switchPanel(ViewNotifications)

	case key.Matches(msg, m.keys.Messages):
		return m.switchPanel(ViewMessages)

	case key.Matches(msg, m.keys.Refresh):
		m.refreshAll()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.alerts.Dismiss()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.currentView {
	case ViewNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
	case ViewMessages:
		m.messages, cmd = m.messages.Update(msg)
	}
	m.refreshUnread()
	return m, cmd
}

// switchPanel shows the given feed panel and asks the scheduler for a
// fresh copy of its feed. Opening the messages panel marks it seen.
func (m Model) switchPanel(v ViewState) (tea.Model, tea.Cmd) {
	if m.currentView == v {
		return m, nil
	}
	m.currentView = v
	m.activePanel = v

	kind := model.FeedNotifications
	var cmd tea.Cmd
	if v == ViewMessages {
		kind = model.FeedMessages
		cmd = m.messages.Activate(context.Background())
	}
	m.refreshUnread()
	m.scheduler.Refresh(kind)
	return m, cmd
}

func (m *Model) refreshAll() {
	m.scheduler.Refresh(model.FeedNotifications)
	m.scheduler.Refresh(model.FeedMessages)
	m.setStatus("Refreshing...", false)
}

func (m *Model) refreshUnread() {
	ctx := context.Background()
	for _, kind := range []model.FeedKind{model.FeedNotifications, model.FeedMessages} {
		f := m.feedFor(kind)
		if !f.Live() {
			m.unread[kind] = 0
			continue
		}
		m.unread[kind] = f.UnreadCount(ctx)
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m Model) quit() tea.Cmd {
	m.endSession()
	return tea.Quit
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	m.endSession()
	if err := m.opts.Logout(m.cfg.API.Username); err != nil {
		m.log.Warnw("removing token failed", "error", err)
		m.setStatus(err.Error(), true)
	}
	clear(m.unread)
	clear(m.pollErr)
	m.alerts.Dismiss()
	return m.openLogin()
}

func (m Model) openLogin() (tea.Model, tea.Cmd) {
	if m.currentView != ViewLogin {
		m.previousView = m.currentView
	}
	m.currentView = ViewLogin
	m.loginView = login.New(m.cfg, m.opts.Login, m.layout.ContentWidth(), m.layout.ContentHeight())
	return m, m.loginView.Init()
}

func (m Model) applyConfig(cfg *model.AppConfig) (tea.Model, tea.Cmd) {
	if cfg.API.BaseURL != m.cfg.API.BaseURL {
		m.setStatus("Dashboard URL changed; run :login to reconnect", true)
	}
	// Credentials only change through the login view.
	cfg.API = m.cfg.API
	m.cfg = cfg

	if err := m.scheduler.SetInterval(cfg.Poll.Interval()); err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.alerts.SetTTL(alertTTL(cfg))
	if !m.statusErr {
		m.setStatus("Configuration reloaded", false)
	}
	return m, nil
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	defer m.refreshUnread()

	switch c.Name {
	case command.Refresh:
		m.scheduler.Refresh(model.FeedNotifications)
		m.scheduler.Refresh(model.FeedMessages)
		return ui.Status("Refreshing...")

	case command.MarkAll:
		if m.activePanel == ViewMessages {
			if err := m.opts.Messages.MarkAllRead(context.Background()); err != nil {
				return ui.ErrorStatus(err)
			}
			return ui.Status("Messages marked seen")
		}
		return m.notifications.MarkAll()

	case command.DeleteAll:
		if m.activePanel == ViewMessages {
			return m.messages.DeleteAll()
		}
		return m.notifications.DeleteAll()

	case command.Interval:
		if len(c.Args) != 1 {
			return ui.ErrorStatus(fmt.Errorf("usage: interval <duration>, e.g. interval 30s"))
		}
		d, err := time.ParseDuration(c.Args[0])
		if err != nil {
			return ui.ErrorStatus(err)
		}
		if err := m.scheduler.SetInterval(d); err != nil {
			return ui.ErrorStatus(err)
		}
		return ui.Status("Polling every %s", d)

	case command.Login:
		return func() tea.Msg { return openLoginMsg{} }

	case command.Logout:
		return func() tea.Msg { return logoutMsg{} }

	case command.Quit:
		return m.quit()
	}
	return nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.(type) {
	case openLoginMsg:
		return m.openLogin()
	case logoutMsg:
		return m.logout()
	}

	switch m.currentView {
	case ViewNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
	case ViewMessages:
		m.messages, cmd = m.messages.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "memberdesk"
	if m.cfg.API.Username != "" {
		title += " · " + m.cfg.API.Username
	}
	header := m.layout.RenderHeader(title, m.syncStatus())
	tabs := m.layout.RenderTabs([]ui.Tab{
		{Feed: model.FeedNotifications, Title: "Notifications", Unread: m.unread[model.FeedNotifications]},
		{Feed: model.FeedMessages, Title: "Messages", Unread: m.unread[model.FeedMessages]},
	}, m.activeFeed())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), m.alerts.View(), statusBar)
}

func (m Model) activeFeed() model.FeedKind {
	if m.activePanel == ViewMessages {
		return model.FeedMessages
	}
	return model.FeedNotifications
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewNotifications:
		return m.notifications.View()
	case ViewMessages:
		return m.messages.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewLogin:
		return m.loginView.View()
	default:
		return ""
	}
}
