package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/model"
	appsync "github.com/nhle/memberdesk/internal/sync"
	"github.com/nhle/memberdesk/internal/ui"
	"github.com/nhle/memberdesk/internal/ui/command"
	"github.com/nhle/memberdesk/internal/ui/login"
	"github.com/nhle/memberdesk/internal/watermark"
	"github.com/nhle/memberdesk/tests/testutil"
)

type harness struct {
	m         Model
	remote    *testutil.FakeRemote
	notif     *feed.Feed
	msgs      *feed.Feed
	scheduler *appsync.Scheduler
	loggedOut []string
}

func newHarness(t *testing.T, needsLogin bool) *harness {
	t.Helper()
	// Panel switches trigger background refreshes that may outlive the
	// test, so nothing here logs through t.
	log := zap.NewNop().Sugar()
	remote := testutil.NewFakeRemote()
	wm := watermark.New(testutil.NewTestStore(t), log)
	newFeed := func(kind model.FeedKind) *feed.Feed {
		return feed.New(feed.Options{Kind: kind, Remote: remote, Watermarks: wm, Log: log, PageSize: 3})
	}

	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	cfg.API.Username = "alice"

	h := &harness{
		remote:    remote,
		notif:     newFeed(model.FeedNotifications),
		msgs:      newFeed(model.FeedMessages),
		scheduler: appsync.New(appsync.Options{Interval: time.Hour, Log: log}),
	}
	h.m = New(Options{
		Config:        cfg,
		Notifications: h.notif,
		Messages:      h.msgs,
		Scheduler:     h.scheduler,
		Logout: func(account string) error {
			h.loggedOut = append(h.loggedOut, account)
			return nil
		},
		NeedsLogin: needsLogin,
		Log:        log,
	})
	t.Cleanup(func() {
		h.scheduler.Stop()
		h.notif.Dispose()
		h.msgs.Dispose()
	})
	return h
}

// start begins a session without the scheduler so tests drive polls.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.notif.Init(ctx)
	h.msgs.Init(ctx)
	h.update(tea.WindowSizeMsg{Width: 100, Height: 30})
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) poll(t *testing.T, f *feed.Feed) {
	t.Helper()
	msg, ok := h.scheduler.Poll(context.Background(), f)
	require.True(t, ok)
	h.update(msg)
}

func press(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestPollResultsUpdateBadgesAndAlerts(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedNotifications, testutil.MakeItems(1, 2)...)

	h.poll(t, h.notif)
	assert.Equal(t, 2, h.m.unread[model.FeedNotifications])
	assert.Zero(t, h.m.alerts.Len(), "first load raises no alerts")

	h.remote.Add(model.FeedNotifications, testutil.MakeItems(3)...)
	h.poll(t, h.notif)
	assert.Equal(t, 3, h.m.unread[model.FeedNotifications])
	assert.Equal(t, 1, h.m.alerts.Len())
	assert.Contains(t, h.m.View(), "Notifications")
}

func TestMessagesPollWhileViewingAdvancesWatermark(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedMessages, testutil.MakeItems(1, 2)...)
	h.poll(t, h.msgs)
	h.update(press('2'))
	require.Equal(t, ViewMessages, h.m.currentView)
	// Opening the panel refreshes it in the background; wait for that poll.
	h.update(h.scheduler.WaitForNextResult()())

	h.remote.Add(model.FeedMessages, testutil.MakeItems(3)...)
	h.poll(t, h.msgs)

	assert.Equal(t, int64(3), h.msgs.Watermark(context.Background()))
	assert.Zero(t, h.m.unread[model.FeedMessages])
	assert.Empty(t, h.m.status)
}

func TestLateMessagesPollAfterDisposeLeavesStatusClean(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.update(press('2'))
	require.Equal(t, ViewMessages, h.m.currentView)
	h.update(h.scheduler.WaitForNextResult()())
	h.m.status = ""

	h.msgs.Dispose()
	h.update(appsync.PollResultMsg{Feed: model.FeedMessages, At: time.Now()})

	assert.Empty(t, h.m.status)
	assert.False(t, h.m.statusErr)
}

func TestPollErrorShowsInHeader(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Fail(testutil.OpFetch, errors.New("no route to host"))

	h.poll(t, h.notif)

	assert.Contains(t, h.m.syncStatus(), "unreachable: notifications")

	h.remote.Fail(testutil.OpFetch, nil)
	h.poll(t, h.notif)
	assert.Contains(t, h.m.syncStatus(), "synced")
}

func TestOpeningMessagesMarksThemSeen(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedMessages, testutil.MakeItems(1, 2)...)
	h.poll(t, h.msgs)
	require.Equal(t, 2, h.m.unread[model.FeedMessages])

	h.update(press('2'))

	assert.Equal(t, ViewMessages, h.m.currentView)
	assert.Zero(t, h.m.unread[model.FeedMessages])
	assert.Equal(t, int64(2), h.msgs.Watermark(context.Background()))
}

func TestMarkReadKeyUpdatesBadgeImmediately(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedNotifications, testutil.MakeItems(1, 2)...)
	h.poll(t, h.notif)

	cmd := h.update(press('m'))

	assert.Equal(t, 1, h.m.unread[model.FeedNotifications])
	for _, msg := range testutil.Drain(cmd) {
		h.update(msg)
	}
	assert.Equal(t, 1, h.remote.Calls(testutil.OpMarkRead))
}

func TestFailedMutationReportsRollback(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedNotifications, testutil.MakeItems(1, 2)...)
	h.poll(t, h.notif)
	h.remote.Fail(testutil.OpMarkAllRead, errors.New("503"))

	cmd := h.update(press('M'))
	assert.Zero(t, h.m.unread[model.FeedNotifications])

	for _, msg := range testutil.Drain(cmd) {
		h.update(msg)
	}
	assert.Equal(t, 2, h.m.unread[model.FeedNotifications])
	assert.True(t, h.m.statusErr)
	assert.Contains(t, h.m.status, "reverted")
}

func TestPaletteMarkAll(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedNotifications, testutil.MakeItems(1, 2)...)
	h.poll(t, h.notif)

	h.update(press(':'))
	require.Equal(t, ViewCommand, h.m.currentView)

	cmd := h.update(command.CommandMsg{Name: command.MarkAll})

	assert.Equal(t, ViewNotifications, h.m.currentView)
	assert.Zero(t, h.m.unread[model.FeedNotifications])
	testutil.Drain(cmd)
	assert.Equal(t, 1, h.remote.Calls(testutil.OpMarkAllRead))
}

func TestPaletteInterval(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)

	cmd := h.update(command.CommandMsg{Name: command.Interval, Args: []string{"30s"}})
	for _, msg := range testutil.Drain(cmd) {
		h.update(msg)
	}
	assert.Equal(t, 30*time.Second, h.scheduler.Interval())
	assert.Contains(t, h.m.status, "30s")

	cmd = h.update(command.CommandMsg{Name: command.Interval, Args: []string{"soon"}})
	for _, msg := range testutil.Drain(cmd) {
		h.update(msg)
	}
	assert.True(t, h.m.statusErr)
}

func TestLogoutDisposesFeedsAndOpensLogin(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.remote.Seed(model.FeedNotifications, testutil.MakeItems(1)...)
	h.poll(t, h.notif)

	h.update(logoutMsg{})

	assert.Equal(t, []string{"alice"}, h.loggedOut)
	assert.False(t, h.notif.Live())
	assert.False(t, h.msgs.Live())
	assert.Equal(t, ViewLogin, h.m.currentView)

	_, ok := h.scheduler.Poll(context.Background(), h.notif)
	assert.False(t, ok, "a disposed feed yields no results")
}

func TestLoginStartsSession(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, ViewLogin, h.m.currentView)

	var reconnected string
	h.m.opts.Reconnect = func(baseURL, token string) { reconnected = baseURL + " " + token }
	cfg := *h.m.cfg
	cfg.API.BaseURL = "http://dash.test"
	h.update(login.DoneMsg{Config: &cfg, Token: "tok", Notifications: 4})

	assert.Equal(t, "http://dash.test tok", reconnected)
	assert.True(t, h.notif.Live())
	assert.True(t, h.msgs.Live())
	assert.Equal(t, ViewNotifications, h.m.currentView)
	assert.Contains(t, h.m.status, "4 notifications")
}

func TestCancelledLoginWithoutSessionQuits(t *testing.T) {
	h := newHarness(t, true)

	cmd := h.update(login.CancelledMsg{})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestConfigReloadAppliesIntervalButNotCredentials(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)

	cfg := *h.m.cfg
	cfg.API.Username = "mallory"
	cfg.Poll.IntervalSec = 15
	h.update(ConfigReloadedMsg{Config: &cfg})

	assert.Equal(t, 15*time.Second, h.scheduler.Interval())
	assert.Equal(t, "alice", h.m.cfg.API.Username)
}

func TestQuitEndsSession(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)

	cmd := h.update(press('q'))

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.False(t, h.notif.Live())
}

func TestStatusMessages(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)

	h.update(ui.StatusMsg{Text: "boom", Error: true})
	assert.Contains(t, h.m.keyHints(), "boom")

	h.update(press('j'))
	assert.NotContains(t, h.m.keyHints(), "boom")
}
