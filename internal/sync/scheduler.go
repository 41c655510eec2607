// Package sync polls the dashboard feeds on a fixed interval and turns
// each refresh into a Bubble Tea message carrying the alerts for items
// that arrived since the previous poll.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/api"
	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/metrics"
	"github.com/nhle/memberdesk/internal/model"
)

// PollResultMsg is a tea.Msg sent when a poll of one feed completes.
type PollResultMsg struct {
	Feed model.FeedKind

	// Alerts holds one alert per item new since the previous snapshot.
	// Always empty for the first load of a session.
	Alerts []model.Alert

	// Unread is the feed's unread count after the refresh.
	Unread int

	// Err is set when the poll failed; the snapshot was left untouched.
	Err error

	// AuthError is set when the failure was a rejected token.
	AuthError *AuthErrorMsg

	At time.Time
}

// AuthErrorMsg describes a rejected API token.
type AuthErrorMsg struct {
	Feed    model.FeedKind
	Message string
}

// Options configures a Scheduler.
type Options struct {
	// Interval between polls. Zero means model.DefaultPollInterval.
	Interval time.Duration

	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics

	// Now is the clock used to timestamp alerts. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler refreshes registered feeds on a cron schedule. A feed is
// looked up at tick time, so a feed that was disposed and re-initialized
// in the meantime is polled in its current session.
type Scheduler struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       gosync.Mutex
	feeds    map[model.FeedKind]*feed.Feed
	polling  map[pollKey]bool
	interval time.Duration
	cron     *cron.Cron
	entry    cron.EntryID
	running  bool

	resultCh chan PollResultMsg
}

// New creates a stopped scheduler.
func New(opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = model.DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		log:      logger.OrNop(opts.Log),
		metrics:  opts.Metrics,
		now:      now,
		feeds:    make(map[model.FeedKind]*feed.Feed),
		polling:  make(map[pollKey]bool),
		interval: interval,
		resultCh: make(chan PollResultMsg, 16),
	}
}

// Register adds a feed to be polled. Registering the same kind twice
// replaces the previous feed.
func (s *Scheduler) Register(f *feed.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[f.Kind()] = f
}

// Interval returns the current poll interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// Start schedules the polls, triggers an immediate poll of every feed and
// returns a tea.Cmd that delivers the first result.
func (s *Scheduler) Start() tea.Cmd {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entry, err := c.AddFunc(everySpec(s.interval), s.tick)
	if err != nil {
		s.mu.Unlock()
		s.log.Errorw("scheduling polls failed", "interval", s.interval, "error", err)
		return nil
	}
	s.cron = c
	s.entry = entry
	s.running = true
	s.mu.Unlock()

	c.Start()
	s.log.Infow("polling started", "interval", s.interval)
	go s.tick()

	return s.waitForResult()
}

// Stop halts the schedule. A poll already in flight completes, but its
// result is only applied if its feed is still live.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	c.Stop()
	s.log.Infow("polling stopped")
}

// SetInterval changes the poll interval, rescheduling if running.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("poll interval %s is below one second", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d == s.interval {
		return nil
	}
	if s.running {
		entry, err := s.cron.AddFunc(everySpec(d), s.tick)
		if err != nil {
			return fmt.Errorf("rescheduling polls: %w", err)
		}
		s.cron.Remove(s.entry)
		s.entry = entry
	}
	s.log.Infow("poll interval changed", "from", s.interval, "to", d)
	s.interval = d
	return nil
}

// Refresh polls one feed now, in the background, e.g. when its panel
// opens. The result arrives like any other poll result.
func (s *Scheduler) Refresh(kind model.FeedKind) {
	s.mu.Lock()
	f, ok := s.feeds[kind]
	s.mu.Unlock()
	if !ok {
		return
	}
	go s.pollAndSend(f)
}

// tick polls every registered feed.
func (s *Scheduler) tick() {
	s.mu.Lock()
	feeds := make([]*feed.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	s.mu.Unlock()

	var wg gosync.WaitGroup
	for _, f := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pollAndSend(f)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) pollAndSend(f *feed.Feed) {
	// The API client bounds each attempt; a hung poll only holds its own
	// session's guard.
	if msg, ok := s.Poll(context.Background(), f); ok {
		s.sendResult(msg)
	}
}

// pollKey identifies one feed session. A poll left over from a disposed
// session never blocks the first poll of the next one.
type pollKey struct {
	kind model.FeedKind
	gen  uint64
}

// Poll refreshes f once. It reports false when there is nothing to
// deliver: the feed is not live, another poll of the same session is
// running, or the session ended while the fetch was in flight.
func (s *Scheduler) Poll(ctx context.Context, f *feed.Feed) (PollResultMsg, bool) {
	kind := f.Kind()
	gen := f.Generation()
	if !f.Live() {
		return PollResultMsg{}, false
	}

	key := pollKey{kind: kind, gen: gen}
	s.mu.Lock()
	if s.polling[key] {
		s.mu.Unlock()
		return PollResultMsg{}, false
	}
	s.polling[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.polling, key)
		s.mu.Unlock()
	}()

	fresh, err := s.refresh(ctx, f, gen)
	if errors.Is(err, feed.ErrDisposed) {
		s.log.Debugw("discarding poll result for disposed feed", "feed", kind)
		return PollResultMsg{}, false
	}
	s.metrics.Poll(string(kind), err)

	msg := PollResultMsg{Feed: kind, At: s.now()}
	if err != nil {
		s.log.Warnw("poll failed", "feed", kind, "error", err)
		msg.Err = err
		if api.IsAuthError(err) {
			msg.AuthError = &AuthErrorMsg{
				Feed:    kind,
				Message: "authentication expired. Run `memberdesk login` to update your token.",
			}
		}
		return msg, true
	}

	for _, it := range fresh {
		msg.Alerts = append(msg.Alerts, model.NewAlert(it, msg.At))
	}
	s.metrics.Alerts(string(kind), len(msg.Alerts))
	msg.Unread = f.UnreadCount(ctx)
	return msg, true
}

// refresh fetches and installs one feed for session gen. Messages only
// refresh the newest page so history loaded by scrolling survives the poll.
func (s *Scheduler) refresh(ctx context.Context, f *feed.Feed, gen uint64) ([]model.FeedItem, error) {
	remote := f.Remote()
	if f.Kind() == model.FeedMessages {
		page, err := remote.FetchPage(ctx, f.Kind(), 1, f.Pager().Cursor().PageSize)
		if err != nil {
			return nil, err
		}
		return f.ApplyWindow(gen, page)
	}

	items, err := remote.Fetch(ctx, f.Kind())
	if err != nil {
		return nil, err
	}
	return f.ApplyPoll(gen, items)
}

// sendResult sends a PollResultMsg on the result channel without blocking.
func (s *Scheduler) sendResult(msg PollResultMsg) {
	select {
	case s.resultCh <- msg:
	default:
		s.log.Warnw("dropping poll result, channel full", "feed", msg.Feed)
	}
}

func (s *Scheduler) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-s.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next poll result.
// Call it after handling a PollResultMsg to keep listening.
func (s *Scheduler) WaitForNextResult() tea.Cmd {
	return s.waitForResult()
}
