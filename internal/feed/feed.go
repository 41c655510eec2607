// Package feed implements the client-side synchronization engine behind
// the notification and message panels: an immutable snapshot, optimistic
// mutations with per-operation rollback, watermark-based unread counts and
// backward history paging.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/metrics"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/watermark"
)

var (
	// ErrDisposed is returned when a feed is used after Dispose or
	// before Init. Results arriving for a disposed feed are discarded.
	ErrDisposed = errors.New("feed disposed")

	// ErrEmptyMessage is returned when sending a blank message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnsupported is returned for operations a feed kind does not offer.
	ErrUnsupported = errors.New("operation not supported for this feed")
)

// Remote is the subset of the dashboard API a feed consumes.
type Remote interface {
	Fetch(ctx context.Context, kind model.FeedKind) ([]model.FeedItem, error)
	FetchPage(ctx context.Context, kind model.FeedKind, page, pageSize int) ([]model.FeedItem, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, kind model.FeedKind) error
	Delete(ctx context.Context, kind model.FeedKind, id int64) error
	DeleteAll(ctx context.Context, kind model.FeedKind) error
	Send(ctx context.Context, kind model.FeedKind, body string) (model.FeedItem, error)
}

// Options configures a Feed.
type Options struct {
	Kind       model.FeedKind
	Remote     Remote
	Watermarks *watermark.Store
	Log        *zap.SugaredLogger
	Metrics    *metrics.Metrics

	// PageSize is the history page size (messages only).
	PageSize int
}

// Feed is the explicit state object for one feed. It is owned by a single
// view at a time: Init when the view mounts, Dispose when it goes away.
type Feed struct {
	kind       model.FeedKind
	remote     Remote
	watermarks *watermark.Store
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics
	pageSize   int

	mu     gosync.Mutex
	live   bool
	loaded bool
	draft  string
	// generation changes on every Init so stale results can be told apart.
	generation uint64

	mutator *Mutator
	pager   *Pager
}

// New creates a feed. Call Init before use.
func New(opts Options) *Feed {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	wm := opts.Watermarks
	if wm == nil {
		wm = watermark.New(nil, opts.Log)
	}
	f := &Feed{
		kind:       opts.Kind,
		remote:     opts.Remote,
		watermarks: wm,
		log:        logger.OrNop(opts.Log).With("feed", string(opts.Kind)),
		metrics:    opts.Metrics,
		pageSize:   pageSize,
		mutator:    NewMutator(opts.Kind),
	}
	f.pager = newPager(f)
	return f
}

// Init starts a fresh session: empty snapshot, reset cursor, watermark
// loaded from durable storage.
func (f *Feed) Init(ctx context.Context) {
	f.mu.Lock()
	f.live = true
	f.loaded = false
	f.generation++
	f.mutator = NewMutator(f.kind)
	f.mu.Unlock()

	f.pager.Reset()
	f.watermarks.Get(ctx, f.kind)
}

// Dispose ends the session. In-flight results that arrive later are dropped.
func (f *Feed) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = false
}

// Live reports whether the feed is between Init and Dispose.
func (f *Feed) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Kind returns the feed kind.
func (f *Feed) Kind() model.FeedKind { return f.kind }

// Remote returns the API the feed talks to.
func (f *Feed) Remote() Remote { return f.remote }

// Pager returns the history pager.
func (f *Feed) Pager() *Pager { return f.pager }

// session returns the current mutator and generation, or ErrDisposed.
func (f *Feed) session() (*Mutator, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		return nil, 0, ErrDisposed
	}
	return f.mutator, f.generation, nil
}

// current reports whether gen is still the live session.
func (f *Feed) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live && f.generation == gen
}

// Snapshot returns the current snapshot.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	m := f.mutator
	f.mu.Unlock()
	return m.Current()
}

// Loaded reports whether at least one poll has been applied this session.
func (f *Feed) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// Watermark returns the feed's acknowledged watermark.
func (f *Feed) Watermark(ctx context.Context) int64 {
	return f.watermarks.Get(ctx, f.kind)
}

// UnreadCount computes the unread count against the current watermark.
func (f *Feed) UnreadCount(ctx context.Context) int {
	return f.Snapshot().UnreadCount(f.Watermark(ctx))
}

// Pending reports whether a mutation on id awaits remote confirmation.
func (f *Feed) Pending(id int64) bool {
	f.mu.Lock()
	m := f.mutator
	f.mu.Unlock()
	return m.Pending(id)
}

// Generation returns the number of the current session. A poll captures
// it before fetching and hands it back to ApplyPoll or ApplyWindow, so a
// result fetched for an earlier session is never installed in a later one.
func (f *Feed) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

// ApplyPoll installs a full refresh fetched during session gen and returns
// the items that are new since the previous snapshot. The first load of a
// session, or any load over an empty snapshot, returns none. ErrDisposed
// is returned when gen is no longer the live session.
func (f *Feed) ApplyPoll(gen uint64, items []model.FeedItem) ([]model.FeedItem, error) {
	return f.applyRefresh(gen, func(m *Mutator) (Snapshot, Snapshot) {
		return m.Reset(NewSnapshot(f.kind, normalizeKind(f.kind, items)))
	})
}

// ApplyWindow installs the newest page of a paged feed, keeping older
// history already loaded by the pager. New items are reported as in
// ApplyPoll.
func (f *Feed) ApplyWindow(gen uint64, page []model.FeedItem) ([]model.FeedItem, error) {
	return f.applyRefresh(gen, func(m *Mutator) (Snapshot, Snapshot) {
		return m.ResetWindow(normalizeKind(f.kind, page))
	})
}

func (f *Feed) applyRefresh(gen uint64, reset func(*Mutator) (Snapshot, Snapshot)) ([]model.FeedItem, error) {
	f.mu.Lock()
	if !f.live || f.generation != gen {
		f.mu.Unlock()
		return nil, ErrDisposed
	}
	m := f.mutator
	f.mu.Unlock()

	prev, next := reset(m)

	f.mu.Lock()
	if f.generation == gen {
		f.loaded = true
	}
	f.mu.Unlock()

	return next.Diff(prev), nil
}

// normalizeKind stamps kind on items the API returned without one.
func normalizeKind(kind model.FeedKind, items []model.FeedItem) []model.FeedItem {
	out := make([]model.FeedItem, len(items))
	for i, it := range items {
		it.Kind = kind
		out[i] = it
	}
	return out
}

// Commit is the remote half of an optimistic mutation.
type Commit func(ctx context.Context) error

// Optimistic applies mutation locally right away and returns the commit
// that performs the remote call and confirms or rolls back. UIs call it
// from their update loop and run the commit asynchronously.
func (f *Feed) Optimistic(mutation Mutation) (Commit, error) {
	m, gen, err := f.session()
	if err != nil {
		return nil, err
	}

	var restoreWatermark func(ctx context.Context)
	if mutation.Kind == MutationMarkAllRead {
		restoreWatermark = f.advanceWatermark(m.Current().MaxID())
	}

	p := m.Begin(mutation)
	resolved := p.Mutation()

	return func(ctx context.Context) error {
		err := f.remoteFor(ctx, resolved)
		if !f.current(gen) {
			// The owning view is gone; nothing to confirm or roll back.
			return err
		}
		m.Resolve(p, err)
		f.metrics.Mutation(string(f.kind), resolved.Kind.String(), err)
		if err != nil {
			if restoreWatermark != nil {
				restoreWatermark(ctx)
			}
			f.log.Warnw("mutation rolled back",
				"kind", resolved.Kind.String(), "ids", resolved.IDs, "error", err)
			return fmt.Errorf("%s: %w", resolved.Kind, err)
		}
		return nil
	}, nil
}

// advanceWatermark moves the watermark to newest and returns a function that
// puts the old value back unless something else moved it since.
func (f *Feed) advanceWatermark(newest int64) func(ctx context.Context) {
	ctx := context.Background()
	old := f.watermarks.Get(ctx, f.kind)
	if newest <= old {
		return nil
	}
	f.watermarks.Set(ctx, f.kind, newest)
	return func(ctx context.Context) {
		if f.watermarks.Get(ctx, f.kind) == newest {
			f.watermarks.Set(ctx, f.kind, old)
		}
	}
}

// remoteFor maps a mutation to its API call. Multi-item kinds without a
// bulk endpoint fan out one request per ID and fail on the first error.
func (f *Feed) remoteFor(ctx context.Context, m Mutation) error {
	switch m.Kind {
	case MutationMarkRead:
		for _, id := range m.IDs {
			if err := f.remote.MarkRead(ctx, id); err != nil {
				return err
			}
		}
		return nil
	case MutationDelete:
		for _, id := range m.IDs {
			if err := f.remote.Delete(ctx, f.kind, id); err != nil {
				return err
			}
		}
		return nil
	case MutationMarkAllRead:
		return f.remote.MarkAllRead(ctx, f.kind)
	case MutationDeleteAll:
		return f.remote.DeleteAll(ctx, f.kind)
	default:
		return fmt.Errorf("unknown mutation %s", m.Kind)
	}
}

func (f *Feed) mutate(ctx context.Context, m Mutation) error {
	commit, err := f.Optimistic(m)
	if err != nil {
		return err
	}
	return commit(ctx)
}

// MarkRead marks one notification read.
func (f *Feed) MarkRead(ctx context.Context, id int64) error {
	if f.kind != model.FeedNotifications {
		return ErrUnsupported
	}
	return f.mutate(ctx, Mutation{Kind: MutationMarkRead, IDs: []int64{id}})
}

// Delete removes one item.
func (f *Feed) Delete(ctx context.Context, id int64) error {
	return f.mutate(ctx, Mutation{Kind: MutationDelete, IDs: []int64{id}})
}

// MarkAllRead acknowledges the whole feed. For notifications every item's
// read flag is set optimistically and the watermark advances to the newest
// ID. Messages have no per-item flag, so only the watermark moves.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	if f.kind == model.FeedMessages {
		return f.MarkSeen(ctx)
	}
	return f.mutate(ctx, Mutation{Kind: MutationMarkAllRead})
}

// DeleteAll removes every item.
func (f *Feed) DeleteAll(ctx context.Context) error {
	return f.mutate(ctx, Mutation{Kind: MutationDeleteAll})
}

// MarkSeen advances the watermark to the newest item held locally. It
// never moves the watermark backwards.
func (f *Feed) MarkSeen(ctx context.Context) error {
	m, _, err := f.session()
	if err != nil {
		return err
	}
	newest := m.Current().MaxID()
	if newest > f.watermarks.Get(ctx, f.kind) {
		f.watermarks.Set(ctx, f.kind, newest)
	}
	return nil
}

// Draft returns the unsent message text.
func (f *Feed) Draft() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// SetDraft records the message being composed.
func (f *Feed) SetDraft(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = s
}

// Send posts the current draft. On success the returned message is
// appended and the draft cleared; on failure the draft is kept for retry.
// Sending never moves the history cursor.
func (f *Feed) Send(ctx context.Context) (model.FeedItem, error) {
	if f.kind != model.FeedMessages {
		return model.FeedItem{}, ErrUnsupported
	}
	m, gen, err := f.session()
	if err != nil {
		return model.FeedItem{}, err
	}

	body := strings.TrimSpace(f.Draft())
	if body == "" {
		return model.FeedItem{}, ErrEmptyMessage
	}

	item, err := f.remote.Send(ctx, f.kind, body)
	f.metrics.Send(err)
	if err != nil {
		f.log.Warnw("sending message failed", "error", err)
		return model.FeedItem{}, fmt.Errorf("sending message: %w", err)
	}
	if !f.current(gen) {
		return item, ErrDisposed
	}

	item.Kind = f.kind
	if item.Category == "" {
		item.Category = model.CategorySelf
	}
	m.Merge([]model.FeedItem{item})

	f.mu.Lock()
	if strings.TrimSpace(f.draft) == body {
		f.draft = ""
	}
	f.mu.Unlock()
	return item, nil
}
