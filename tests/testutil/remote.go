package testutil

import (
	"context"
	"slices"
	gosync "sync"
	"time"

	"github.com/nhle/memberdesk/internal/model"
)

// Remote operation names used as keys for FakeRemote errors and call counts.
const (
	OpFetch       = "fetch"
	OpFetchPage   = "fetch_page"
	OpMarkRead    = "mark_read"
	OpMarkAllRead = "mark_all_read"
	OpDelete      = "delete"
	OpDeleteAll   = "delete_all"
	OpSend        = "send"
)

// FakeRemote is an in-memory dashboard API. Feeds are stored oldest first
// and behave like the real backend; Fail injects errors per operation.
type FakeRemote struct {
	mu     gosync.Mutex
	feeds  map[model.FeedKind][]model.FeedItem
	errors map[string]error
	calls  map[string]int
	nextID int64

	// Gate, when set, blocks every call until it receives a value or is closed.
	Gate chan struct{}
}

// NewFakeRemote creates an empty fake API.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		feeds:  make(map[model.FeedKind][]model.FeedItem),
		errors: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Seed replaces the server-side content of a feed.
func (f *FakeRemote) Seed(kind model.FeedKind, items ...model.FeedItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range items {
		items[i].Kind = kind
		if items[i].ID > f.nextID {
			f.nextID = items[i].ID
		}
	}
	f.feeds[kind] = slices.Clone(items)
}

// Add appends items to a feed, as if they had just arrived.
func (f *FakeRemote) Add(kind model.FeedKind, items ...model.FeedItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		it.Kind = kind
		if it.ID > f.nextID {
			f.nextID = it.ID
		}
		f.feeds[kind] = append(f.feeds[kind], it)
	}
}

// Items returns the server-side content of a feed.
func (f *FakeRemote) Items(kind model.FeedKind) []model.FeedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.feeds[kind])
}

// Fail makes op return err until cleared with Fail(op, nil).
func (f *FakeRemote) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errors, op)
		return
	}
	f.errors[op] = err
}

// Calls returns how many times op was invoked.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeRemote) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[op]
}

// Fetch returns the whole feed, oldest first.
func (f *FakeRemote) Fetch(ctx context.Context, kind model.FeedKind) ([]model.FeedItem, error) {
	if err := f.enter(ctx, OpFetch); err != nil {
		return nil, err
	}
	return f.Items(kind), nil
}

// FetchPage returns one page of the feed, newest first, pages numbered from 1.
func (f *FakeRemote) FetchPage(ctx context.Context, kind model.FeedKind, page, pageSize int) ([]model.FeedItem, error) {
	if err := f.enter(ctx, OpFetchPage); err != nil {
		return nil, err
	}
	items := f.Items(kind)
	slices.Reverse(items)

	start := (page - 1) * pageSize
	if start >= len(items) || start < 0 {
		return []model.FeedItem{}, nil
	}
	end := min(start+pageSize, len(items))
	return items[start:end], nil
}

// MarkRead marks a notification read.
func (f *FakeRemote) MarkRead(ctx context.Context, id int64) error {
	if err := f.enter(ctx, OpMarkRead); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.feeds[model.FeedNotifications]
	for i := range items {
		if items[i].ID == id {
			items[i].Read = true
		}
	}
	return nil
}

// MarkAllRead marks every item of a feed read.
func (f *FakeRemote) MarkAllRead(ctx context.Context, kind model.FeedKind) error {
	if err := f.enter(ctx, OpMarkAllRead); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.feeds[kind]
	for i := range items {
		items[i].Read = true
	}
	return nil
}

// Delete removes one item.
func (f *FakeRemote) Delete(ctx context.Context, kind model.FeedKind, id int64) error {
	if err := f.enter(ctx, OpDelete); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[kind] = slices.DeleteFunc(f.feeds[kind], func(it model.FeedItem) bool {
		return it.ID == id
	})
	return nil
}

// DeleteAll empties a feed.
func (f *FakeRemote) DeleteAll(ctx context.Context, kind model.FeedKind) error {
	if err := f.enter(ctx, OpDeleteAll); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[kind] = nil
	return nil
}

// Send appends a message authored by the current user.
func (f *FakeRemote) Send(ctx context.Context, kind model.FeedKind, body string) (model.FeedItem, error) {
	if err := f.enter(ctx, OpSend); err != nil {
		return model.FeedItem{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	it := model.FeedItem{
		ID:        f.nextID,
		Kind:      kind,
		Category:  model.CategorySelf,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	f.feeds[kind] = append(f.feeds[kind], it)
	return it, nil
}

// MakeItems builds unread feed items with the given IDs.
func MakeItems(ids ...int64) []model.FeedItem {
	out := make([]model.FeedItem, len(ids))
	for i, id := range ids {
		out[i] = model.FeedItem{
			ID:       id,
			Category: model.CategoryInfo,
			Body:     "item",
		}
	}
	return out
}
