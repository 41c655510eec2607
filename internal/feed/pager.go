package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	gosync "sync"
)

// ErrLoadInFlight is returned by LoadNext while a page is still loading.
var ErrLoadInFlight = errors.New("history page already loading")

// firstHistoryPage is the first page the pager requests. Page 1 is the
// live window kept fresh by polling.
const firstHistoryPage = 2

// Cursor is the backward pagination position.
type Cursor struct {
	// Page is the next page to request.
	Page int

	// PageSize is the fixed number of items requested per page.
	PageSize int

	// HasMore turns false once a page shorter than PageSize comes back.
	HasMore bool
}

// PageResult describes one LoadNext call.
type PageResult struct {
	// Fetched is the number of items the API returned.
	Fetched int

	// Added is how many of them were new to the snapshot.
	Added int

	Cursor Cursor
}

// Pager loads older message history page by page, typically when the
// scroll region reaches its top edge.
type Pager struct {
	feed *Feed

	mu       gosync.Mutex
	cursor   Cursor
	inFlight bool
}

func newPager(f *Feed) *Pager {
	p := &Pager{feed: f}
	p.Reset()
	return p
}

// Reset rewinds the cursor for a fresh conversation.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = Cursor{
		Page:     firstHistoryPage,
		PageSize: p.feed.pageSize,
		HasMore:  true,
	}
}

// Cursor returns the current cursor.
func (p *Pager) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Loading reports whether a page fetch is in flight.
func (p *Pager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// LoadNext fetches the next older page and prepends it. It is a no-op once
// history is exhausted, and returns ErrLoadInFlight without fetching while
// another call is running, so one scroll gesture triggers at most one fetch.
// On failure the cursor is left unchanged for the next trigger to retry.
func (p *Pager) LoadNext(ctx context.Context) (PageResult, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return PageResult{}, ErrLoadInFlight
	}
	cur := p.cursor
	if !cur.HasMore {
		p.mu.Unlock()
		return PageResult{Cursor: cur}, nil
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	f := p.feed
	m, gen, err := f.session()
	if err != nil {
		return PageResult{Cursor: cur}, err
	}

	page, err := f.remote.FetchPage(ctx, f.kind, cur.Page, cur.PageSize)
	f.metrics.Page(err)
	if err != nil {
		f.log.Warnw("loading history page failed", "page", cur.Page, "error", err)
		return PageResult{Cursor: cur}, fmt.Errorf("loading page %d: %w", cur.Page, err)
	}
	if !f.current(gen) {
		return PageResult{Cursor: cur}, ErrDisposed
	}

	// Pages arrive newest first.
	older := normalizeKind(f.kind, page)
	slices.Reverse(older)

	before := m.Current().Len()
	added := m.Merge(older).Len() - before

	p.mu.Lock()
	if len(page) > 0 {
		p.cursor.Page = cur.Page + 1
	}
	if len(page) < cur.PageSize {
		p.cursor.HasMore = false
	}
	next := p.cursor
	p.mu.Unlock()

	return PageResult{Fetched: len(page), Added: added, Cursor: next}, nil
}
