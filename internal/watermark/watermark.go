// Package watermark keeps the "last seen identifier" of each feed. Values
// are cached in memory and written through to durable storage; the cache
// is authoritative for the session when persistence fails.
package watermark

import (
	"context"
	"errors"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/store"
)

// Backend is the durable storage a Store writes through to.
type Backend interface {
	GetWatermark(ctx context.Context, kind model.FeedKind) (int64, error)
	SetWatermark(ctx context.Context, kind model.FeedKind, id int64) error
	DeleteWatermark(ctx context.Context, kind model.FeedKind) error
}

// Store reads and writes one watermark per feed.
type Store struct {
	mu      gosync.Mutex
	backend Backend
	values  map[model.FeedKind]int64
	log     *zap.SugaredLogger
}

// New creates a Store over backend. A nil backend keeps values in memory only.
func New(backend Backend, log *zap.SugaredLogger) *Store {
	return &Store{
		backend: backend,
		values:  make(map[model.FeedKind]int64),
		log:     logger.OrNop(log),
	}
}

// Get returns the watermark for kind, or 0 when the feed was never seen.
// The durable value is read once and cached afterwards.
func (s *Store) Get(ctx context.Context, kind model.FeedKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[kind]; ok {
		return v
	}

	var v int64
	if s.backend != nil {
		got, err := s.backend.GetWatermark(ctx, kind)
		switch {
		case err == nil:
			v = got
		case errors.Is(err, store.ErrNotFound):
		default:
			// Do not cache: the next read retries the backend.
			s.log.Warnw("reading watermark failed", "feed", kind, "error", err)
			return 0
		}
	}
	s.values[kind] = v
	return v
}

// Set records id as the watermark for kind. The store does not enforce
// monotonicity; callers may legitimately move it backwards. A failed write
// is logged and the in-memory value is kept.
func (s *Store) Set(ctx context.Context, kind model.FeedKind, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[kind] = id
	if s.backend == nil {
		return
	}
	if err := s.backend.SetWatermark(ctx, kind, id); err != nil {
		s.log.Warnw("persisting watermark failed", "feed", kind, "id", id, "error", err)
	}
}

// Reset forgets the watermark for kind, so Get returns 0 again.
func (s *Store) Reset(ctx context.Context, kind model.FeedKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[kind] = 0
	if s.backend == nil {
		return
	}
	if err := s.backend.DeleteWatermark(ctx, kind); err != nil {
		s.log.Warnw("deleting watermark failed", "feed", kind, "error", err)
	}
}
