package store

import (
	"context"
	"errors"

	"github.com/nhle/memberdesk/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the durable client-side state. The only state this client
// owns durably is one watermark per feed; snapshots and cursors are rebuilt
// from the remote API on every load.
type Store interface {
	// GetWatermark returns the persisted watermark for kind, or
	// ErrNotFound when none was ever written.
	GetWatermark(ctx context.Context, kind model.FeedKind) (int64, error)

	// SetWatermark writes the watermark for kind, replacing any previous value.
	SetWatermark(ctx context.Context, kind model.FeedKind, id int64) error

	// DeleteWatermark forgets the watermark for kind.
	DeleteWatermark(ctx context.Context, kind model.FeedKind) error

	// ListWatermarks returns every persisted watermark keyed by feed.
	ListWatermarks(ctx context.Context) (map[model.FeedKind]int64, error)
}
