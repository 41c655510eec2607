package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/store"
	"github.com/nhle/memberdesk/tests/testutil"
)

func TestGetWatermarkMissing(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetWatermark(context.Background(), model.FeedMessages)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetWatermarkReplaces(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWatermark(ctx, model.FeedMessages, 7))
	require.NoError(t, s.SetWatermark(ctx, model.FeedMessages, 3))
	require.NoError(t, s.SetWatermark(ctx, model.FeedNotifications, 12))

	got, err := s.GetWatermark(ctx, model.FeedMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	all, err := s.ListWatermarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.FeedKind]int64{
		model.FeedMessages:      3,
		model.FeedNotifications: 12,
	}, all)
}

func TestDeleteWatermark(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWatermark(ctx, model.FeedNotifications, 4))
	require.NoError(t, s.DeleteWatermark(ctx, model.FeedNotifications))

	_, err := s.GetWatermark(ctx, model.FeedNotifications)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWatermarkSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "desk.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetWatermark(ctx, model.FeedMessages, 42))
	require.NoError(t, s.Close())

	reopened, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetWatermark(ctx, model.FeedMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}
