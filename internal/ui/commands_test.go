package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/tests/testutil"
)

// deadlineRemote records whether Delete was called with a deadline.
type deadlineRemote struct {
	*testutil.FakeRemote
	hadDeadline bool
}

func (r *deadlineRemote) Delete(ctx context.Context, kind model.FeedKind, id int64) error {
	_, r.hadDeadline = ctx.Deadline()
	return r.FakeRemote.Delete(ctx, kind, id)
}

func TestMutateCommitsWithoutDeadline(t *testing.T) {
	ctx := context.Background()
	remote := &deadlineRemote{FakeRemote: testutil.NewFakeRemote()}
	remote.Seed(model.FeedNotifications, testutil.MakeItems(1, 2)...)
	f := feed.New(feed.Options{Kind: model.FeedNotifications, Remote: remote})
	f.Init(ctx)
	t.Cleanup(f.Dispose)
	items, err := remote.Fetch(ctx, model.FeedNotifications)
	require.NoError(t, err)
	_, err = f.ApplyPoll(f.Generation(), items)
	require.NoError(t, err)

	cmd, err := Mutate(f, feed.Mutation{Kind: feed.MutationDelete, IDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, f.Snapshot().IDs())

	done, ok := cmd().(MutationDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.Err)
	assert.Equal(t, feed.MutationDelete, done.Mutation)
	assert.False(t, remote.hadDeadline, "retries are bounded by the API client, not the command")
}

func TestMutateOnDisposedFeed(t *testing.T) {
	f := feed.New(feed.Options{Kind: model.FeedNotifications, Remote: testutil.NewFakeRemote()})

	_, err := Mutate(f, feed.Mutation{Kind: feed.MutationDelete, IDs: []int64{1}})
	assert.ErrorIs(t, err, feed.ErrDisposed)
}
