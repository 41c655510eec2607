package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/tests/testutil"
)

var errRemote = errors.New("remote unavailable")

func newSeededMutator(ids ...int64) *Mutator {
	m := NewMutator(model.FeedNotifications)
	m.Reset(NewSnapshot(model.FeedNotifications, testutil.MakeItems(ids...)))
	return m
}

func readFlags(s Snapshot) map[int64]bool {
	out := make(map[int64]bool)
	for _, it := range s.Items() {
		out[it.ID] = it.Read
	}
	return out
}

func TestBeginAppliesImmediately(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	p := m.Begin(Mutation{Kind: MutationMarkRead, IDs: []int64{2}})

	assert.Equal(t, StateRemotePending, p.State())
	assert.True(t, m.Pending(2))
	assert.False(t, m.Pending(1))
	assert.Equal(t, map[int64]bool{1: false, 2: true, 3: false}, readFlags(m.Current()))
}

func TestConfirmKeepsLocalState(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	p := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})
	assert.Equal(t, StateConfirmed, m.Resolve(p, nil))

	assert.Equal(t, []int64{1, 3}, m.Current().IDs())
	assert.False(t, m.Pending(2))
	assert.Equal(t, 0, m.InFlight())
}

func TestRollbackRestoresOnlyItsOwnItems(t *testing.T) {
	m := newSeededMutator(1, 2, 3)
	before := readFlags(m.Current())

	markRead := m.Begin(Mutation{Kind: MutationMarkRead, IDs: []int64{2}})
	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{3}})

	assert.Equal(t, StateConfirmed, m.Resolve(del, nil))
	assert.Equal(t, StateRolledBack, m.Resolve(markRead, errRemote))

	snap := m.Current()
	assert.Equal(t, []int64{1, 2}, snap.IDs(), "the confirmed delete stays applied")
	it, _ := snap.Get(2)
	assert.Equal(t, before[2], it.Read, "item 2 is back to its pre-mutation flag")
	it, _ = snap.Get(1)
	assert.Equal(t, before[1], it.Read)
}

func TestRollbackDoesNotClobberLaterConfirmedMutation(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	markRead := m.Begin(Mutation{Kind: MutationMarkRead, IDs: []int64{2}})
	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})

	m.Resolve(del, nil)
	m.Resolve(markRead, errRemote)

	assert.False(t, m.Current().Contains(2), "rollback must not resurrect a confirmed delete")
}

func TestRollbackHandsCaptureToLaterPendingMutation(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	markRead := m.Begin(Mutation{Kind: MutationMarkRead, IDs: []int64{2}})
	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})

	// The earlier one fails first: the later delete still owns item 2.
	m.Resolve(markRead, errRemote)
	assert.False(t, m.Current().Contains(2))
	assert.True(t, m.Pending(2))

	// When the delete fails too, the item comes back in its original state.
	m.Resolve(del, errRemote)
	it, ok := m.Current().Get(2)
	require.True(t, ok)
	assert.False(t, it.Read)
	assert.False(t, m.Pending(2))
}

func TestRollbackInReverseOrderRestoresOriginal(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	markRead := m.Begin(Mutation{Kind: MutationMarkRead, IDs: []int64{2}})
	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})

	m.Resolve(del, errRemote)
	it, ok := m.Current().Get(2)
	require.True(t, ok)
	assert.True(t, it.Read, "only the delete is undone")

	m.Resolve(markRead, errRemote)
	it, _ = m.Current().Get(2)
	assert.False(t, it.Read)
}

func TestRollbackOfDeleteAllRestoresEverything(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	p := m.Begin(Mutation{Kind: MutationDeleteAll})
	assert.Equal(t, []int64{1, 2, 3}, p.Mutation().IDs)
	assert.Equal(t, 0, m.Current().Len())

	m.Resolve(p, errRemote)
	assert.Equal(t, []int64{1, 2, 3}, m.Current().IDs())
}

func TestResolveTwiceIsNoop(t *testing.T) {
	m := newSeededMutator(1, 2)

	p := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{1}})
	m.Resolve(p, nil)
	assert.Equal(t, StateConfirmed, m.Resolve(p, errRemote))
	assert.Equal(t, []int64{2}, m.Current().IDs())
}

func TestResetReappliesPendingMutations(t *testing.T) {
	m := newSeededMutator(1, 2, 3)

	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})

	// A poll that raced the delete still returns item 2.
	m.Reset(NewSnapshot(model.FeedNotifications, testutil.MakeItems(1, 2, 3, 4)))
	assert.Equal(t, []int64{1, 3, 4}, m.Current().IDs())

	m.Resolve(del, errRemote)
	assert.Equal(t, []int64{1, 2, 3, 4}, m.Current().IDs())
}

func TestResetDropsConfirmedHistory(t *testing.T) {
	m := newSeededMutator(1, 2)

	p := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{2}})
	m.Resolve(p, nil)

	// The server is authoritative once a full refresh lands.
	m.Reset(NewSnapshot(model.FeedNotifications, testutil.MakeItems(1, 2)))
	assert.Equal(t, []int64{1, 2}, m.Current().IDs())
}

func TestMergeSkipsItemsClaimedByPendingDelete(t *testing.T) {
	m := newSeededMutator(5, 6)

	m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{5}})
	m.Merge(testutil.MakeItems(3, 4, 5))

	assert.Equal(t, []int64{3, 4, 6}, m.Current().IDs())
}

func TestResetWindowKeepsOlderHistory(t *testing.T) {
	m := NewMutator(model.FeedMessages)
	m.Reset(NewSnapshot(model.FeedMessages, testutil.MakeItems(10, 11, 12)))
	m.Merge(testutil.MakeItems(7, 8, 9))

	prev, next := m.ResetWindow(testutil.MakeItems(11, 12, 13))

	assert.Equal(t, []int64{7, 8, 9, 10, 11, 12}, prev.IDs())
	assert.Equal(t, []int64{7, 8, 9, 10, 11, 12, 13}, next.IDs())
}

func TestResetWindowKeepsCaptureForOlderPendingDelete(t *testing.T) {
	m := NewMutator(model.FeedMessages)
	m.Reset(NewSnapshot(model.FeedMessages, testutil.MakeItems(1, 2, 3, 4)))

	del := m.Begin(Mutation{Kind: MutationDelete, IDs: []int64{1}})
	m.ResetWindow(testutil.MakeItems(3, 4, 5))
	assert.Equal(t, []int64{2, 3, 4, 5}, m.Current().IDs())

	m.Resolve(del, errRemote)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, m.Current().IDs())
}

func TestDoRunsFullCycle(t *testing.T) {
	m := newSeededMutator(1, 2)

	err := m.Do(context.Background(), Mutation{Kind: MutationDelete, IDs: []int64{1}},
		func(context.Context) error { return errRemote })

	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, []int64{1, 2}, m.Current().IDs())

	err = m.Do(context.Background(), Mutation{Kind: MutationDelete, IDs: []int64{1}},
		func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, []int64{2}, m.Current().IDs())
}
