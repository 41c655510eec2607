package feed

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"

	"github.com/nhle/memberdesk/internal/model"
)

// MutationKind is a user-initiated change to a feed.
type MutationKind int

const (
	MutationMarkRead MutationKind = iota
	MutationDelete
	MutationMarkAllRead
	MutationDeleteAll
)

func (k MutationKind) String() string {
	switch k {
	case MutationMarkRead:
		return "mark_read"
	case MutationDelete:
		return "delete"
	case MutationMarkAllRead:
		return "mark_all_read"
	case MutationDeleteAll:
		return "delete_all"
	default:
		return fmt.Sprintf("mutation(%d)", int(k))
	}
}

// all reports whether the kind targets every item when no IDs are given.
func (k MutationKind) all() bool {
	return k == MutationMarkAllRead || k == MutationDeleteAll
}

// Mutation describes a change: its kind and the targeted IDs. For the
// "all" kinds a nil IDs slice means every item present at apply time.
type Mutation struct {
	Kind MutationKind
	IDs  []int64
}

// MutationState is the lifecycle of a single optimistic mutation.
type MutationState int

const (
	StateIdle MutationState = iota
	StateApplying
	StateRemotePending
	StateConfirmed
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApplying:
		return "applying"
	case StateRemotePending:
		return "remote_pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PendingMutation is the rollback capture of one in-flight operation: the
// pre-mutation version of each item the operation claimed.
type PendingMutation struct {
	seq      uint64
	mutation Mutation
	state    MutationState
	before   map[int64]model.FeedItem
}

// Mutation returns the descriptor with "all" kinds resolved to concrete IDs.
func (p *PendingMutation) Mutation() Mutation { return p.mutation }

// State returns the current lifecycle state. Callers must not race it
// with Resolve; the Mutator reads it under its own lock.
func (p *PendingMutation) State() MutationState { return p.state }

// Mutator holds a feed's live snapshot and applies optimistic mutations to
// it. Local changes are synchronous and serialized by the mutator's lock;
// only remote confirmation is unordered.
//
// Rollback is scoped per operation. Every item keeps the ordered chain of
// operations that touched it since the last full refresh. A failed
// operation restores an item only if it is still the latest toucher. If
// the next toucher is still pending it inherits the failed operation's
// capture, so its own rollback restores the true original. If the next
// toucher was confirmed its committed effect is left alone.
type Mutator struct {
	mu     gosync.Mutex
	snap   Snapshot
	chains map[int64][]*PendingMutation
	seq    uint64
}

// NewMutator creates a mutator over an empty snapshot of kind.
func NewMutator(kind model.FeedKind) *Mutator {
	return &Mutator{
		snap:   NewSnapshot(kind, nil),
		chains: make(map[int64][]*PendingMutation),
	}
}

// Current returns the live snapshot.
func (m *Mutator) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Pending reports whether an operation on id is awaiting remote confirmation.
func (m *Mutator) Pending(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.chains[id] {
		if p.state == StateRemotePending {
			return true
		}
	}
	return false
}

// InFlight returns the number of operations awaiting confirmation.
func (m *Mutator) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflightLocked())
}

func (m *Mutator) inflightLocked() []*PendingMutation {
	seen := make(map[*PendingMutation]struct{})
	var out []*PendingMutation
	for _, chain := range m.chains {
		for _, p := range chain {
			if p.state != StateRemotePending {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *PendingMutation) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// Begin applies mutation locally and returns its capture in the
// remote_pending state. The new snapshot is visible as soon as Begin returns.
func (m *Mutator) Begin(mutation Mutation) *PendingMutation {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	p := &PendingMutation{seq: m.seq, state: StateApplying}

	next, captured := m.snap.Apply(mutation)
	p.before = make(map[int64]model.FeedItem, len(captured))
	ids := make([]int64, 0, len(captured))
	for _, it := range captured {
		p.before[it.ID] = it
		ids = append(ids, it.ID)
		m.chains[it.ID] = append(m.chains[it.ID], p)
	}
	if mutation.Kind.all() && mutation.IDs == nil {
		p.mutation = Mutation{Kind: mutation.Kind, IDs: ids}
	} else {
		p.mutation = Mutation{Kind: mutation.Kind, IDs: slices.Clone(mutation.IDs)}
	}

	m.snap = next
	p.state = StateRemotePending
	return p
}

// Resolve finishes p. A nil err confirms it and leaves local state as is;
// a non-nil err rolls back the items p still owns. Resolving twice is a no-op.
func (m *Mutator) Resolve(p *PendingMutation, err error) MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.state != StateRemotePending {
		return p.state
	}
	if err == nil {
		p.state = StateConfirmed
		p.before = nil
		return p.state
	}

	var restore []model.FeedItem
	for id, prev := range p.before {
		chain := m.chains[id]
		i := slices.Index(chain, p)
		if i < 0 {
			continue
		}
		switch {
		case i == len(chain)-1:
			restore = append(restore, prev)
		case chain[i+1].state == StateRemotePending:
			chain[i+1].before[id] = prev
		}
		chain = slices.Delete(chain, i, i+1)
		if len(chain) == 0 {
			delete(m.chains, id)
		} else {
			m.chains[id] = chain
		}
	}
	m.snap = m.snap.Restore(restore)
	p.state = StateRolledBack
	p.before = nil
	return p.state
}

// Do runs the full optimistic cycle: apply locally, call remote, then
// confirm or roll back. The remote error is returned unchanged.
func (m *Mutator) Do(ctx context.Context, mutation Mutation, remote func(context.Context) error) error {
	p := m.Begin(mutation)
	err := remote(ctx)
	m.Resolve(p, err)
	return err
}

// Reset installs a freshly fetched snapshot. Operations still awaiting
// confirmation are re-applied on top of it in their original order, so a
// poll that raced a pending delete cannot resurrect the item; their
// captures are rebuilt against the fresh server state. Returns the
// previous and the installed snapshot.
func (m *Mutator) Reset(fresh Snapshot) (prev, next Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked(fresh, 0)
}

// ResetWindow refreshes only the newest part of the feed: items at or
// above the oldest ID of window are replaced by window, older items
// (history loaded page by page) are kept. An empty window clears the feed.
func (m *Mutator) ResetWindow(window []model.FeedItem) (prev, next Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := NewSnapshot(m.snap.kind, window)
	if fresh.Len() == 0 {
		return m.resetLocked(fresh, 0)
	}
	floor := fresh.MinID()
	var older []model.FeedItem
	for _, it := range m.snap.items {
		if it.ID >= floor {
			break
		}
		older = append(older, it)
	}
	return m.resetLocked(fresh.merge(older, nil), floor)
}

// resetLocked installs fresh and re-applies in-flight operations. Items
// below keepBelow were carried over from the local snapshot rather than
// refreshed from the server, so their existing captures stay valid.
func (m *Mutator) resetLocked(fresh Snapshot, keepBelow int64) (prev, next Snapshot) {
	prev = m.snap
	inflight := m.inflightLocked()
	m.chains = make(map[int64][]*PendingMutation)

	next = fresh
	for _, p := range inflight {
		var captured []model.FeedItem
		next, captured = next.Apply(Mutation{Kind: p.mutation.Kind, IDs: p.mutation.IDs})
		before := make(map[int64]model.FeedItem, len(p.before))
		for _, it := range captured {
			before[it.ID] = it
		}
		for id, it := range p.before {
			if id < keepBelow {
				before[id] = it
			}
		}
		for _, id := range sortedIDs(before) {
			m.chains[id] = append(m.chains[id], p)
		}
		p.before = before
	}
	m.snap = next
	return prev, next
}

func sortedIDs(items map[int64]model.FeedItem) []int64 {
	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Merge adds items older or newer than the current content. IDs already
// present, or claimed by a pending operation (such as an optimistically
// deleted item), are skipped.
func (m *Mutator) Merge(items []model.FeedItem) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap = m.snap.merge(items, func(id int64) bool {
		_, claimed := m.chains[id]
		return claimed
	})
	return m.snap
}
