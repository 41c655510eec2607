package feed

import (
	"cmp"
	"slices"

	"github.com/nhle/memberdesk/internal/model"
)

// Snapshot is an immutable, ID-ordered view of a feed. Every operation
// returns a new Snapshot and leaves the receiver untouched, so holding on
// to an old Snapshot is a valid rollback capture.
//
// Items are kept oldest first and unique by ID.
type Snapshot struct {
	kind  model.FeedKind
	items []model.FeedItem
}

// NewSnapshot builds a snapshot of kind from items in any order.
// Duplicate IDs keep their first occurrence.
func NewSnapshot(kind model.FeedKind, items []model.FeedItem) Snapshot {
	return Snapshot{kind: kind, items: normalize(items)}
}

// normalize returns a sorted, deduplicated copy of items.
func normalize(items []model.FeedItem) []model.FeedItem {
	if len(items) == 0 {
		return nil
	}
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b model.FeedItem) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return slices.CompactFunc(out, func(a, b model.FeedItem) bool {
		return a.ID == b.ID
	})
}

// Kind returns the feed the snapshot belongs to.
func (s Snapshot) Kind() model.FeedKind { return s.kind }

// Len returns the number of items.
func (s Snapshot) Len() int { return len(s.items) }

// Items returns a copy of the items, oldest first.
func (s Snapshot) Items() []model.FeedItem { return slices.Clone(s.items) }

// IDs returns the item identifiers, oldest first.
func (s Snapshot) IDs() []int64 {
	ids := make([]int64, len(s.items))
	for i, it := range s.items {
		ids[i] = it.ID
	}
	return ids
}

// MaxID returns the newest identifier, or 0 for an empty snapshot.
func (s Snapshot) MaxID() int64 {
	if len(s.items) == 0 {
		return 0
	}
	return s.items[len(s.items)-1].ID
}

// MinID returns the oldest identifier, or 0 for an empty snapshot.
func (s Snapshot) MinID() int64 {
	if len(s.items) == 0 {
		return 0
	}
	return s.items[0].ID
}

func (s Snapshot) index(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.items, id, func(it model.FeedItem, id int64) int {
		return cmp.Compare(it.ID, id)
	})
}

// Get returns the item with id.
func (s Snapshot) Get(id int64) (model.FeedItem, bool) {
	i, ok := s.index(id)
	if !ok {
		return model.FeedItem{}, false
	}
	return s.items[i], true
}

// Contains reports whether an item with id is present.
func (s Snapshot) Contains(id int64) bool {
	_, ok := s.index(id)
	return ok
}

// Replace substitutes the whole content, as after a full poll.
func (s Snapshot) Replace(items []model.FeedItem) Snapshot {
	return NewSnapshot(s.kind, items)
}

// Prepend merges older items into the snapshot. Items whose ID is already
// present are dropped, so a page racing with a refresh cannot duplicate.
func (s Snapshot) Prepend(older []model.FeedItem) Snapshot {
	return s.merge(older, nil)
}

// Append merges newer items, such as a just-sent message, into the
// snapshot. Existing IDs are dropped.
func (s Snapshot) Append(newer []model.FeedItem) Snapshot {
	return s.merge(newer, nil)
}

// merge inserts the items not already present and not rejected by skip.
func (s Snapshot) merge(in []model.FeedItem, skip func(id int64) bool) Snapshot {
	add := normalize(in)
	add = slices.DeleteFunc(add, func(it model.FeedItem) bool {
		return s.Contains(it.ID) || (skip != nil && skip(it.ID))
	})
	if len(add) == 0 {
		return s
	}

	out := make([]model.FeedItem, 0, len(s.items)+len(add))
	i, j := 0, 0
	for i < len(s.items) && j < len(add) {
		if s.items[i].ID < add[j].ID {
			out = append(out, s.items[i])
			i++
		} else {
			out = append(out, add[j])
			j++
		}
	}
	out = append(out, s.items[i:]...)
	out = append(out, add[j:]...)
	return Snapshot{kind: s.kind, items: out}
}

// Apply runs m against the snapshot. It returns the new snapshot and the
// pre-mutation state of every targeted item that was present, which is
// exactly what a rollback needs to restore. Items already in the target
// state are still captured: the operation claims them.
func (s Snapshot) Apply(m Mutation) (Snapshot, []model.FeedItem) {
	ids := m.IDs
	if m.Kind.all() && ids == nil {
		ids = s.IDs()
	}
	targets := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}

	var captured []model.FeedItem
	out := make([]model.FeedItem, 0, len(s.items))
	for _, it := range s.items {
		if _, ok := targets[it.ID]; !ok {
			out = append(out, it)
			continue
		}
		captured = append(captured, it)
		switch m.Kind {
		case MutationMarkRead, MutationMarkAllRead:
			it.Read = true
			out = append(out, it)
		case MutationDelete, MutationDeleteAll:
			// dropped
		}
	}
	return Snapshot{kind: s.kind, items: out}, captured
}

// Restore puts the given item versions back: present items are replaced,
// missing ones are reinserted at their ordered position.
func (s Snapshot) Restore(prev []model.FeedItem) Snapshot {
	if len(prev) == 0 {
		return s
	}
	byID := make(map[int64]model.FeedItem, len(prev))
	for _, it := range prev {
		byID[it.ID] = it
	}

	out := make([]model.FeedItem, 0, len(s.items)+len(prev))
	for _, it := range s.items {
		if p, ok := byID[it.ID]; ok {
			out = append(out, p)
			delete(byID, it.ID)
			continue
		}
		out = append(out, it)
	}
	for _, it := range byID {
		out = append(out, it)
	}
	return NewSnapshot(s.kind, out)
}

// UnreadCount returns the number of unread items. Notifications carry a
// per-item read flag and ignore the watermark; messages are never marked
// individually and count everything above the watermark.
func (s Snapshot) UnreadCount(watermark int64) int {
	n := 0
	switch s.kind {
	case model.FeedMessages:
		for _, it := range s.items {
			if it.ID > watermark {
				n++
			}
		}
	default:
		for _, it := range s.items {
			if !it.Read {
				n++
			}
		}
	}
	return n
}

// Diff returns the items of s whose IDs are absent from prev. When prev
// is empty nothing is reported, so the first load of a session stays quiet.
func (s Snapshot) Diff(prev Snapshot) []model.FeedItem {
	if prev.Len() == 0 {
		return nil
	}
	var fresh []model.FeedItem
	for _, it := range s.items {
		if !prev.Contains(it.ID) {
			fresh = append(fresh, it)
		}
	}
	return fresh
}
