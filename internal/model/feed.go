package model

import (
	"fmt"
	"time"
)

// FeedKind identifies one of the dashboard's polled feeds. It doubles as
// the key under which the feed's watermark is persisted.
type FeedKind string

const (
	FeedNotifications FeedKind = "notifications"
	FeedMessages      FeedKind = "messages"
)

// Valid reports whether k names a known feed.
func (k FeedKind) Valid() bool {
	return k == FeedNotifications || k == FeedMessages
}

// Category tags a feed item for styling. Notifications use the severity
// categories; messages use the sender role.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"

	CategoryAdmin  Category = "admin"
	CategoryMember Category = "member"
	CategorySelf   Category = "self"
)

// RefType identifies the domain entity a feed item links to.
type RefType string

const (
	RefDue      RefType = "due"
	RefActivity RefType = "activity"
)

// Ref is an optional cross-reference from a feed item to a related
// domain entity, used for deep-linking.
type Ref struct {
	Type RefType `json:"type"`
	ID   int64   `json:"id"`
}

// Route returns the dashboard path the reference deep-links to.
func (r Ref) Route() string {
	switch r.Type {
	case RefDue:
		return fmt.Sprintf("/dues/%d", r.ID)
	case RefActivity:
		return fmt.Sprintf("/activities/%d", r.ID)
	default:
		return ""
	}
}

// FeedItem is a single notification or message.
type FeedItem struct {
	// ID is unique within its feed and strictly increasing in arrival
	// order. It orders the feed and is compared against the watermark.
	ID int64 `json:"id"`

	// Kind is the feed the item belongs to.
	Kind FeedKind `json:"kind"`

	// Category is the severity (notifications) or sender role (messages).
	Category Category `json:"category"`

	// Body is the text shown to the user.
	Body string `json:"body"`

	// Sender is the display name of the author (messages only).
	Sender string `json:"sender,omitempty"`

	// CreatedAt is when the backend created the item.
	CreatedAt time.Time `json:"created_at"`

	// Read is only meaningful for notifications.
	Read bool `json:"read"`

	// Ref optionally links the item to a due or an activity.
	Ref *Ref `json:"ref,omitempty"`
}

// Link returns the deep-link route for the item, or "" when it has none.
func (i FeedItem) Link() string {
	if i.Ref == nil {
		return ""
	}
	return i.Ref.Route()
}
