package model

import "time"

// Alert is a short-lived notice surfaced for an item that arrived since
// the previous poll.
type Alert struct {
	// Feed is the feed the item arrived on.
	Feed FeedKind `json:"feed"`

	// ItemID is the identifier of the newly arrived item.
	ItemID int64 `json:"item_id"`

	// Category drives the alert's styling.
	Category Category `json:"category"`

	// Message is the human-readable alert text.
	Message string `json:"message"`

	// Link is the deep-link route of the item, if any.
	Link string `json:"link,omitempty"`

	// CreatedAt is when the alert was raised locally.
	CreatedAt time.Time `json:"created_at"`
}

// NewAlert builds an alert for a newly arrived feed item.
func NewAlert(item FeedItem, now time.Time) Alert {
	msg := item.Body
	if item.Kind == FeedMessages && item.Sender != "" {
		msg = item.Sender + ": " + item.Body
	}
	return Alert{
		Feed:      item.Kind,
		ItemID:    item.ID,
		Category:  item.Category,
		Message:   msg,
		Link:      item.Link(),
		CreatedAt: now,
	}
}

// Expired reports whether the alert has outlived ttl at now.
func (a Alert) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) >= ttl
}
