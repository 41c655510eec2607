package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nhle/memberdesk/internal/model"
)

// FeedAPI is the set of feed operations the dashboard exposes.
type FeedAPI interface {
	Fetch(ctx context.Context, kind model.FeedKind) ([]model.FeedItem, error)
	FetchPage(ctx context.Context, kind model.FeedKind, page, pageSize int) ([]model.FeedItem, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, kind model.FeedKind) error
	Delete(ctx context.Context, kind model.FeedKind, id int64) error
	DeleteAll(ctx context.Context, kind model.FeedKind) error
	Send(ctx context.Context, kind model.FeedKind, body string) (model.FeedItem, error)
}

var _ FeedAPI = (*Client)(nil)

func feedPath(kind model.FeedKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown feed %q", kind)
	}
	return "/api/" + string(kind), nil
}

// Fetch returns the whole feed, oldest first as the API sends it.
func (c *Client) Fetch(ctx context.Context, kind model.FeedKind) ([]model.FeedItem, error) {
	path, err := feedPath(kind)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, kind, path)
}

// FetchPage returns one page of the feed, newest first. Pages start at 1.
func (c *Client) FetchPage(ctx context.Context, kind model.FeedKind, page, pageSize int) ([]model.FeedItem, error) {
	path, err := feedPath(kind)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return c.list(ctx, kind, path+"?"+q.Encode())
}

func (c *Client) list(ctx context.Context, kind model.FeedKind, path string) ([]model.FeedItem, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	payload, err := validate(c.schemas.list, body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	var items []model.FeedItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("GET %s: %w: %v", path, ErrMalformedResponse, err)
	}
	for i := range items {
		items[i].Kind = kind
	}
	return items, nil
}

// MarkRead marks a single notification read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", id), nil)
	return err
}

// MarkAllRead marks every item of the feed read.
func (c *Client) MarkAllRead(ctx context.Context, kind model.FeedKind) error {
	path, err := feedPath(kind)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, path+"/read-all", nil)
	return err
}

// Delete removes one item.
func (c *Client) Delete(ctx context.Context, kind model.FeedKind, id int64) error {
	path, err := feedPath(kind)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", path, id), nil)
	return err
}

// DeleteAll removes every item of the feed.
func (c *Client) DeleteAll(ctx context.Context, kind model.FeedKind) error {
	path, err := feedPath(kind)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// SendRequest is the body of a send-message call.
type SendRequest struct {
	Body string `json:"body"`
}

// Send posts a message and returns it as stored by the server.
func (c *Client) Send(ctx context.Context, kind model.FeedKind, body string) (model.FeedItem, error) {
	if kind != model.FeedMessages {
		return model.FeedItem{}, fmt.Errorf("cannot send to feed %q", kind)
	}
	path, _ := feedPath(kind)
	resp, err := c.do(ctx, http.MethodPost, path, SendRequest{Body: body})
	if err != nil {
		return model.FeedItem{}, err
	}
	payload, err := validate(c.schemas.single, resp)
	if err != nil {
		return model.FeedItem{}, fmt.Errorf("POST %s: %w", path, err)
	}
	var item model.FeedItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return model.FeedItem{}, fmt.Errorf("POST %s: %w: %v", path, ErrMalformedResponse, err)
	}
	item.Kind = kind
	return item, nil
}

// Ping verifies connectivity and credentials by fetching the notification feed.
func (c *Client) Ping(ctx context.Context) (int, error) {
	items, err := c.Fetch(ctx, model.FeedNotifications)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
