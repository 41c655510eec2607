package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/memberdesk/internal/devserver"
	"github.com/nhle/memberdesk/internal/model"
)

const testToken = "test-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func newDevClient(t *testing.T, opts devserver.Options) (*Client, *devserver.Server) {
	t.Helper()
	if opts.Token == "" {
		opts.Token = testToken
	}
	srv := devserver.New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, testToken, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return c, srv
}

func rawServer(t *testing.T, status int, body string) *Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, testToken)
	require.NoError(t, err)
	return c
}

func ids(items []model.FeedItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFetchAcceptsBareAndEnvelopedLists(t *testing.T) {
	for _, envelope := range []bool{false, true} {
		c, srv := newDevClient(t, devserver.Options{Envelope: envelope})
		srv.Push(model.FeedNotifications, model.FeedItem{Body: "a", Ref: &model.Ref{Type: model.RefDue, ID: 9}})
		srv.Push(model.FeedNotifications, model.FeedItem{Body: "b"})

		items, err := c.Fetch(context.Background(), model.FeedNotifications)
		require.NoError(t, err, "envelope=%v", envelope)
		assert.Equal(t, []int64{1, 2}, ids(items))
		assert.Equal(t, model.FeedNotifications, items[0].Kind)
		assert.Equal(t, "/dues/9", items[0].Link())
	}
}

func TestFetchPageNewestFirst(t *testing.T) {
	c, srv := newDevClient(t, devserver.Options{})
	for range 5 {
		srv.Push(model.FeedMessages, model.FeedItem{Body: "m"})
	}

	page, err := c.FetchPage(context.Background(), model.FeedMessages, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, ids(page))

	page, err = c.FetchPage(context.Background(), model.FeedMessages, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	c, srv := newDevClient(t, devserver.Options{})
	srv.Push(model.FeedNotifications, model.FeedItem{Body: "a"})
	srv.Push(model.FeedNotifications, model.FeedItem{Body: "b"})
	srv.Push(model.FeedMessages, model.FeedItem{Body: "m"})

	require.NoError(t, c.MarkRead(ctx, 1))
	assert.True(t, srv.Items(model.FeedNotifications)[0].Read)

	require.NoError(t, c.MarkAllRead(ctx, model.FeedNotifications))
	assert.True(t, srv.Items(model.FeedNotifications)[1].Read)

	require.NoError(t, c.Delete(ctx, model.FeedNotifications, 2))
	assert.Len(t, srv.Items(model.FeedNotifications), 1)

	require.NoError(t, c.DeleteAll(ctx, model.FeedMessages))
	assert.Empty(t, srv.Items(model.FeedMessages))

	var httpErr *HTTPError
	err := c.Delete(ctx, model.FeedNotifications, 99)
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestSendReturnsStoredMessage(t *testing.T) {
	for _, envelope := range []bool{false, true} {
		c, srv := newDevClient(t, devserver.Options{Envelope: envelope, Sender: "Alex"})
		srv.Push(model.FeedMessages, model.FeedItem{Body: "hi"})

		item, err := c.Send(context.Background(), model.FeedMessages, "hello back")
		require.NoError(t, err)
		assert.Equal(t, int64(2), item.ID)
		assert.Equal(t, "hello back", item.Body)
		assert.Equal(t, model.CategorySelf, item.Category)
		assert.Equal(t, model.FeedMessages, item.Kind)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c, _ := newDevClient(t, devserver.Options{})
	bad, err := NewClient(c.BaseURL(), "wrong")
	require.NoError(t, err)

	_, err = bad.Fetch(context.Background(), model.FeedNotifications)
	assert.True(t, IsAuthError(err))
}

func TestRetriesOnRateLimit(t *testing.T) {
	c, srv := newDevClient(t, devserver.Options{})
	srv.Push(model.FeedNotifications, model.FeedItem{Body: "a"})
	srv.FailNext(http.StatusTooManyRequests, http.StatusTooManyRequests)

	items, err := c.Fetch(context.Background(), model.FeedNotifications)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, testToken, WithMaxRetries(2))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), model.FeedNotifications)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestHeaders(t *testing.T) {
	seen := make(chan http.Header, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL+"/", testToken)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), model.FeedMessages)
	require.NoError(t, err)

	h := <-seen
	assert.Equal(t, "Bearer "+testToken, h.Get("Authorization"))
	assert.Len(t, h.Get(RequestIDHeader), 36)
}

func TestMalformedResponsesAreRejected(t *testing.T) {
	cases := map[string]string{
		"object without data": `{"items": []}`,
		"not json":            `<html>oops</html>`,
		"scalar":              `42`,
		"item without id":     `[{"body": "x"}]`,
		"string id":           `[{"id": "7"}]`,
		"data not a list":     `{"data": {"id": 1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := rawServer(t, http.StatusOK, body)
			items, err := c.Fetch(context.Background(), model.FeedNotifications)
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Nil(t, items)
		})
	}
}

func TestServerErrorMessage(t *testing.T) {
	c := rawServer(t, http.StatusBadGateway, `{"error": "upstream down"}`)

	err := c.MarkAllRead(context.Background(), model.FeedNotifications)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.True(t, strings.Contains(err.Error(), "upstream down"))
}

func TestUnknownFeedIsRejectedLocally(t *testing.T) {
	c := rawServer(t, http.StatusOK, `[]`)
	_, err := c.Fetch(context.Background(), model.FeedKind("audit"))
	assert.Error(t, err)
}

func TestSetCredentialsAppliesToNextRequest(t *testing.T) {
	c, _ := newDevClient(t, devserver.Options{})
	ctx := context.Background()

	_, err := c.Fetch(ctx, model.FeedNotifications)
	require.NoError(t, err)

	c.SetCredentials(c.BaseURL()+"/", "revoked")
	_, err = c.Fetch(ctx, model.FeedNotifications)
	assert.True(t, IsAuthError(err))
	assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
}
