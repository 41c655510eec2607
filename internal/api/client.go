// Package api is the HTTP client for the membership dashboard's feed
// endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/logger"
)

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Client is a thin HTTP client for the dashboard REST API. It handles
// Bearer token authentication, JSON marshaling, response validation and
// automatic retry with exponential backoff on HTTP 429.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	token   string

	httpClient *http.Client
	maxRetries int
	schemas    *schemas
	log        *zap.SugaredLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a rate-limited request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets the client's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = logger.OrNop(log) }
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. https://dashboard.example.org). token is sent as a Bearer token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		schemas:    sch,
		log:        logger.OrNop(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	baseURL, _ := c.credentials()
	return baseURL
}

// SetCredentials points the client at a new API root and token, e.g.
// after the user logs in again. Requests already in flight keep the old
// values.
func (c *Client) SetCredentials(baseURL, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.token = token
}

func (c *Client) credentials() (baseURL, token string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.token
}

// do builds the request, handles auth and rate limiting, and returns the
// body of a 2xx response.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
) ([]byte, error) {
	baseURL, token := c.credentials()
	url := baseURL + path

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		reqID := uuid.NewString()
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set(RequestIDHeader, reqID)
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}

		c.log.Debugw("api request",
			"method", method, "path", path,
			"status", resp.StatusCode, "request_id", reqID)

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfterDuration(resp, attempt)
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: "rate limited"}
			if attempt == c.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{
				BaseURL: baseURL,
				Message: "check your API token",
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr errorResponse
			msg := strings.TrimSpace(string(respBody))
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.text() != "" {
				msg = apiErr.text()
			}
			return nil, &HTTPError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    msg,
			}
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
