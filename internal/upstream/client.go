// Package upstream is the shared HTTP plumbing for the chain indexer and
// content API clients: one thin resty client with uniform error semantics,
// and the layered envelope decoding both feeds require.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound reports an upstream 404. List callers translate it to an empty
// collection, single-entity callers to an absent entity. It is never
// surfaced past the client layer.
var ErrNotFound = errors.New("upstream: not found")

// StatusError is a non-2xx upstream response other than the 404s covered by
// ErrNotFound. The body is kept so callers can look for a domain rejection
// envelope before giving up.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Status)
}

// Client talks to one upstream base URL. The timeout lives in the underlying
// resty client; the layers above add no retry or timeout of their own.
type Client struct {
	rest *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rest := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{rest: rest}
}

// Get fetches a path and returns the raw body. 404 becomes ErrNotFound,
// other non-2xx statuses a *StatusError.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Do sends an optional JSON payload and returns the raw response body under
// the same error semantics as Get. Resty marshals the payload and sets the
// Content-Type header.
func (c *Client) Do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	req := c.rest.R().SetContext(ctx)
	if payload != nil {
		req.SetBody(payload)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrNotFound
	case !resp.IsSuccess():
		return nil, &StatusError{Status: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}

// Ping reports whether the upstream answers at all. Any HTTP status counts
// as alive; only transport failures do not.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.rest.R().SetContext(ctx).Get("/")
	return err
}
