// Package client is a small Go client for the alarmd observation API.
//
// The API is read-only — alarms are started and changed on the daemon's
// console, not over HTTP — so the client only observes:
//
//	c := client.New("http://localhost:8080")
//
//	h, err := c.Health(ctx)
//	alarms, err := c.Alarms(ctx)
//	a, err := c.Alarm(ctx, 2345)
//	events, err := c.Journal(ctx, 50)
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Use IsNotFound(err) to distinguish a missing alarm from a
// transport failure.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client
// internally so connections are reused across goroutines.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the alarmd server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alarmd: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the alarmd observation API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client that connects to the alarmd instance at baseURL.
//
//	c := client.New("http://localhost:8080")
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Domain types ─────────────────────────────────────────────────────────────

// Alarm is one live alarm as reported by the server.
type Alarm struct {
	ID       int64  `json:"id"`
	Seconds  int    `json:"seconds"`
	Message  string `json:"message"`
	DueAt    int64  `json:"due_at"` // unix ms
	Revision uint64 `json:"revision"`
	State    string `json:"state"`
}

// Event is one journaled notification.
type Event struct {
	Type     string `json:"type"`
	AlarmID  int64  `json:"alarm_id"`
	WorkerID int64  `json:"worker_id,omitempty"`
	At       int64  `json:"at"` // unix seconds
	Seconds  int    `json:"seconds,omitempty"`
	Message  string `json:"message,omitempty"`
	Revision uint64 `json:"revision,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// HealthInfo contains the data returned by the /health endpoint.
type HealthInfo struct {
	Status      string
	NodeID      string
	Uptime      time.Duration
	LiveAlarms  int
	LiveWorkers int
}

// ─── Operations ───────────────────────────────────────────────────────────────

// Health checks the server's /health endpoint and returns the node's status.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var resp struct {
		Status      string `json:"status"`
		NodeID      string `json:"node_id"`
		UptimeSec   int64  `json:"uptime_sec"`
		LiveAlarms  int    `json:"live_alarms"`
		LiveWorkers int    `json:"live_workers"`
	}
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &HealthInfo{
		Status:      resp.Status,
		NodeID:      resp.NodeID,
		Uptime:      time.Duration(resp.UptimeSec) * time.Second,
		LiveAlarms:  resp.LiveAlarms,
		LiveWorkers: resp.LiveWorkers,
	}, nil
}

// Alarms returns every live alarm, ordered by id.
func (c *Client) Alarms(ctx context.Context) ([]*Alarm, error) {
	var resp struct {
		Alarms []*Alarm `json:"alarms"`
	}
	if err := c.get(ctx, "/alarms", &resp); err != nil {
		return nil, err
	}
	return resp.Alarms, nil
}

// Alarm returns the live alarm with the given id.
// Returns an *APIError with StatusCode 404 when no such alarm is live;
// check with IsNotFound.
func (c *Client) Alarm(ctx context.Context, id int64) (*Alarm, error) {
	var a Alarm
	if err := c.get(ctx, "/alarms/"+strconv.FormatInt(id, 10), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Journal returns up to limit journaled events, newest first.
// limit <= 0 uses the server default.
func (c *Client) Journal(ctx context.Context, limit int) ([]*Event, error) {
	path := "/journal"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Events []*Event `json:"events"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

// get performs a single GET request and decodes the JSON response into resp.
func (c *Client) get(ctx context.Context, path string, resp any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("alarmd: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alarmd: request GET %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("alarmd: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("alarmd: decode response: %w", err)
		}
	}
	return nil
}
