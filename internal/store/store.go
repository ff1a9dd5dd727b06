// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store is a thin port over the shared approval-request row
// store. Rows live in a PostgREST-style keyed table; updates arrive
// back through a realtime websocket change feed.
//
// The hook side talks to the store with the anon credential plus the
// signed machine identity attached as a per-connection header; the
// webhook side uses the service credential. Row-level policy is
// enforced by the store itself (see schema.sql), not by this adapter.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status is the lifecycle state of an approval request row.
// pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusTimeout
}

// Request is one approval-request row.
type Request struct {
	ID           string     `json:"id"`
	Command      string     `json:"command"`
	DangerReason string     `json:"danger_reason"`
	Severity     string     `json:"severity"`
	CWD          string     `json:"cwd"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	MachineID    string     `json:"machine_id"`
}

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = fmt.Errorf("store: row not found")

const (
	requestsTable  = "approval_requests"
	rateLimitTable = "rate_limit_events"

	// identityHeader carries the signed machine identity. The row-level
	// INSERT policy reads it; the realtime transport cannot carry it,
	// which is why the SELECT policy is freshness-scoped instead.
	identityHeader = "X-Machine-Identity"
)

// Client talks to the row store's REST surface.
// One client per hook invocation; no process-wide caching.
type Client struct {
	baseURL    string
	apiKey     string
	identity   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithIdentity attaches a signed machine identity to every request.
func WithIdentity(signed string) Option {
	return func(c *Client) {
		c.identity = signed
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a store client for the given endpoint and credential.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// insertRow is the wire shape for inserts. created_at and the
// resolution fields are deliberately absent: the store stamps
// created_at itself, and an explicit zero timestamp would override the
// column default and make the row arrive already outside the
// freshness window.
type insertRow struct {
	ID           string `json:"id"`
	Command      string `json:"command"`
	DangerReason string `json:"danger_reason"`
	Severity     string `json:"severity"`
	CWD          string `json:"cwd"`
	Status       Status `json:"status"`
	MachineID    string `json:"machine_id"`
}

// InsertRequest inserts a new approval request row.
// The store's INSERT policy requires status=pending, empty resolution
// fields, and a machine_id of at least 16 characters.
func (c *Client) InsertRequest(ctx context.Context, req Request) error {
	body, err := json.Marshal(insertRow{
		ID:           req.ID,
		Command:      req.Command,
		DangerReason: req.DangerReason,
		Severity:     req.Severity,
		CWD:          req.CWD,
		Status:       req.Status,
		MachineID:    req.MachineID,
	})
	if err != nil {
		return fmt.Errorf("store: marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/"+requestsTable, nil, body, "return=minimal")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return c.statusError("insert", resp)
	}
	return nil
}

// GetRequest fetches one row by id. Returns ErrNotFound when the row
// does not exist or falls outside the store's SELECT freshness window.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("limit", "1")

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+requestsTable, query, nil, "")
	if err != nil {
		return Request{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Request{}, c.statusError("select", resp)
	}

	var rows []Request
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Request{}, fmt.Errorf("store: decode select: %w", err)
	}
	if len(rows) == 0 {
		return Request{}, ErrNotFound
	}
	return rows[0], nil
}

// ListPending returns pending rows created within the given window,
// newest first.
func (c *Client) ListPending(ctx context.Context, since time.Time) ([]Request, error) {
	query := url.Values{}
	query.Set("status", "eq."+string(StatusPending))
	query.Set("created_at", "gt."+since.UTC().Format(time.RFC3339))
	query.Set("order", "created_at.desc")

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+requestsTable, query, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("select", resp)
	}

	var rows []Request
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("store: decode select: %w", err)
	}
	return rows, nil
}

// ResolvePending transitions a row out of pending. The filter includes
// status=eq.pending so concurrent resolvers get exactly one winner;
// the returned count is the number of rows actually updated.
func (c *Client) ResolvePending(ctx context.Context, id string, status Status, resolvedBy string, at time.Time) (int, error) {
	patch, err := json.Marshal(map[string]any{
		"status":      status,
		"resolved_at": at.UTC().Format(time.RFC3339),
		"resolved_by": resolvedBy,
	})
	if err != nil {
		return 0, fmt.Errorf("store: marshal patch: %w", err)
	}

	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("status", "eq."+string(StatusPending))

	resp, err := c.do(ctx, http.MethodPatch, "/rest/v1/"+requestsTable, query, patch, "return=representation")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, c.statusError("update", resp)
	}

	var rows []Request
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("store: decode update: %w", err)
	}
	return len(rows), nil
}

// DeleteRequestsBefore removes approval rows older than cutoff.
func (c *Client) DeleteRequestsBefore(ctx context.Context, cutoff time.Time) error {
	query := url.Values{}
	query.Set("created_at", "lt."+cutoff.UTC().Format(time.RFC3339))
	return c.deleteWhere(ctx, requestsTable, query)
}

// InsertRateLimitEvent records one callback for the given identifier.
func (c *Client) InsertRateLimitEvent(ctx context.Context, identifier string) error {
	body, err := json.Marshal(map[string]string{"identifier": identifier})
	if err != nil {
		return fmt.Errorf("store: marshal rate limit event: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/"+rateLimitTable, nil, body, "return=minimal")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return c.statusError("insert", resp)
	}
	return nil
}

// CountRateLimitEvents counts events for identifier newer than since.
func (c *Client) CountRateLimitEvents(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := url.Values{}
	query.Set("identifier", "eq."+identifier)
	query.Set("created_at", "gt."+since.UTC().Format(time.RFC3339))
	query.Set("select", "identifier")

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+rateLimitTable, query, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, c.statusError("select", resp)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("store: decode count: %w", err)
	}
	return len(rows), nil
}

// DeleteRateLimitEventsBefore removes rate-limit rows older than cutoff.
func (c *Client) DeleteRateLimitEventsBefore(ctx context.Context, cutoff time.Time) error {
	query := url.Values{}
	query.Set("created_at", "lt."+cutoff.UTC().Format(time.RFC3339))
	return c.deleteWhere(ctx, rateLimitTable, query)
}

func (c *Client) deleteWhere(ctx context.Context, table string, query url.Values) error {
	resp, err := c.do(ctx, http.MethodDelete, "/rest/v1/"+table, query, nil, "return=minimal")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.statusError("delete", resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, prefer string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("store: build request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.identity != "" {
		req.Header.Set(identityHeader, c.identity)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// statusError drains a bounded amount of the error body for context.
// Response bodies can echo request fields, so nothing from them is
// logged without masking by the caller.
func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("store: %s returned HTTP %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
