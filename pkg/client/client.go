// Package client is a minimal Go client for the taxsearch accept API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client talks to a running taxsearch instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Caller identifies the requesting user on its messaging channel.
type Caller struct {
	ChannelType string            `json:"channel_type"`
	ExternalID  string            `json:"external_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SearchRequest is the accept API payload. Results are delivered to
// CallbackURL, not returned here.
type SearchRequest struct {
	Query       string   `json:"query"`
	Channels    []string `json:"channels"`
	TopK        int      `json:"top_k,omitempty"`
	User        Caller   `json:"user"`
	SessionID   string   `json:"session_id,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// Ack is the accept acknowledgement.
type Ack struct {
	Status    string   `json:"status"`
	Query     string   `json:"query"`
	Channels  []string `json:"channels"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taxsearch: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Search schedules an asynchronous retrieval and returns the acknowledgement.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*Ack, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, decodeAPIError(resp)
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	return &ack, nil
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports the service's component health. A degraded or unhealthy
// service still returns a status, not an error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	defer resp.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &status, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		apiErr.Code = "unknown"
		apiErr.Message = resp.Status
	}
	return apiErr
}
