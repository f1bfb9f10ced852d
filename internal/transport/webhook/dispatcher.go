// Package webhook delivers aggregated responses to the caller's callback URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/domain/response"
	"github.com/tuexperto/taxsearch/internal/domain/result"
	"github.com/tuexperto/taxsearch/internal/metrics"
)

// Config holds delivery settings.
type Config struct {
	DefaultURL  string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Dispatcher posts result payloads to callback URLs. Transport failures are
// retried with exponential backoff; a reachable endpoint answering non-2xx is
// taken at its word and not retried.
type Dispatcher struct {
	client      *http.Client
	defaultURL  string
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewDispatcher creates a callback dispatcher.
func NewDispatcher(cfg *Config) *Dispatcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		client:      &http.Client{Timeout: timeout},
		defaultURL:  cfg.DefaultURL,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      cfg.Logger,
	}
}

// Deliver posts the aggregated response. An absent callback URL (request and
// config both empty) drops the payload with a log line; the retrieval itself
// stays successful.
func (d *Dispatcher) Deliver(ctx context.Context, callbackURL string, resp *response.Aggregated) error {
	url := callbackURL
	if url == "" {
		url = d.defaultURL
	}
	if url == "" {
		metrics.DeliveryAttemptsTotal.WithLabelValues("dropped").Inc()
		d.logger.Info("No callback URL, dropping payload",
			zap.String("session_id", resp.SessionID),
			zap.Bool("success", resp.Success),
		)
		return nil
	}

	body, err := json.Marshal(buildPayload(resp))
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		status, err := d.post(ctx, url, body)
		if err == nil {
			if status >= 200 && status < 300 {
				metrics.DeliveryAttemptsTotal.WithLabelValues("delivered").Inc()
				d.logger.Debug("Callback delivered",
					zap.String("url", url),
					zap.Int("status", status),
					zap.Int("attempt", attempt),
				)
				return nil
			}
			// The endpoint answered; retrying the same payload will not help.
			metrics.DeliveryAttemptsTotal.WithLabelValues("rejected").Inc()
			d.logger.Warn("Callback rejected",
				zap.String("url", url),
				zap.Int("status", status),
			)
			return fmt.Errorf("callback rejected with status %d", status)
		}

		lastErr = err
		metrics.DeliveryAttemptsTotal.WithLabelValues("transport_error").Inc()
		d.logger.Warn("Callback delivery attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.maxAttempts),
			zap.Error(err),
		)

		if attempt < d.maxAttempts {
			select {
			case <-time.After(d.backoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return fmt.Errorf("callback delivery canceled: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("callback delivery failed after %d attempts: %w", d.maxAttempts, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// itemPayload is the wire form of one result item.
type itemPayload struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
	Channel  string         `json:"channel"`
}

// payload is the wire form of the aggregated response.
type payload struct {
	Success    bool                     `json:"success"`
	Query      string                   `json:"query"`
	UserID     string                   `json:"user_id"`
	SessionID  string                   `json:"session_id"`
	Results    map[string][]itemPayload `json:"results"`
	Aggregated []itemPayload            `json:"aggregated,omitempty"`
	Error      *string                  `json:"error"`
	DurationMS int64                    `json:"duration_ms"`
}

func buildPayload(resp *response.Aggregated) payload {
	p := payload{
		Success:    resp.Success,
		Query:      resp.Query,
		UserID:     resp.UserID,
		SessionID:  resp.SessionID,
		Results:    make(map[string][]itemPayload, len(resp.Results)),
		DurationMS: resp.Duration.Milliseconds(),
	}
	for ch, items := range resp.Results {
		p.Results[ch.String()] = toItemPayloads(items)
	}
	if len(resp.Aggregated) > 0 {
		p.Aggregated = toItemPayloads(resp.Aggregated)
	}
	if resp.Error != "" {
		msg := resp.Error
		p.Error = &msg
	}
	return p
}

func toItemPayloads(items []result.Item) []itemPayload {
	out := make([]itemPayload, 0, len(items))
	for i := range items {
		out = append(out, itemPayload{
			Text:     items[i].Text(),
			Metadata: items[i].Metadata(),
			Score:    items[i].Score(),
			Channel:  items[i].Channel().String(),
		})
	}
	return out
}
