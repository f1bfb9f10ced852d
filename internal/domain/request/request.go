// Package request defines the validated retrieval request value object.
package request

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

// Request parameter limits.
const (
	MaxQueryLength = 1000
	DefaultTopK    = 5
	MaxTopK        = 20
)

// Caller identifies the requesting user on an inbound messaging channel.
type Caller struct {
	ChannelType string            // "telegram", "whatsapp", "web", ...
	ExternalID  string            // user id on that channel
	Metadata    map[string]string // display metadata: username, first_name, ...
}

// Request is a validated retrieval request.
type Request struct {
	query       string
	channels    []channel.Channel
	topK        int
	caller      Caller
	sessionID   string
	callbackURL string
}

// New validates and normalizes request parameters.
// Defaults: topK=5 clamped to maxTopK (MaxTopK when maxTopK<=0).
// Duplicate channels are dropped, first occurrence wins.
func New(
	query string,
	channels []string,
	topK int,
	maxTopK int,
	caller Caller,
	sessionID string,
	callbackURL string,
) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.ErrEmptyQuery
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w (max %d chars)", domain.ErrQueryTooLong, MaxQueryLength)
	}

	if len(channels) == 0 {
		return Request{}, domain.ErrNoChannels
	}
	seen := make(map[channel.Channel]bool, len(channels))
	parsed := make([]channel.Channel, 0, len(channels))
	for _, raw := range channels {
		c, err := channel.Parse(raw)
		if err != nil {
			return Request{}, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		parsed = append(parsed, c)
	}

	if maxTopK <= 0 {
		maxTopK = MaxTopK
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	if caller.ChannelType == "" || caller.ExternalID == "" {
		return Request{}, domain.ErrMissingCaller
	}

	if callbackURL != "" {
		u, err := url.Parse(callbackURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Request{}, fmt.Errorf("%w: %q", domain.ErrInvalidCallback, callbackURL)
		}
	}

	return Request{
		query:       query,
		channels:    parsed,
		topK:        topK,
		caller:      caller,
		sessionID:   sessionID,
		callbackURL: callbackURL,
	}, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// Channels returns the requested channels in caller order, deduplicated.
func (r *Request) Channels() []channel.Channel { return r.channels }

// TopK returns the clamped per-channel result count.
func (r *Request) TopK() int { return r.topK }

// Caller returns the caller identity.
func (r *Request) Caller() Caller { return r.caller }

// SessionID returns the supplied session id, empty when absent.
func (r *Request) SessionID() string { return r.sessionID }

// CallbackURL returns the callback address, empty when absent.
func (r *Request) CallbackURL() string { return r.callbackURL }
