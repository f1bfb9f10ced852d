// Package response defines the aggregated retrieval response.
package response

import (
	"time"

	"github.com/tuexperto/taxsearch/internal/domain/channel"
	"github.com/tuexperto/taxsearch/internal/domain/result"
)

// Aggregated is the per-request output delivered to the callback.
type Aggregated struct {
	Success    bool
	Query      string
	UserID     string
	SessionID  string
	Results    map[channel.Channel][]result.Item
	Aggregated []result.Item
	Error      string
	Duration   time.Duration
}

// Failure builds a failed response: every per-channel list empty, error set.
func Failure(query, userID, sessionID, errMsg string, channels []channel.Channel, duration time.Duration) Aggregated {
	results := make(map[channel.Channel][]result.Item, len(channels))
	for _, c := range channels {
		results[c] = []result.Item{}
	}
	return Aggregated{
		Success:   false,
		Query:     query,
		UserID:    userID,
		SessionID: sessionID,
		Results:   results,
		Error:     errMsg,
		Duration:  duration,
	}
}
