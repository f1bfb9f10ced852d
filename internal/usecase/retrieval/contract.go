package retrieval

import (
	"context"
	"time"

	"github.com/tuexperto/taxsearch/internal/domain/channel"
	"github.com/tuexperto/taxsearch/internal/domain/request"
	"github.com/tuexperto/taxsearch/internal/domain/response"
	"github.com/tuexperto/taxsearch/internal/domain/result"
)

// ChannelSearcher executes one channel query. vector may be nil; the channel
// then runs lexical-only.
type ChannelSearcher interface {
	Search(ctx context.Context, d *channel.Descriptor, query string, vector []float32, topK int) ([]result.Item, error)
}

// Vectorizer produces a query vector in a named embedding space.
type Vectorizer interface {
	Vector(ctx context.Context, space, text string) ([]float32, error)
}

// IdentityResolver maps callers onto users and sessions and records
// completed interactions.
type IdentityResolver interface {
	Resolve(ctx context.Context, caller request.Caller, sessionID string) (userID, sid string, err error)
	AppendInteraction(ctx context.Context, sessionID, query string, success bool, hitCounts map[string]int, duration time.Duration) error
}

// Dispatcher delivers the aggregated response to the callback endpoint.
type Dispatcher interface {
	Deliver(ctx context.Context, callbackURL string, resp *response.Aggregated) error
}

// Normalizer rewrites foreign-script queries into the index vocabulary.
type Normalizer interface {
	Normalize(query string) (normalized string, translated bool)
}
