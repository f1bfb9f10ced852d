// Package search executes per-channel queries against the search backend and
// maps raw hits into domain result items.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/db/elastic"
	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/channel"
	"github.com/tuexperto/taxsearch/internal/domain/result"
	"github.com/tuexperto/taxsearch/internal/metrics"
)

// searcher is the consumer interface for the backend client (ISP).
type searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*elastic.SearchResponse, error)
}

// Repo implements usecase/retrieval.ChannelSearcher.
type Repo struct {
	es         searcher
	timeout    time.Duration
	maxTextLen int
	logger     *zap.Logger
}

// New creates a channel search repository.
func New(es searcher, timeout time.Duration, maxTextLen int, logger *zap.Logger) *Repo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxTextLen <= 0 {
		maxTextLen = result.DefaultMaxTextLen
	}
	return &Repo{es: es, timeout: timeout, maxTextLen: maxTextLen, logger: logger}
}

// Search runs one query against a channel's index. vector may be nil: the
// channel then degrades to lexical-only matching. Scores are normalized to
// [0,1] by the response's max score.
func (r *Repo) Search(
	ctx context.Context, d *channel.Descriptor, query string, vector []float32, topK int,
) ([]result.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body := buildBody(d, query, vector, topK)

	start := time.Now()
	resp, err := r.es.Search(ctx, d.Index, body)
	duration := time.Since(start)

	if err != nil {
		metrics.ChannelSearchDuration.WithLabelValues(d.Channel.String(), "error").Observe(duration.Seconds())
		r.logger.Warn("Channel search failed",
			zap.String("channel", d.Channel.String()),
			zap.String("index", d.Index),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrChannelUnavailable, d.Channel, err)
	}

	metrics.ChannelSearchDuration.WithLabelValues(d.Channel.String(), "success").Observe(duration.Seconds())
	metrics.ChannelHitsTotal.WithLabelValues(d.Channel.String()).Add(float64(len(resp.Hits)))

	items := make([]result.Item, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		item, ok := r.mapHit(d, &hit, resp.MaxScore)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	r.logger.Debug("Channel search completed",
		zap.String("channel", d.Channel.String()),
		zap.String("index", d.Index),
		zap.Int("hits", len(items)),
		zap.Duration("duration", duration),
	)

	return items, nil
}

// mapHit converts one raw hit into a result item. Hits without display text
// are dropped.
func (r *Repo) mapHit(d *channel.Descriptor, hit *elastic.Hit, maxScore float64) (result.Item, bool) {
	text := stringField(hit.Source, d.PrimaryField())
	if text == "" && d.FallbackField != "" {
		text = stringField(hit.Source, d.FallbackField)
	}
	if text == "" {
		return result.Item{}, false
	}
	text = result.Truncate(text, r.maxTextLen)

	metadata := make(map[string]any, len(d.MetadataFields))
	for _, field := range d.MetadataFields {
		if v, ok := hit.Source[field]; ok && v != nil {
			metadata[field] = v
		}
	}

	score := hit.Score
	if maxScore > 0 {
		score = hit.Score / maxScore
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return result.New(text, metadata, score, d.Channel), true
}

func stringField(source map[string]any, field string) string {
	if field == "" {
		return ""
	}
	s, _ := source[field].(string)
	return s
}
