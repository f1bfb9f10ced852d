// Package retrieval orchestrates the multi-channel search pipeline: accept,
// resolve identity, fan out per channel, fuse, deliver.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/channel"
	"github.com/tuexperto/taxsearch/internal/domain/request"
	"github.com/tuexperto/taxsearch/internal/domain/response"
	"github.com/tuexperto/taxsearch/internal/domain/result"
	"github.com/tuexperto/taxsearch/internal/logger"
	"github.com/tuexperto/taxsearch/internal/metrics"
)

// Config holds orchestrator settings.
type Config struct {
	Table        channel.Table
	Deadline     time.Duration
	AggregateMax int
	MaxInFlight  int
}

// Service implements the accept-then-callback retrieval flow.
type Service struct {
	searcher     ChannelSearcher
	vectors      Vectorizer
	identity     IdentityResolver
	dispatcher   Dispatcher
	normalizer   Normalizer
	table        channel.Table
	deadline     time.Duration
	aggregateMax int
	sem          chan struct{}
	log          *zap.Logger

	tasks sync.WaitGroup
}

// NewService creates the retrieval orchestrator.
func NewService(
	searcher ChannelSearcher,
	vectors Vectorizer,
	identity IdentityResolver,
	dispatcher Dispatcher,
	normalizer Normalizer,
	cfg *Config,
	log *zap.Logger,
) *Service {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	aggregateMax := cfg.AggregateMax
	if aggregateMax <= 0 {
		aggregateMax = 20
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Service{
		searcher:     searcher,
		vectors:      vectors,
		identity:     identity,
		dispatcher:   dispatcher,
		normalizer:   normalizer,
		table:        cfg.Table,
		deadline:     deadline,
		aggregateMax: aggregateMax,
		sem:          make(chan struct{}, maxInFlight),
		log:          log,
	}
}

// Accept resolves the caller synchronously and schedules the retrieval in the
// background. The returned session id is final: the callback payload will
// carry the same value.
func (s *Service) Accept(ctx context.Context, req *request.Request) (userID, sessionID string, err error) {
	userID, sessionID, err = s.identity.Resolve(ctx, req.Caller(), req.SessionID())
	if err != nil {
		return "", "", fmt.Errorf("resolve identity: %w", err)
	}

	s.tasks.Add(1)
	go s.process(logger.FromContext(ctx), req, userID, sessionID)

	return userID, sessionID, nil
}

// Wait blocks until every scheduled background task has finished. Used during
// shutdown so accepted requests still get their callback.
func (s *Service) Wait() {
	s.tasks.Wait()
}

// process runs one accepted request to completion on a detached context.
func (s *Service) process(log *zap.Logger, req *request.Request, userID, sessionID string) {
	defer s.tasks.Done()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), s.deadline)
	defer cancel()

	start := time.Now()

	query, translated := s.normalizer.Normalize(req.Query())
	if translated {
		log.Info("Query normalized",
			zap.String("session_id", sessionID),
			zap.String("normalized", query),
		)
	}

	perChannel, failures := s.fanOut(ctx, log, req, query)

	duration := time.Since(start)
	resp := s.buildResponse(req, userID, sessionID, perChannel, failures, duration)

	status := "success"
	if !resp.Success {
		status = "failure"
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(status).Inc()

	log.Info("Retrieval completed",
		zap.String("session_id", sessionID),
		zap.Bool("success", resp.Success),
		zap.Int("channels", len(req.Channels())),
		zap.Int("failed_channels", len(failures)),
		zap.Duration("duration", duration),
	)

	// The task context may already be spent; bookkeeping and delivery get
	// their own budget.
	tailCtx, tailCancel := context.WithTimeout(context.Background(), s.deadline)
	defer tailCancel()

	hitCounts := make(map[string]int, len(req.Channels()))
	for ch, items := range resp.Results {
		hitCounts[ch.String()] = len(items)
	}
	if err := s.identity.AppendInteraction(tailCtx, sessionID, req.Query(), resp.Success, hitCounts, duration); err != nil {
		log.Warn("Interaction log append failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	if err := s.dispatcher.Deliver(tailCtx, req.CallbackURL(), &resp); err != nil {
		log.Error("Callback delivery failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// vectorFuture is a one-shot promise for a query vector in one space.
type vectorFuture struct {
	done chan struct{}
	vec  []float32
	err  error
}

// fanOut runs one goroutine per distinct embedding space and one per channel.
// A channel waits only on its own space's vector; spaceless channels start
// immediately. Vector failures degrade the affected channels to lexical-only.
func (s *Service) fanOut(
	ctx context.Context, log *zap.Logger, req *request.Request, query string,
) (map[channel.Channel][]result.Item, map[channel.Channel]error) {
	futures := make(map[string]*vectorFuture)
	for _, space := range s.table.Spaces(req.Channels()) {
		f := &vectorFuture{done: make(chan struct{})}
		futures[space] = f
		go func(space string) {
			defer close(f.done)
			f.vec, f.err = s.vectors.Vector(ctx, space, query)
		}(space)
	}

	channels := req.Channels()
	items := make([][]result.Item, len(channels))
	errs := make([]error, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		d, err := s.table.Get(ch)
		if err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		go func(i int, d channel.Descriptor) {
			defer wg.Done()

			var vec []float32
			if d.HasVector() {
				if f, ok := futures[d.Space]; ok {
					select {
					case <-f.done:
						if f.err != nil {
							log.Warn("Vector unavailable, degrading to lexical",
								zap.String("channel", d.Channel.String()),
								zap.String("space", d.Space),
								zap.Error(f.err),
							)
						} else {
							vec = f.vec
						}
					case <-ctx.Done():
						errs[i] = fmt.Errorf("channel %s: %w", d.Channel, ctx.Err())
						return
					}
				}
			}

			items[i], errs[i] = s.searcher.Search(ctx, &d, query, vec, req.TopK())
		}(i, d)
	}
	wg.Wait()

	perChannel := make(map[channel.Channel][]result.Item, len(channels))
	failures := make(map[channel.Channel]error)
	for i, ch := range channels {
		if errs[i] != nil {
			failures[ch] = errs[i]
			perChannel[ch] = []result.Item{}
			continue
		}
		if items[i] == nil {
			items[i] = []result.Item{}
		}
		perChannel[ch] = items[i]
	}
	return perChannel, failures
}

// buildResponse assembles the aggregated response. Success turns false only
// when every requested channel failed.
func (s *Service) buildResponse(
	req *request.Request,
	userID, sessionID string,
	perChannel map[channel.Channel][]result.Item,
	failures map[channel.Channel]error,
	duration time.Duration,
) response.Aggregated {
	channels := req.Channels()

	if len(failures) == len(channels) {
		msgs := make([]string, 0, len(channels))
		for _, ch := range channels {
			msgs = append(msgs, fmt.Sprintf("%s: %v", ch, failures[ch]))
		}
		err := fmt.Errorf("%w: %s", domain.ErrAllChannelsFailed, strings.Join(msgs, "; "))
		return response.Failure(req.Query(), userID, sessionID, err.Error(), channels, duration)
	}

	return response.Aggregated{
		Success:    true,
		Query:      req.Query(),
		UserID:     userID,
		SessionID:  sessionID,
		Results:    perChannel,
		Aggregated: fuse(perChannel, channels, s.table, s.aggregateMax),
		Duration:   duration,
	}
}
