package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/config"
	"github.com/tuexperto/taxsearch/internal/db/elastic"
	dbRedis "github.com/tuexperto/taxsearch/internal/db/redis"
	logpkg "github.com/tuexperto/taxsearch/internal/logger"
	"github.com/tuexperto/taxsearch/internal/metrics"
	identityrepo "github.com/tuexperto/taxsearch/internal/repository/identity"
	searchrepo "github.com/tuexperto/taxsearch/internal/repository/search"
	chiTransport "github.com/tuexperto/taxsearch/internal/transport/chi"
	openaiEmb "github.com/tuexperto/taxsearch/internal/transport/openai"
	"github.com/tuexperto/taxsearch/internal/transport/webhook"
	embeddinguc "github.com/tuexperto/taxsearch/internal/usecase/embedding"
	healthuc "github.com/tuexperto/taxsearch/internal/usecase/health"
	identityuc "github.com/tuexperto/taxsearch/internal/usecase/identity"
	"github.com/tuexperto/taxsearch/internal/usecase/normalize"
	retrievaluc "github.com/tuexperto/taxsearch/internal/usecase/retrieval"
	"github.com/tuexperto/taxsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting taxsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("search_addrs", cfg.Search.Addrs),
		zap.Strings("identity_addrs", cfg.Identity.Addrs),
	)

	// Identity store (Redis)
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Identity.Addrs,
		Password: cfg.Identity.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create identity store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Identity.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Identity store not ready", zap.Error(err))
	}
	logger.Info("Connected to identity store")

	// Search backend (Elasticsearch)
	es, err := elastic.NewClient(elastic.Config{
		Addrs:    cfg.Search.Addrs,
		CloudID:  cfg.Search.CloudID,
		APIKey:   cfg.Search.APIKey,
		Username: cfg.Search.Username,
		Password: cfg.Search.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create search client", zap.Error(err))
	}
	if err := es.Ping(ctx); err != nil {
		logger.Warn("Search backend not reachable at startup", zap.Error(err))
	}

	// Pipeline metrics are registered explicitly; HTTP metrics register on import
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedding space registry — one provider per configured space
	registry := embeddinguc.NewRegistry(time.Duration(cfg.Embedding.TimeoutSec) * time.Second)
	embedCheckers := make(map[string]healthuc.EmbeddingChecker)
	for name, space := range cfg.Embedding.Spaces {
		provCfg := cfg.Embedding.Providers[space.Provider]
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      space.Model,
			Dimensions: space.Dimensions,
			Provider:   space.Provider,
			Logger:     logger,
		})
		embedder := embeddinguc.NewInstrumentedEmbedder(base, space.Provider, space.Model, logger)
		registry.Register(name, embedder, space.Dimensions)
		embedCheckers[name] = embedder
		logger.Info("Embedding space registered",
			zap.String("space", name),
			zap.String("provider", space.Provider),
			zap.String("model", space.Model),
			zap.Int("dimensions", space.Dimensions),
		)
	}

	// Repositories
	channelTable := cfg.ChannelTable()
	searchRepo := searchrepo.New(
		es,
		time.Duration(cfg.Search.TimeoutSec)*time.Second,
		cfg.Retrieval.MaxTextLen,
		logger,
	)
	identityRepo := identityrepo.New(
		store,
		cfg.Identity.KeyPrefix,
		time.Duration(cfg.Identity.SessionIdleHours)*time.Hour,
	)

	// Use case services
	identitySvc := identityuc.NewService(identityRepo, logger)
	dispatcher := webhook.NewDispatcher(&webhook.Config{
		DefaultURL:  cfg.Delivery.DefaultCallbackURL,
		MaxAttempts: cfg.Delivery.MaxAttempts,
		Backoff:     time.Duration(cfg.Delivery.BackoffMS) * time.Millisecond,
		Timeout:     time.Duration(cfg.Delivery.TimeoutSec) * time.Second,
		Logger:      logger,
	})
	retrievalSvc := retrievaluc.NewService(
		searchRepo,
		registry,
		identitySvc,
		dispatcher,
		normalize.New(cfg.Normalizer.ExtraTerms),
		&retrievaluc.Config{
			Table:        channelTable,
			Deadline:     time.Duration(cfg.Retrieval.DeadlineSec) * time.Second,
			AggregateMax: cfg.Retrieval.AggregateMax,
			MaxInFlight:  cfg.Retrieval.MaxInFlightTasks,
		},
		logger,
	)
	healthSvc := healthuc.New(es, store, embedCheckers)

	// HTTP server
	server := chiTransport.NewServer(retrievalSvc, healthSvc, cfg.Retrieval.MaxTopK, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Accepted requests still owe their callback
	logger.Info("Draining background tasks")
	retrievalSvc.Wait()

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
