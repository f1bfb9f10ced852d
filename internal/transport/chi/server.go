package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/request"
	healthuc "github.com/tuexperto/taxsearch/internal/usecase/health"
	retrievaluc "github.com/tuexperto/taxsearch/internal/usecase/retrieval"
	"github.com/tuexperto/taxsearch/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the accept API over chi.
type Server struct {
	retrieval     *retrievaluc.Service
	health        *healthuc.Service
	maxTopK       int
	logger        *zap.Logger
	errorHandlers []errorHandler

	started  time.Time
	accepted atomic.Int64
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	health *healthuc.Service,
	maxTopK int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		health:    health,
		maxTopK:   maxTopK,
		logger:    logger,
		started:   time.Now(),
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, "empty_query"),
		sentinelHandler(domain.ErrQueryTooLong, http.StatusBadRequest, "query_too_long"),
		sentinelHandler(domain.ErrNoChannels, http.StatusBadRequest, "no_channels"),
		sentinelHandler(domain.ErrUnknownChannel, http.StatusBadRequest, "unknown_channel"),
		sentinelHandler(domain.ErrMissingCaller, http.StatusBadRequest, "missing_caller"),
		sentinelHandler(domain.ErrInvalidCallback, http.StatusBadRequest, "invalid_callback"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrChannelUnavailable, http.StatusServiceUnavailable, "channel_unavailable"),
	}
	return s
}

// Routes mounts the API on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.AcceptSearch)
	r.Get("/health", s.HealthCheck)
	r.Get("/stats", s.Stats)
	r.Get("/metrics", s.Metrics)
}

// searchRequest is the inbound accept payload.
type searchRequest struct {
	Query    string   `json:"query"`
	Channels []string `json:"channels"`
	TopK     int      `json:"top_k"`
	User     struct {
		ChannelType string            `json:"channel_type"`
		ExternalID  string            `json:"external_id"`
		Metadata    map[string]string `json:"metadata"`
	} `json:"user"`
	SessionID   string `json:"session_id"`
	CallbackURL string `json:"callback_url"`
}

// acceptResponse acknowledges a scheduled retrieval.
type acceptResponse struct {
	Status    string   `json:"status"`
	Query     string   `json:"query"`
	Channels  []string `json:"channels"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id"`
}

// AcceptSearch handles POST /v1/search. It validates, resolves identity and
// returns 202 before any channel is queried; results arrive via the callback.
func (s *Server) AcceptSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	caller := request.Caller{
		ChannelType: body.User.ChannelType,
		ExternalID:  body.User.ExternalID,
		Metadata:    body.User.Metadata,
	}
	req, err := request.New(
		body.Query, body.Channels, body.TopK, s.maxTopK,
		caller, body.SessionID, body.CallbackURL,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	userID, sessionID, err := s.retrieval.Accept(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.accepted.Add(1)

	channels := make([]string, len(req.Channels()))
	for i, c := range req.Channels() {
		channels[i] = c.String()
	}

	writeJSON(w, http.StatusAccepted, acceptResponse{
		Status:    "accepted",
		Query:     req.Query(),
		Channels:  channels,
		UserID:    userID,
		SessionID: sessionID,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        version.Version,
		"uptime_sec":     int64(time.Since(s.started).Seconds()),
		"accepted_total": s.accepted.Load(),
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrQueryTooLong,
		domain.ErrNoChannels,
		domain.ErrUnknownChannel,
		domain.ErrMissingCaller,
		domain.ErrInvalidCallback,
		domain.ErrEmbeddingProviderError,
		domain.ErrChannelUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
