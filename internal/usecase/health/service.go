package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; retrieval still works.
	Degraded Status = "degraded"
	// Unhealthy indicates the search backend is down and no channel can answer.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	search    SearchPinger
	store     StorePinger
	embedders map[string]EmbeddingChecker // keyed by space name
}

// New creates a Service. embedders may be nil or empty.
func New(search SearchPinger, store StorePinger, embedders map[string]EmbeddingChecker) *Service {
	return &Service{search: search, store: store, embedders: embedders}
}

// Check runs health checks against all components. The search backend is the
// load-bearing dependency: its failure alone makes the whole service
// unhealthy, everything else only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	searchDown := false
	if err := s.search.Ping(ctx); err != nil {
		checks["search"] = CheckError
		searchDown = true
	} else {
		checks["search"] = CheckOK
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["identity_store"] = CheckError
	} else {
		checks["identity_store"] = CheckOK
	}

	for space, emb := range s.embedders {
		name := "embedding_" + space
		if err := emb.HealthCheck(ctx); err != nil {
			checks[name] = CheckError
		} else {
			checks[name] = CheckOK
		}
	}

	if searchDown {
		return Report{Status: Unhealthy, Checks: checks}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}
