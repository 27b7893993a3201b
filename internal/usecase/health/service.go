package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; rankings fall back but keep serving.
	Degraded Status = "degraded"
	// Unhealthy indicates the engine cannot serve rankings.
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

// Component names in Report.Checks.
const (
	ComponentStore   = "store"
	ComponentCatalog = "catalog"
	ComponentAI      = "ai"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store   DBPinger
	catalog DBPinger
	ai      EmbeddingChecker
}

// New creates a Service. catalog and ai can be nil.
func New(store, catalog DBPinger, ai EmbeddingChecker) *Service {
	return &Service{store: store, catalog: catalog, ai: ai}
}

// Check runs health checks against all components. The vector/counter store
// and the catalog are required; the AI chain only degrades.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentStore] = result(s.store.Ping(ctx))
	if s.catalog != nil {
		checks[ComponentCatalog] = result(s.catalog.Ping(ctx))
	}
	if s.ai != nil {
		checks[ComponentAI] = result(s.ai.HealthCheck(ctx))
	}

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == ComponentAI {
			if status == Healthy {
				status = Degraded
			}
			continue
		}
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
