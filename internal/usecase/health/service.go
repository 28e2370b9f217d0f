package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
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
	db   DBPinger
	gate GateChecker
}

// New creates a Service. gate can be nil.
func New(db DBPinger, gate GateChecker) *Service {
	return &Service{db: db, gate: gate}
}

// Check runs health checks against all components. A store failure is
// fatal; a disclosure gate failure only degrades, confirmations still
// persist and the release is retried.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	dbOK := true
	if err := s.db.Ping(ctx); err != nil {
		checks["store"] = CheckError
		dbOK = false
	} else {
		checks["store"] = CheckOK
	}

	if s.gate != nil {
		if err := s.gate.HealthCheck(ctx); err != nil {
			checks["disclosure_gate"] = CheckError
		} else {
			checks["disclosure_gate"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if !dbOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
