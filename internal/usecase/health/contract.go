package health

import "context"

// DBPinger checks store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// GateChecker checks disclosure gate availability.
type GateChecker interface {
	HealthCheck(ctx context.Context) error
}
