package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks AI provider chain availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
