package chi

import (
	"context"

	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/tradematch/internal/usecase/health"
)

// Ranker orders feeds and trade candidates.
type Ranker interface {
	Browse(ctx context.Context, req ranking.BrowseRequest) (ranking.Page, error)
	TradeCandidates(ctx context.Context, req ranking.TradeRequest) (ranking.Page, error)
}

// Publisher hands fire-and-forget work to the job queue.
type Publisher interface {
	Publish(topic string, v any) error
}

// EmbeddingDeleter removes stored item vectors. Failures are swallowed by the implementation.
type EmbeddingDeleter interface {
	DeleteItemEmbedding(ctx context.Context, itemID string)
}

// MemberEraser removes the engine-owned data of a deleted member.
type MemberEraser interface {
	Erase(ctx context.Context, memberID string) error
}

// Appraiser estimates item prices.
type Appraiser interface {
	Estimate(ctx context.Context, text string) (int64, error)
}

// WeightsAdmin reads and replaces the scoring weights snapshot.
type WeightsAdmin interface {
	Load() scoring.Weights
	Swap(w scoring.Weights, source string) error
}

// BudgetReporter lists token budget counters per AI backend.
type BudgetReporter interface {
	Usage() []embeddinguc.BudgetUsage
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
