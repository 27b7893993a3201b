package interaction

import (
	"context"
	"time"

	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
)

// Repository defines the storage contract for interaction counters.
type Repository interface {
	Apply(ctx context.Context, memberID, category string, typ dominter.Type, w scoring.Weights) (dominter.Score, error)
	RecordView(
		ctx context.Context, day, memberID, itemID, category string, ttl time.Duration, w scoring.Weights,
	) (dominter.Score, bool, error)
	Scores(ctx context.Context, memberID string) ([]dominter.Score, error)
	DeleteMember(ctx context.Context, memberID string) error
}

// WeightsSource returns the current scoring snapshot.
type WeightsSource interface {
	Load() scoring.Weights
}
