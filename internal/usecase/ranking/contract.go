package ranking

import (
	"context"

	domemb "github.com/kailas-cloud/tradematch/internal/domain/embedding"
	"github.com/kailas-cloud/tradematch/internal/domain/geo"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/item"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
)

// Catalog reads items and members owned by the host backend.
// Candidate queries never return EXCHANGED items.
type Catalog interface {
	BrowseCandidates(ctx context.Context, viewerID, category string, box *geo.BoundingBox) ([]item.Item, error)
	TradableItemsOf(ctx context.Context, ownerID string) ([]item.Item, error)
	Item(ctx context.Context, id string) (item.Item, error)
	Member(ctx context.Context, id string) (item.Member, error)
}

// VectorReader reads stored embeddings.
type VectorReader interface {
	GetMany(ctx context.Context, originIDs []string, kind domemb.OriginKind) (map[string]domemb.Vector, error)
	GetLatestForMember(ctx context.Context, memberID string) (domemb.Vector, error)
}

// InteractionReader reads a member's implicit category scores.
type InteractionReader interface {
	Scores(ctx context.Context, memberID string) ([]dominter.Score, error)
}

// WeightsSource returns the current scoring snapshot.
type WeightsSource interface {
	Load() scoring.Weights
}
