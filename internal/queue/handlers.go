package queue

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/tradematch/internal/domain"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
)

// Aggregator applies interaction events.
type Aggregator interface {
	RecordView(ctx context.Context, memberID, itemID, category string) error
	UpdateInteractionScore(ctx context.Context, memberID, category string, typ dominter.Type) (dominter.Score, error)
}

// Indexer computes and stores vectors.
type Indexer interface {
	IndexItem(ctx context.Context, itemID, text string) error
	IndexMemberPreference(ctx context.Context, memberID string, categories []string) error
}

// BatchIndexer computes and stores many item vectors at once.
type BatchIndexer interface {
	IndexItems(ctx context.Context, items []embeddinguc.ItemText) error
}

// InteractionHandler routes interaction events to the aggregator.
func InteractionHandler(agg Aggregator) Handler {
	return JSON(func(ctx context.Context, ev InteractionEvent) error {
		switch ev.Type {
		case dominter.TypeView:
			return agg.RecordView(ctx, ev.MemberID, ev.ItemID, ev.Category)
		case dominter.TypeLike, dominter.TypeUnlike:
			_, err := agg.UpdateInteractionScore(ctx, ev.MemberID, ev.Category, ev.Type)
			return err
		default:
			return fmt.Errorf("%w: interaction type %q", domain.ErrInvalidRequest, ev.Type)
		}
	})
}

// ItemEmbeddingHandler computes item vectors.
func ItemEmbeddingHandler(ix Indexer) Handler {
	return JSON(func(ctx context.Context, job ItemEmbeddingJob) error {
		return ix.IndexItem(ctx, job.ItemID, job.Text)
	})
}

// ItemEmbeddingBatchHandler computes item vectors in one batch per job.
func ItemEmbeddingBatchHandler(ix BatchIndexer) Handler {
	return JSON(func(ctx context.Context, job ItemEmbeddingBatchJob) error {
		items := make([]embeddinguc.ItemText, len(job.Items))
		for i, it := range job.Items {
			items[i] = embeddinguc.ItemText{ItemID: it.ItemID, Text: it.Text}
		}
		return ix.IndexItems(ctx, items)
	})
}

// PreferenceEmbeddingHandler computes member preference vectors.
func PreferenceEmbeddingHandler(ix Indexer) Handler {
	return JSON(func(ctx context.Context, job PreferenceEmbeddingJob) error {
		return ix.IndexMemberPreference(ctx, job.MemberID, job.Categories)
	})
}
