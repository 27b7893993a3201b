package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	domemb "github.com/kailas-cloud/tradematch/internal/domain/embedding"
)

// vectorStore is the slice of the embedding repository the indexer writes to.
type vectorStore interface {
	Save(ctx context.Context, v *domemb.Vector) error
	Delete(ctx context.Context, originID string, kind domemb.OriginKind) error
}

// ItemText pairs an item with the text its vector is computed from.
type ItemText struct {
	ItemID string
	Text   string
}

// Indexer computes vectors through the provider chain and stores them.
type Indexer struct {
	provider domain.Provider
	store    vectorStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(provider domain.Provider, store vectorStore, logger *zap.Logger) *Indexer {
	return &Indexer{provider: provider, store: store, now: time.Now, logger: logger}
}

// IndexItem embeds text and stores it as the item's current vector.
func (ix *Indexer) IndexItem(ctx context.Context, itemID, text string) error {
	if itemID == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("item id and text are required: %w", domain.ErrInvalidRequest)
	}

	res, err := ix.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed item %s: %w", itemID, err)
	}
	return ix.save(ctx, itemID, domemb.OriginItem, res.Embedding, providerOf(res.Provider, ix.provider))
}

// IndexItems embeds many items in one batch. Elements the backend could not
// vectorize come back as zero vectors; their previous vector is removed so
// the item ranks as unscored instead of by stale text.
func (ix *Indexer) IndexItems(ctx context.Context, items []ItemText) error {
	if len(items) == 0 {
		return nil
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}

	res, err := ix.provider.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch embed %d items: %w", len(items), err)
	}
	if len(res.Embeddings) != len(items) {
		return fmt.Errorf("batch embed: %d vectors for %d items: %w",
			len(res.Embeddings), len(items), domain.ErrAIResponseParseFailed)
	}

	provider := providerOf(res.Provider, ix.provider)
	var errs []error
	for i, it := range items {
		if isZero(res.Embeddings[i]) {
			ix.logger.Warn("Zero vector, dropping item embedding",
				zap.String("item_id", it.ItemID),
				zap.String("provider", provider),
			)
			if err := ix.store.Delete(ctx, it.ItemID, domemb.OriginItem); err != nil {
				errs = append(errs, fmt.Errorf("delete stale vector %s: %w", it.ItemID, err))
			}
			continue
		}
		if err := ix.save(ctx, it.ItemID, domemb.OriginItem, res.Embeddings[i], provider); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IndexMemberPreference stores one preference vector per member computed from
// the joined category names.
func (ix *Indexer) IndexMemberPreference(ctx context.Context, memberID string, categories []string) error {
	text := preferenceText(categories)
	if memberID == "" || text == "" {
		return fmt.Errorf("member id and categories are required: %w", domain.ErrInvalidRequest)
	}

	res, err := ix.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed preference %s: %w", memberID, err)
	}
	return ix.save(ctx, memberID, domemb.OriginMemberCategory, res.Embedding, providerOf(res.Provider, ix.provider))
}

// DeleteItemEmbedding removes an item's vector. Failures are logged only.
func (ix *Indexer) DeleteItemEmbedding(ctx context.Context, itemID string) {
	ix.delete(ctx, itemID, domemb.OriginItem)
}

// DeleteMemberEmbedding removes a member's preference vector. Failures are logged only.
func (ix *Indexer) DeleteMemberEmbedding(ctx context.Context, memberID string) {
	ix.delete(ctx, memberID, domemb.OriginMemberCategory)
}

func (ix *Indexer) delete(ctx context.Context, originID string, kind domemb.OriginKind) {
	if err := ix.store.Delete(ctx, originID, kind); err != nil {
		ix.logger.Warn("Failed to delete embedding",
			zap.String("origin_id", originID),
			zap.String("origin_kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (ix *Indexer) save(ctx context.Context, originID string, kind domemb.OriginKind, values []float32, provider string) error {
	v, err := domemb.New(originID, kind, values, provider, ix.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("build vector: %w", err)
	}
	if err := ix.store.Save(ctx, &v); err != nil {
		return fmt.Errorf("save vector %s/%s: %w", kind, originID, err)
	}
	ix.logger.Debug("Embedding saved",
		zap.String("origin_id", originID),
		zap.String("origin_kind", string(kind)),
		zap.String("provider", provider),
		zap.Int("dimensions", len(values)),
	)
	return nil
}

func preferenceText(categories []string) string {
	parts := make([]string, 0, len(categories))
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}

func providerOf(reported string, p domain.Provider) string {
	if reported != "" {
		return reported
	}
	return p.Name()
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
