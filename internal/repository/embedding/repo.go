// Package embedding persists embedding vectors as Redis hashes keyed by
// (origin kind, origin id). A save overwrites the previous vector in place.
package embedding

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/tradematch/internal/db"
	"github.com/kailas-cloud/tradematch/internal/domain"
	domemb "github.com/kailas-cloud/tradematch/internal/domain/embedding"
)

const keyPrefix = domain.KeyPrefix + "emb:"

// store is the consumer interface for vectors (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Repo implements the embedding store.
type Repo struct {
	store store
}

// New creates an embedding repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save upserts the vector for its (origin id, origin kind).
func (r *Repo) Save(ctx context.Context, v *domemb.Vector) error {
	key := vectorKey(v.OriginKind(), v.OriginID())
	if err := r.store.HSet(ctx, key, buildHashFields(v)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Get returns the current vector or domain.ErrEmbeddingNotFound.
func (r *Repo) Get(ctx context.Context, originID string, kind domemb.OriginKind) (domemb.Vector, error) {
	key := vectorKey(kind, originID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domemb.Vector{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return domemb.Vector{}, domain.ErrEmbeddingNotFound
	}

	v, err := parseHashFields(m)
	if err != nil {
		return domemb.Vector{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// GetMany fetches vectors for several origins in one round trip.
// Origins without a vector (or with an undecodable one) are absent from the result.
func (r *Repo) GetMany(ctx context.Context, originIDs []string, kind domemb.OriginKind) (map[string]domemb.Vector, error) {
	if len(originIDs) == 0 {
		return map[string]domemb.Vector{}, nil
	}

	keys := make([]string, len(originIDs))
	for i, id := range originIDs {
		keys[i] = vectorKey(kind, id)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi %s: %w", kind, err)
	}

	out := make(map[string]domemb.Vector, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		v, err := parseHashFields(m)
		if err != nil {
			continue
		}
		out[originIDs[i]] = v
	}
	return out, nil
}

// GetLatestForMember returns the member's single preference vector.
func (r *Repo) GetLatestForMember(ctx context.Context, memberID string) (domemb.Vector, error) {
	return r.Get(ctx, memberID, domemb.OriginMemberCategory)
}

// Delete removes the vector. Deleting a missing vector is not an error.
func (r *Repo) Delete(ctx context.Context, originID string, kind domemb.OriginKind) error {
	key := vectorKey(kind, originID)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func vectorKey(kind domemb.OriginKind, originID string) string {
	return keyPrefix + string(kind) + ":" + originID
}
