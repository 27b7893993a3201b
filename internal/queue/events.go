package queue

import (
	"time"

	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
)

// Topics.
const (
	TopicInteraction         = "tradematch.interaction"
	TopicItemEmbedding       = "tradematch.embedding.item"
	TopicItemEmbeddingBatch  = "tradematch.embedding.item_batch"
	TopicPreferenceEmbedding = "tradematch.embedding.preference"
)

// InteractionEvent is a viewer action. ItemID is required for VIEW only.
type InteractionEvent struct {
	MemberID   string        `json:"member_id"`
	ItemID     string        `json:"item_id,omitempty"`
	Category   string        `json:"category"`
	Type       dominter.Type `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ItemEmbeddingJob asks for an item vector to be computed and stored.
type ItemEmbeddingJob struct {
	ItemID string `json:"item_id"`
	Text   string `json:"text"`
}

// ItemEmbeddingBatchJob asks for many item vectors in one backend call.
type ItemEmbeddingBatchJob struct {
	Items []ItemEmbeddingJob `json:"items"`
}

// PreferenceEmbeddingJob asks for a member preference vector to be computed and stored.
type PreferenceEmbeddingJob struct {
	MemberID   string   `json:"member_id"`
	Categories []string `json:"categories"`
}
