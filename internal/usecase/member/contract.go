package member

import "context"

// VectorEraser removes a member's preference vector. Failures are logged by
// the implementation, never returned.
type VectorEraser interface {
	DeleteMemberEmbedding(ctx context.Context, memberID string)
}

// ScoreEraser removes a member's interaction counters.
type ScoreEraser interface {
	DeleteMember(ctx context.Context, memberID string) error
}
