// Package member erases the engine-owned data of a member deleted by the host.
package member

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// Service cascades a member deletion into the engine's stores.
type Service struct {
	vectors VectorEraser
	scores  ScoreEraser
	logger  *zap.Logger
}

// New creates a member service.
func New(vectors VectorEraser, scores ScoreEraser, logger *zap.Logger) *Service {
	return &Service{vectors: vectors, scores: scores, logger: logger}
}

// Erase removes the member's preference vector and interaction counters.
// The vector delete is best effort; a counter delete failure is returned.
func (s *Service) Erase(ctx context.Context, memberID string) error {
	if strings.TrimSpace(memberID) == "" {
		return fmt.Errorf("member id is required: %w", domain.ErrInvalidRequest)
	}

	s.vectors.DeleteMemberEmbedding(ctx, memberID)
	if err := s.scores.DeleteMember(ctx, memberID); err != nil {
		return fmt.Errorf("erase member %s: %w", memberID, err)
	}

	s.logger.Info("Member data erased", zap.String("member_id", memberID))
	return nil
}
