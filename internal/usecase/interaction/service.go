// Package interaction aggregates viewer actions into per-category scores.
package interaction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
)

// DefaultViewTTL keeps a view record long enough to cover its calendar day
// in any time zone.
const DefaultViewTTL = 48 * time.Hour

// Service is the interaction aggregator.
type Service struct {
	repo    Repository
	weights WeightsSource
	loc     *time.Location
	viewTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a Service. A nil loc means UTC; a zero viewTTL means DefaultViewTTL.
func New(repo Repository, weights WeightsSource, loc *time.Location, viewTTL time.Duration, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if viewTTL <= 0 {
		viewTTL = DefaultViewTTL
	}
	return &Service{
		repo:    repo,
		weights: weights,
		loc:     loc,
		viewTTL: viewTTL,
		now:     time.Now,
		logger:  logger,
	}
}

// RecordView counts the first view of item by member on the current calendar
// day. Repeated views the same day are no-ops.
func (s *Service) RecordView(ctx context.Context, memberID, itemID, category string) error {
	if memberID == "" || itemID == "" || category == "" {
		return fmt.Errorf("member id, item id and category are required: %w", domain.ErrInvalidRequest)
	}

	day := s.now().In(s.loc).Format("20060102")
	score, counted, err := s.repo.RecordView(ctx, day, memberID, itemID, category, s.viewTTL, s.weights.Load())
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	if !counted {
		s.logger.Debug("View already counted today",
			zap.String("member_id", memberID),
			zap.String("item_id", itemID),
			zap.String("day", day),
		)
		return nil
	}

	s.logger.Debug("View counted",
		zap.String("member_id", memberID),
		zap.String("item_id", itemID),
		zap.String("category", category),
		zap.Int64("view_count", score.ViewCount()),
		zap.Float64("total_score", score.TotalScore()),
	)
	return nil
}

// UpdateInteractionScore applies one action and recomputes the total with the
// current weights.
func (s *Service) UpdateInteractionScore(
	ctx context.Context, memberID, category string, typ dominter.Type,
) (dominter.Score, error) {
	if memberID == "" || category == "" {
		return dominter.Score{}, fmt.Errorf("member id and category are required: %w", domain.ErrInvalidRequest)
	}
	if _, err := dominter.ParseType(string(typ)); err != nil {
		return dominter.Score{}, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
	}

	score, err := s.repo.Apply(ctx, memberID, category, typ, s.weights.Load())
	if err != nil {
		return dominter.Score{}, fmt.Errorf("update interaction score: %w", err)
	}

	s.logger.Debug("Interaction applied",
		zap.String("member_id", memberID),
		zap.String("category", category),
		zap.String("type", string(typ)),
		zap.Int64("view_count", score.ViewCount()),
		zap.Int64("like_count", score.LikeCount()),
		zap.Float64("total_score", score.TotalScore()),
	)
	return score, nil
}

// Scores returns every category row of member.
func (s *Service) Scores(ctx context.Context, memberID string) ([]dominter.Score, error) {
	scores, err := s.repo.Scores(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("interaction scores %s: %w", memberID, err)
	}
	return scores, nil
}

// DeleteMember removes every counter of member.
func (s *Service) DeleteMember(ctx context.Context, memberID string) error {
	if err := s.repo.DeleteMember(ctx, memberID); err != nil {
		return fmt.Errorf("delete member interactions %s: %w", memberID, err)
	}
	return nil
}
