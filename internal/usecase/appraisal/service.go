// Package appraisal estimates item prices with the AI provider chain.
package appraisal

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// MaxTextLength caps the description sent to the AI backend, in runes.
const MaxTextLength = 4000

// Predictor appraises an item description.
type Predictor interface {
	PredictPrice(ctx context.Context, text string) (int64, error)
}

// Service wraps the provider with input validation.
type Service struct {
	predictor Predictor
	logger    *zap.Logger
}

// New creates a Service.
func New(predictor Predictor, logger *zap.Logger) *Service {
	return &Service{predictor: predictor, logger: logger}
}

// Estimate returns the predicted price in whole currency units.
func (s *Service) Estimate(ctx context.Context, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: text is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return 0, fmt.Errorf("%w: text exceeds %d characters", domain.ErrInvalidRequest, MaxTextLength)
	}

	price, err := s.predictor.PredictPrice(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("estimate price: %w", err)
	}
	if price < 0 {
		return 0, fmt.Errorf("estimate price: negative price %d: %w", price, domain.ErrAIResponseParseFailed)
	}

	s.logger.Debug("Price estimated", zap.Int64("price", price), zap.Int("text_len", len(text)))
	return price, nil
}
