package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// DefaultMaxAPIBatchSize caps the texts sent in one backend request.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedProvider wraps a backend with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// This layer owns budget tracking and budget-related metrics only.
type InstrumentedProvider struct {
	domain.Provider
	model  string
	budget BudgetChecker
	logger *zap.Logger
}

// NewInstrumentedProvider wraps a backend with budget and observability.
// A nil budget disables enforcement.
func NewInstrumentedProvider(
	inner domain.Provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedProvider {
	return &InstrumentedProvider{
		Provider: inner,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

func (p *InstrumentedProvider) checkBudget(ctx context.Context, op string) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Warn("Budget exceeded",
			zap.String("provider", p.Name()),
			zap.String("model", p.model),
			zap.String("op", op),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// Embed checks budget, delegates to the backend, and records usage.
func (p *InstrumentedProvider) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, "embed"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.Provider.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.Name()),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.recordBudget(result.TotalTokens)
	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.Name()),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed checks budget, splits texts into sub-batches and delegates.
func (p *InstrumentedProvider) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Provider: p.Name()}, nil
	}

	if err := p.checkBudget(ctx, "batch_embed"); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	duration := time.Since(start)
	p.recordBudget(result.TotalTokens)
	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.Name()),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// embedChunked splits texts into DefaultMaxAPIBatchSize chunks, re-checking budget between them.
func (p *InstrumentedProvider) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	allEmbeddings := make([][]float32, 0, len(texts))
	var totalPrompt, totalTokens int
	provider := p.Name()

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		if p.budget != nil && offset > 0 {
			if err := p.budget.Check(ctx); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("budget check (chunk %d): %w", offset, err)
			}
		}

		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		chunk := texts[offset:end]

		chunkResult, err := p.Provider.BatchEmbed(ctx, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.Name()),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(chunkResult.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf(
				"batch embed: %d vectors for %d texts: %w",
				len(chunkResult.Embeddings), len(chunk), domain.ErrAIResponseParseFailed,
			)
		}

		allEmbeddings = append(allEmbeddings, chunkResult.Embeddings...)
		totalPrompt += chunkResult.PromptTokens
		totalTokens += chunkResult.TotalTokens
		if chunkResult.Provider != "" {
			provider = chunkResult.Provider
		}
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		Provider:     provider,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// GenerateText checks budget and delegates. Chat usage is not reported
// through the contract, so nothing is recorded.
func (p *InstrumentedProvider) GenerateText(
	ctx context.Context, prompt string, cfg domain.GenerationConfig,
) (string, error) {
	if err := p.checkBudget(ctx, "generate"); err != nil {
		return "", err
	}
	out, err := p.Provider.GenerateText(ctx, prompt, cfg)
	if err != nil {
		p.logger.Error("Text generation failed",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}

// PredictPrice checks budget and delegates.
func (p *InstrumentedProvider) PredictPrice(ctx context.Context, text string) (int64, error) {
	if err := p.checkBudget(ctx, "predict_price"); err != nil {
		return 0, err
	}
	price, err := p.Provider.PredictPrice(ctx, text)
	if err != nil {
		p.logger.Error("Price prediction failed",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("predict price: %w", err)
	}
	return price, nil
}

func (p *InstrumentedProvider) recordBudget(totalTokens int) {
	if p.budget == nil || totalTokens <= 0 {
		return
	}
	p.budget.Record(int64(totalTokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.Name(), "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.Name(), "monthly").Set(float64(p.budget.RemainingMonthly()))
}
