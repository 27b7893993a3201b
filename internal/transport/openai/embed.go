package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

const (
	opEmbed      = "embed"
	opBatchEmbed = "batch_embed"
)

// Embed implements domain.Embedder.
func (b *Backend) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := b.createEmbeddings(ctx, opEmbed, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	vec := res.Data[0].Embedding
	if reason := b.malformed(vec); reason != "" {
		b.countError(reason)
		return domain.EmbeddingResult{}, domain.NewAIError(b.name,
			fmt.Errorf("embedding %s: %w", reason, domain.ErrAIResponseParseFailed))
	}

	return domain.EmbeddingResult{
		Embedding:    vec,
		Provider:     b.name,
		PromptTokens: res.Usage.PromptTokens,
		TotalTokens:  res.Usage.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder in one API call. Output order
// follows the response index, not the arrival order. An element that is
// missing, empty or of the wrong dimension becomes a zero vector.
func (b *Backend) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	res, err := b.createEmbeddings(ctx, opBatchEmbed, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	dim := b.dimensions
	if dim == 0 {
		for _, d := range res.Data {
			if len(d.Embedding) > 0 {
				dim = len(d.Embedding)
				break
			}
		}
	}

	out := make([][]float32, len(texts))
	for _, d := range res.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			b.logger.Warn("Discarding embedding with bad index", zap.Int("index", d.Index))
			continue
		}
		if reason := b.malformed(d.Embedding); reason != "" {
			b.zeroElement(out, d.Index, dim, reason)
			continue
		}
		out[d.Index] = d.Embedding
	}
	for i := range out {
		if out[i] == nil {
			b.zeroElement(out, i, dim, "missing")
		}
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		Provider:     b.name,
		PromptTokens: res.Usage.PromptTokens,
		TotalTokens:  res.Usage.TotalTokens,
	}, nil
}

func (b *Backend) createEmbeddings(ctx context.Context, op string, input []string) (openai.EmbeddingResponse, error) {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		b.countError("rate_limited")
		return openai.EmbeddingResponse{}, err
	}
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          b.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           b.user,
	}
	if b.sendDimensions && b.dimensions > 0 {
		req.Dimensions = b.dimensions
	}

	model := string(b.embeddingModel)
	start := time.Now()

	resp, err := b.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, model, op, "error").Inc()
		b.countError("api_error")
		return openai.EmbeddingResponse{}, b.parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, model, op, "error").Inc()
		b.countError("empty_response")
		return openai.EmbeddingResponse{}, domain.NewAIError(b.name,
			fmt.Errorf("empty embedding response: %w", domain.ErrAIResponseParseFailed))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, model, op, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(b.name, model, op).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(b.name, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(b.name, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	b.logger.Debug("Embedding call completed",
		zap.String("op", op),
		zap.Int("inputs", len(input)),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp, nil
}

// malformed returns a reason when vec is unusable, "" otherwise.
func (b *Backend) malformed(vec []float32) string {
	if len(vec) == 0 {
		return "empty"
	}
	if b.dimensions > 0 && len(vec) != b.dimensions {
		return "wrong_dimension"
	}
	return ""
}

func (b *Backend) zeroElement(out [][]float32, i, dim int, reason string) {
	out[i] = make([]float32, dim)
	metrics.EmbeddingMalformedElementsTotal.WithLabelValues(b.name, reason).Inc()
	b.logger.Warn("Malformed batch element replaced by zero vector",
		zap.Int("index", i),
		zap.String("reason", reason),
		zap.Int("dimensions", dim),
	)
}

func (b *Backend) countError(kind string) {
	metrics.EmbeddingErrorsTotal.WithLabelValues(b.name, string(b.embeddingModel), kind).Inc()
}
