// Package hashvec is a deterministic, offline AI backend for local
// development and tests. Vectors come from feature hashing of lowercased
// word tokens, so texts sharing words are similar.
package hashvec

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// Compile-time check: Provider implements domain.Provider.
var _ domain.Provider = (*Provider)(nil)

// DefaultDimensions matches the local backend.
const DefaultDimensions = 384

// Fixed price model: base plus a per-token increment.
const (
	basePrice     = 10_000
	pricePerToken = 500
)

// Provider is the hash-based backend.
type Provider struct {
	name       string
	dimensions int
}

// New creates a hash provider. dimensions <= 0 uses DefaultDimensions.
func New(name string, dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	if name == "" {
		name = "hash"
	}
	return &Provider{name: name, dimensions: dimensions}
}

// Name returns the backend name.
func (p *Provider) Name() string { return p.name }

// Dimensions returns the vector length.
func (p *Provider) Dimensions() int { return p.dimensions }

// Embed returns the unit-length hashed vector of text. Text without tokens
// yields a zero vector.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, domain.NewAIError(p.name, fmt.Errorf("%w: %w", domain.ErrAICallFailed, err))
	}
	tokens := tokenize(text)
	return domain.EmbeddingResult{
		Embedding:    p.vector(tokens),
		Provider:     p.name,
		PromptTokens: len(tokens),
		TotalTokens:  len(tokens),
	}, nil
}

// BatchEmbed embeds each text in order.
func (p *Provider) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, p, texts)
}

// GenerateText echoes a deterministic reply. JSON requests get a price object.
func (p *Provider) GenerateText(ctx context.Context, prompt string, cfg domain.GenerationConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewAIError(p.name, fmt.Errorf("%w: %w", domain.ErrAICallFailed, err))
	}
	if cfg.Format == domain.ResponseFormatJSON {
		return fmt.Sprintf(`{"price": %d}`, price(prompt)), nil
	}
	out := strings.Join(tokenize(prompt), " ")
	if cfg.MaxTokens > 0 && len(out) > cfg.MaxTokens*4 {
		out = out[:cfg.MaxTokens*4]
	}
	return out, nil
}

// PredictPrice returns basePrice plus pricePerToken for every token of text.
func (p *Provider) PredictPrice(ctx context.Context, text string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewAIError(p.name, fmt.Errorf("%w: %w", domain.ErrAICallFailed, err))
	}
	return price(text), nil
}

// HealthCheck always succeeds.
func (p *Provider) HealthCheck(context.Context) error { return nil }

func (p *Provider) vector(tokens []string) []float32 {
	acc := make([]float64, p.dimensions)
	for _, t := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(t))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimensions))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		acc[idx] += sign
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, p.dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func price(text string) int64 {
	return basePrice + pricePerToken*int64(len(tokenize(text)))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
