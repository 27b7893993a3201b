package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// TextGenerator produces free-form text from a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// PricePredictor appraises an item description in whole currency units.
type PricePredictor interface {
	PredictPrice(ctx context.Context, text string) (int64, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Provider is the full AI backend contract. Local and cloud backends are
// interchangeable behind it.
type Provider interface {
	Embedder
	BatchEmbedder
	TextGenerator
	PricePredictor
	Name() string
	Dimensions() int
}

// ResponseFormat selects the MIME type requested from a text generator.
type ResponseFormat string

// Supported response formats.
const (
	ResponseFormatText ResponseFormat = "text/plain"
	ResponseFormatJSON ResponseFormat = "application/json"
)

// GenerationConfig tunes a single text generation call.
type GenerationConfig struct {
	Temperature float32
	MaxTokens   int
	Format      ResponseFormat
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	Provider     string
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
// Embeddings[i] always corresponds to the i-th input text.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	Provider     string
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per text for providers without a native batch endpoint.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int
	var provider string

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
		provider = res.Provider
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		Provider:     provider,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// InstructionEmbedder prepends a model-specific instruction (e.g. "passage: ") before embedding.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends instruction and delegates to inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends instruction to each text. Falls back to per-text Embed
// when inner has no batch support.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}

	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, prefixed)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
		}
		return res, nil
	}

	res, err := BatchFallback(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed fallback: %w", err)
	}
	return res, nil
}

// InstructionProvider applies an InstructionEmbedder to the embedding half of a
// Provider. Text generation and price prediction see the raw input.
type InstructionProvider struct {
	Provider
	embedder *InstructionEmbedder
}

// NewInstructionProvider wraps p. An empty instruction returns p unchanged.
func NewInstructionProvider(p Provider, instruction string) Provider {
	if instruction == "" {
		return p
	}
	return &InstructionProvider{Provider: p, embedder: NewInstructionEmbedder(p, instruction)}
}

// Embed prepends the instruction.
func (p *InstructionProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return p.embedder.Embed(ctx, text)
}

// BatchEmbed prepends the instruction to every text.
func (p *InstructionProvider) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	return p.embedder.BatchEmbed(ctx, texts)
}
