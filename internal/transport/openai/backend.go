// Package openai implements AI backends over OpenAI-compatible HTTP APIs.
// The same client serves the self-hosted "local" backend (e.g. Ollama) and
// the hosted "cloud" backend; they differ only in Config.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// Compile-time check: Backend implements domain.Provider.
var _ domain.Provider = (*Backend)(nil)

// Default dimensions per backend role.
const (
	DefaultLocalDimensions = 384
	DefaultCloudDimensions = 768
)

// Config holds the backend settings.
type Config struct {
	Name           string // "local" or "cloud", used in logs, metrics and errors
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int
	// SendDimensions asks the API to truncate vectors to Dimensions.
	// Local servers usually reject the parameter.
	SendDimensions bool
	User           string
	Currency       string
	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 disables limiting
	RateBurst      int
	Logger         *zap.Logger
}

// Backend is one OpenAI-compatible AI provider.
type Backend struct {
	client         *openai.Client
	name           string
	embeddingModel openai.EmbeddingModel
	chatModel      string
	dimensions     int
	sendDimensions bool
	user           string
	currency       string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NewBackend creates an OpenAI-compatible backend.
func NewBackend(cfg *Config) *Backend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "KRW"
	}

	return &Backend{
		client:         openai.NewClientWithConfig(clientCfg),
		name:           cfg.Name,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		chatModel:      cfg.ChatModel,
		dimensions:     cfg.Dimensions,
		sendDimensions: cfg.SendDimensions,
		user:           cfg.User,
		currency:       currency,
		timeout:        cfg.Timeout,
		limiter:        limiter,
		logger:         logger.With(zap.String("provider", cfg.Name)),
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Dimensions returns the vector length this backend produces.
func (b *Backend) Dimensions() int { return b.dimensions }

// HealthCheck verifies API availability via ListModels (free endpoint).
func (b *Backend) HealthCheck(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if _, err := b.client.ListModels(ctx); err != nil {
		return domain.NewAIError(b.name, fmt.Errorf("list models: %w", err))
	}
	return nil
}

// begin waits for the rate limiter and applies the per-call timeout.
func (b *Backend) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := b.withTimeout(ctx)
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			cancel()
			return nil, nil, domain.NewAIError(b.name, fmt.Errorf("%w: %w", domain.ErrRateLimited, err))
		}
	}
	return ctx, cancel, nil
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}
