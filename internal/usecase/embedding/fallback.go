package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// BreakerConfig tunes the circuit breaker in front of each backend.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker after this many failures in a row.
	ConsecutiveFailures uint32
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears closed-state counts. Zero keeps them until a state change.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// Breaker defaults.
const (
	DefaultBreakerFailures    = 5
	DefaultBreakerMaxRequests = 1
	DefaultBreakerTimeout     = 30 * time.Second
)

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = DefaultBreakerFailures
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultBreakerMaxRequests
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultBreakerTimeout
	}
	return c
}

type guarded struct {
	p  domain.Provider
	cb *gobreaker.CircuitBreaker[any]
}

// FallbackProvider tries the primary backend and falls through to the
// secondary on any failure. It errors only when both fail.
type FallbackProvider struct {
	primary   guarded
	secondary *guarded
	logger    *zap.Logger
}

// NewFallbackProvider guards both backends with circuit breakers.
// secondary may be nil, leaving a breaker-guarded single backend.
func NewFallbackProvider(
	primary, secondary domain.Provider, cfg BreakerConfig, logger *zap.Logger,
) *FallbackProvider {
	cfg = cfg.withDefaults()
	f := &FallbackProvider{
		primary: guarded{p: primary, cb: newBreaker(primary.Name(), cfg, logger)},
		logger:  logger,
	}
	if secondary != nil {
		f.secondary = &guarded{p: secondary, cb: newBreaker(secondary.Name(), cfg, logger)}
	}
	return f
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.AIBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Budget exhaustion and caller cancellation say nothing about backend health.
		IsExcluded: func(err error) bool {
			return errors.Is(err, domain.ErrEmbeddingQuotaExceeded) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("AI backend breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.AIBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// Name reports both backends.
func (f *FallbackProvider) Name() string {
	if f.secondary == nil {
		return f.primary.p.Name()
	}
	return fmt.Sprintf("fallback(%s,%s)", f.primary.p.Name(), f.secondary.p.Name())
}

// Dimensions returns the primary backend's vector length.
func (f *FallbackProvider) Dimensions() int { return f.primary.p.Dimensions() }

// Embed vectorizes text on the first healthy backend.
func (f *FallbackProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return runFallback(ctx, f, "embed", func(p domain.Provider) (domain.EmbeddingResult, error) {
		return p.Embed(ctx, text)
	})
}

// BatchEmbed vectorizes texts on the first healthy backend. The whole batch
// is served by one backend so vectors share a dimension.
func (f *FallbackProvider) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Provider: f.primary.p.Name()}, nil
	}
	return runFallback(ctx, f, "batch_embed", func(p domain.Provider) (domain.BatchEmbeddingResult, error) {
		return p.BatchEmbed(ctx, texts)
	})
}

// GenerateText produces text on the first healthy backend.
func (f *FallbackProvider) GenerateText(
	ctx context.Context, prompt string, cfg domain.GenerationConfig,
) (string, error) {
	return runFallback(ctx, f, "generate", func(p domain.Provider) (string, error) {
		return p.GenerateText(ctx, prompt, cfg)
	})
}

// PredictPrice appraises text on the first healthy backend.
func (f *FallbackProvider) PredictPrice(ctx context.Context, text string) (int64, error) {
	return runFallback(ctx, f, "predict_price", func(p domain.Provider) (int64, error) {
		return p.PredictPrice(ctx, text)
	})
}

// HealthCheck passes when at least one backend is healthy.
func (f *FallbackProvider) HealthCheck(ctx context.Context) error {
	err := healthOf(ctx, f.primary.p)
	if err == nil || f.secondary == nil {
		return err
	}
	if secErr := healthOf(ctx, f.secondary.p); secErr != nil {
		return errors.Join(err, secErr)
	}
	return nil
}

func healthOf(ctx context.Context, p domain.Provider) error {
	hc, ok := p.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil
}

func runFallback[T any](
	ctx context.Context, f *FallbackProvider, op string, call func(domain.Provider) (T, error),
) (T, error) {
	res, primaryErr := execute(f.primary, call)
	if primaryErr == nil {
		return res, nil
	}

	var zero T
	if f.secondary == nil {
		return zero, primaryErr
	}
	// A cancelled caller gets nothing from the secondary either.
	if ctx.Err() != nil {
		return zero, primaryErr
	}

	from, to := f.primary.p.Name(), f.secondary.p.Name()
	f.logger.Warn("AI primary backend failed, falling back",
		zap.String("op", op),
		zap.String("from", from),
		zap.String("to", to),
		zap.Error(primaryErr),
	)

	res, secondaryErr := execute(*f.secondary, call)
	if secondaryErr != nil {
		metrics.AIFallbackTotal.WithLabelValues(op, from, to, "failure").Inc()
		f.logger.Error("AI fallback backend failed",
			zap.String("op", op),
			zap.String("provider", to),
			zap.Error(secondaryErr),
		)
		return zero, fmt.Errorf("all AI backends failed: %w; %w", primaryErr, secondaryErr)
	}
	metrics.AIFallbackTotal.WithLabelValues(op, from, to, "success").Inc()
	return res, nil
}

func execute[T any](g guarded, call func(domain.Provider) (T, error)) (T, error) {
	out, err := g.cb.Execute(func() (any, error) {
		return call(g.p)
	})
	var zero T
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, domain.NewAIError(g.p.Name(), fmt.Errorf("%w: %w", domain.ErrAICallFailed, err))
		}
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("breaker %s: unexpected result type %T", g.p.Name(), out)
	}
	return typed, nil
}
