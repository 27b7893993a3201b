package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// Worker defaults.
const (
	DefaultConcurrency = 4
	DefaultJobTimeout  = 30 * time.Second
)

// Handler processes one decoded payload.
type Handler func(ctx context.Context, payload []byte) error

// JSON adapts a typed function into a Handler.
func JSON[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, payload []byte) error {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decode %T: %w", v, err)
		}
		return fn(ctx, v)
	}
}

// Worker is the single subscriber of a topic. Messages are acked on receipt
// and processed by a bounded pool; failures are logged, never redelivered.
type Worker struct {
	bus         *Bus
	topic       string
	handle      Handler
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewWorker creates a worker. Zero concurrency or timeout take the defaults.
func NewWorker(bus *Bus, topic string, concurrency int, timeout time.Duration, handle Handler, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Worker{
		bus:         bus,
		topic:       topic,
		handle:      handle,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.With(zap.String("topic", topic)),
	}
}

// String names the service in supervisor logs.
func (w *Worker) String() string { return "worker(" + w.topic + ")" }

// Serve consumes until ctx is done, then waits for in-flight jobs.
func (w *Worker) Serve(ctx context.Context) error {
	msgs, err := w.bus.subscribe(ctx, w.topic)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", w.topic)
			}
			msg.Ack()
			w.bus.received()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				metrics.QueueDroppedTotal.WithLabelValues(w.topic, "shutdown").Inc()
				return ctx.Err()
			}

			wg.Add(1)
			go func(m *message.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				w.process(ctx, m)
			}(msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg *message.Message) {
	// a job keeps running after shutdown starts, bounded by the timeout
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	jobCtx, usage := domain.NewContextWithUsage(jobCtx)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsProcessedTotal.WithLabelValues(w.topic, "panic").Inc()
			w.logger.Error("Job panicked",
				zap.String("message_id", msg.UUID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := w.handle(jobCtx, msg.Payload); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(w.topic, "error").Inc()
		w.logger.Warn("Job failed",
			zap.String("message_id", msg.UUID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	metrics.JobsProcessedTotal.WithLabelValues(w.topic, "ok").Inc()
	fields := []zap.Field{
		zap.String("message_id", msg.UUID),
		zap.Duration("duration", time.Since(start)),
	}
	if usage.Used {
		metrics.JobTokensTotal.WithLabelValues(w.topic).Add(float64(usage.TotalTokens))
		fields = append(fields, zap.Int("total_tokens", usage.TotalTokens))
	}
	w.logger.Debug("Job done", fields...)
}
