// Package queue is the in-process fire-and-forget job queue: a watermill
// GoChannel bus with JSON payloads and supervised worker pools.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// Defaults.
const (
	DefaultBuffer     = 256
	DefaultMaxPending = 10_000
)

var (
	// ErrClosed signals a publish after Close.
	ErrClosed = errors.New("queue closed")
	// ErrFull signals that MaxPending messages are already waiting.
	ErrFull = errors.New("queue full")
	// ErrNoSubscriber signals a publish to a topic no worker consumes.
	ErrNoSubscriber = errors.New("no subscriber for topic")
)

// Config tunes the bus.
type Config struct {
	// Buffer is the per-subscriber channel buffer.
	Buffer int64
	// MaxPending caps messages published but not yet taken by a worker.
	MaxPending int64
}

// Bus publishes JSON events to in-process workers. Publish never waits for
// the work; failures are logged, counted and the event is dropped.
type Bus struct {
	pubsub     *gochannel.GoChannel
	maxPending int64
	pending    atomic.Int64
	closed     atomic.Bool

	mu          sync.Mutex
	subscribers map[string]int

	logger *zap.Logger
}

// NewBus creates a bus.
func NewBus(cfg Config, logger *zap.Logger) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.Buffer,
		}, NewZapAdapter(logger)),
		maxPending:  cfg.MaxPending,
		subscribers: make(map[string]int),
		logger:      logger,
	}
}

// Publish encodes v and hands it to the topic's worker.
func (b *Bus) Publish(topic string, v any) error {
	if b.closed.Load() {
		return b.drop(topic, "closed", ErrClosed)
	}
	if !b.hasSubscriber(topic) {
		return b.drop(topic, "no_subscriber", ErrNoSubscriber)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return b.drop(topic, "encode", fmt.Errorf("encode %T: %w", v, err))
	}

	if b.pending.Add(1) > b.maxPending {
		b.pending.Add(-1)
		return b.drop(topic, "full", ErrFull)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.pending.Add(-1)
		return b.drop(topic, "publish", fmt.Errorf("publish: %w", err))
	}

	metrics.QueueEnqueuedTotal.WithLabelValues(topic).Inc()
	return nil
}

// Pending returns the number of messages waiting for a worker.
func (b *Bus) Pending() int64 { return b.pending.Load() }

// Close stops the bus. Messages not yet taken by a worker are discarded.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	return nil
}

func (b *Bus) subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subscribers[topic]++
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.subscribers[topic]--
		b.mu.Unlock()
	}()
	return msgs, nil
}

// WaitForSubscribers polls until every topic has a worker or ctx is done.
func (b *Bus) WaitForSubscribers(ctx context.Context, topics ...string) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		ready := true
		for _, t := range topics {
			if !b.hasSubscriber(t) {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for queue workers: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *Bus) received() { b.pending.Add(-1) }

func (b *Bus) hasSubscriber(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribers[topic] > 0
}

func (b *Bus) drop(topic, reason string, err error) error {
	metrics.QueueDroppedTotal.WithLabelValues(topic, reason).Inc()
	b.logger.Warn("Event dropped",
		zap.String("topic", topic),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return err
}
