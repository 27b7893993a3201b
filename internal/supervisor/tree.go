// Package supervisor runs the long-lived services of the engine under a
// suture tree: queue workers and the weights watcher in one layer, the HTTP
// server in another, so a crashing worker never takes the API down.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

// TreeConfig tunes restart behaviour. Zero values take suture defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture's defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor with a background layer and an API layer.
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
}

// NewTree builds the tree. Supervisor events are logged through logger.
func NewTree(logger *zap.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	spec := func(hook suture.EventHook) suture.Spec {
		return suture.Spec{
			EventHook:        hook,
			FailureThreshold: cfg.FailureThreshold,
			FailureDecay:     cfg.FailureDecay,
			FailureBackoff:   cfg.FailureBackoff,
			Timeout:          cfg.ShutdownTimeout,
		}
	}

	hook := EventHook(logger)
	root := suture.New("tradematch", spec(hook))
	background := suture.New("background-layer", spec(hook))
	api := suture.New("api-layer", spec(hook))
	root.Add(background)
	root.Add(api)

	return &Tree{root: root, background: background, api: api}
}

// AddBackground adds a queue worker or watcher.
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddAPI adds an HTTP server.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// EventHook converts suture events into zap log lines.
func EventHook(logger *zap.Logger) suture.EventHook {
	return func(ev suture.Event) {
		fields := make([]zap.Field, 0, len(ev.Map()))
		for k, v := range ev.Map() {
			fields = append(fields, zap.Any(k, v))
		}

		switch ev.Type() {
		case suture.EventTypeServicePanic:
			logger.Error("Supervised service panicked", fields...)
		case suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			logger.Warn(ev.String(), fields...)
		case suture.EventTypeBackoff:
			logger.Warn("Supervisor entering backoff", fields...)
		default:
			logger.Info(ev.String(), fields...)
		}
	}
}
