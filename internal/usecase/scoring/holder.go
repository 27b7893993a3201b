// Package scoring owns the live ranking weights: an atomically swapped
// snapshot, reloadable from the admin API or a watched YAML file.
package scoring

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// Reload sources.
const (
	SourceAPI  = "api"
	SourceFile = "file"
)

// Holder publishes the current Weights snapshot. Readers take one snapshot
// per ranking pass; writers replace it whole.
type Holder struct {
	current atomic.Pointer[scoring.Weights]
	logger  *zap.Logger
}

// NewHolder validates initial and publishes it.
func NewHolder(initial scoring.Weights, logger *zap.Logger) (*Holder, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	h := &Holder{logger: logger}
	h.current.Store(&initial)
	return h, nil
}

// Load returns the current snapshot.
func (h *Holder) Load() scoring.Weights {
	return *h.current.Load()
}

// Swap validates w and replaces the snapshot. Invalid weights leave the
// current snapshot in place.
func (h *Holder) Swap(w scoring.Weights, source string) error {
	if err := w.Validate(); err != nil {
		metrics.WeightsReloadsTotal.WithLabelValues(source, "rejected").Inc()
		h.logger.Warn("Scoring weights rejected", zap.String("source", source), zap.Error(err))
		return err
	}
	h.current.Store(&w)
	metrics.WeightsReloadsTotal.WithLabelValues(source, "ok").Inc()
	h.logger.Info("Scoring weights reloaded",
		zap.String("source", source),
		zap.Float64("time_decay_lambda", w.TimeDecayLambda),
		zap.Float64("category_weight", w.CategoryWeight),
		zap.Float64("freshness_weight", w.FreshnessWeight),
	)
	return nil
}

// ReloadFile reads path and swaps in its weights.
func (h *Holder) ReloadFile(path string) error {
	w, err := LoadFile(path)
	if err != nil {
		metrics.WeightsReloadsTotal.WithLabelValues(SourceFile, "error").Inc()
		return err
	}
	return h.Swap(w, SourceFile)
}

// LoadFile parses a YAML weights file. Fields missing from the file keep
// their default values.
func LoadFile(path string) (scoring.Weights, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return scoring.Weights{}, fmt.Errorf("read weights file %s: %w", path, err)
	}
	w := scoring.DefaultWeights()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return scoring.Weights{}, fmt.Errorf("parse weights file %s: %w", path, err)
	}
	return w, nil
}
