package scoring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEngineMetrics()
	os.Exit(m.Run())
}

func TestNewHolder_RejectsInvalid(t *testing.T) {
	w := scoring.DefaultWeights()
	w.TimeDecayLambda = 0
	if _, err := NewHolder(w, zap.NewNop()); !errors.Is(err, domain.ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestHolder_Swap(t *testing.T) {
	h, err := NewHolder(scoring.DefaultWeights(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next := scoring.DefaultWeights()
	next.CategoryWeight = 0.9
	if err := h.Swap(next, SourceAPI); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.Load().CategoryWeight; got != 0.9 {
		t.Errorf("category weight = %v", got)
	}
}

func TestHolder_SwapInvalidKeepsSnapshot(t *testing.T) {
	h, _ := NewHolder(scoring.DefaultWeights(), zap.NewNop())

	bad := scoring.DefaultWeights()
	bad.LikeWeight = -1
	if err := h.Swap(bad, SourceAPI); !errors.Is(err, domain.ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
	if h.Load() != scoring.DefaultWeights() {
		t.Error("snapshot must not change on rejected swap")
	}
}

func TestHolder_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	h, _ := NewHolder(scoring.DefaultWeights(), zap.NewNop())
	a := scoring.DefaultWeights()
	b := scoring.DefaultWeights()
	b.CategoryWeight, b.FreshnessWeight = 0.2, 0.8

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 500 {
			if i%2 == 0 {
				_ = h.Swap(a, SourceAPI)
			} else {
				_ = h.Swap(b, SourceAPI)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			w := h.Load()
			if w != a && w != b {
				t.Errorf("torn snapshot %+v", w)
				return
			}
		}
	}()
	wg.Wait()
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte("category_weight: 0.5\nfreshness_weight: 0.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := scoring.DefaultWeights()
	want.CategoryWeight, want.FreshnessWeight = 0.5, 0.5
	if w != want {
		t.Errorf("got %+v, want %+v", w, want)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("category_weight: [oops"), 0o600)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestFileWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	if err := os.WriteFile(path, []byte("category_weight: 0.7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	h, _ := NewHolder(scoring.DefaultWeights(), zap.NewNop())
	w := NewFileWatcher(path, h, zap.NewNop())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("category_weight: 0.25\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.Load().CategoryWeight == 0.25 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if got := h.Load().CategoryWeight; got != 0.25 {
		t.Fatalf("category weight = %v, want 0.25", got)
	}
}

func TestFileWatcher_InvalidFileKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	_ = os.WriteFile(path, []byte("time_decay_lambda: 0\n"), 0o600)

	h, _ := NewHolder(scoring.DefaultWeights(), zap.NewNop())
	w := NewFileWatcher(path, h, zap.NewNop())
	w.reload()

	if h.Load() != scoring.DefaultWeights() {
		t.Error("invalid file must not replace the snapshot")
	}
}
