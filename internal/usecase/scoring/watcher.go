package scoring

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

// FileWatcher reloads the Holder when the weights file changes. It watches
// the parent directory so editors that replace the file by rename are seen.
type FileWatcher struct {
	path     string
	holder   *Holder
	debounce time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string, holder *Holder, logger *zap.Logger) *FileWatcher {
	return &FileWatcher{
		path:     filepath.Clean(path),
		holder:   holder,
		debounce: defaultDebounce,
		logger:   logger,
	}
}

// String names the service in supervisor logs.
func (w *FileWatcher) String() string { return "weights-watcher(" + w.path + ")" }

// Serve blocks until ctx is done. Returning an error lets the supervisor restart it.
func (w *FileWatcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck // best-effort on shutdown

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("Watching scoring weights file", zap.String("path", w.path))

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			w.logger.Warn("Weights watcher error", zap.Error(err))
		}
	}
}

func (w *FileWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *FileWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *FileWatcher) reload() {
	if err := w.holder.ReloadFile(w.path); err != nil {
		w.logger.Warn("Scoring weights reload failed, keeping previous snapshot",
			zap.String("path", w.path),
			zap.Error(err),
		)
	}
}
