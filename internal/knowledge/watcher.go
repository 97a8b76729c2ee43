package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the store when the corpus file changes. Editors often
// replace a file with several events, so reloads are debounced.
type Watcher struct {
	store    *Store
	loader   *FileLoader
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   Logger
	// reloaded is called after every reload attempt; tests use it to wait.
	reloaded func(*Snapshot, error)
}

func NewWatcher(store *Store, loader *FileLoader, debounce time.Duration, log Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	dir := filepath.Dir(loader.Path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch path %s: %w", dir, err)
	}
	return &Watcher{
		store:    store,
		loader:   loader,
		debounce: debounce,
		watcher:  fw,
		logger: log.With(map[string]interface{}{
			"component": "knowledge-watcher",
		}),
	}, nil
}

// OnReload registers a callback run after each reload attempt.
func (w *Watcher) OnReload(fn func(*Snapshot, error)) {
	w.reloaded = fn
}

// Start blocks until ctx is done and closes the underlying watcher on return.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	target := filepath.Clean(w.loader.Path)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Info("corpus watcher started", map[string]interface{}{
		"path": target,
	})

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("corpus watcher stopped", nil)
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		case <-pending:
			pending = nil
			snap, err := w.store.Reload(ctx, w.loader)
			if w.reloaded != nil {
				w.reloaded(snap, err)
			}
		}
	}
}
