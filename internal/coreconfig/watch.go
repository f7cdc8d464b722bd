package coreconfig

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever its file changes, debouncing
// bursts of writes (editors often emit several events per save).
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*Config)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher builds a Watcher for path. onReload is invoked with the newly
// loaded config after each debounced change; load errors are logged and the
// previous config is left in place.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger, onReload func(*Config)) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, debounce: debounce, logger: logger, onReload: onReload}
}

// Start begins watching in the background.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx, fw)
	return nil
}

// Stop ends watching and releases the underlying inotify/kqueue handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw := w.watcher
	cancel := w.cancel
	w.watcher = nil
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fw != nil {
		fw.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	var timerMu sync.Mutex
	var timer *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("coreconfig: reload failed, keeping previous config", "path", w.path, "error", err)
			return
		}
		w.logger.Info("coreconfig: reloaded", "path", w.path)
		if w.onReload != nil {
			w.onReload(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)
			timerMu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("coreconfig: watch error", "error", err)
		}
	}
}
