package modules

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events (e.g. a module
// directory being copied in file by file) into a single rescan.
const watchDebounce = 250 * time.Millisecond

// Watch rescans l.modulesDir on every create/write/remove/rename event
// until ctx is cancelled, logging the result of each rescan. Grounded
// on _examples/haasonsaas-nexus/internal/skills/manager.go's
// fsnotify-plus-debounce-timer watch loop.
func (l *Loader) Watch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.modulesDir); err != nil {
		return err
	}

	var timer *time.Timer
	rescan := func() {
		if _, err := l.Scan(); err != nil {
			logger.Warn("module rescan failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, rescan)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("module watch error", "error", err)
		}
	}
}
