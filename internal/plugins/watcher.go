package plugins

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events (an unpacked plugin
// writes many files) into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher observes the plugins root and schedules a debounced full reload
// whenever plugin files change. Reloads go through the loader's in-flight
// guard; a reload rejected because one is already running is retried on the
// next change burst.
type Watcher struct {
	loader *Loader
	root   string
	logger *log.Logger
}

// NewWatcher creates a watcher that drives the given loader.
func NewWatcher(loader *Loader, root string, logger *log.Logger) *Watcher {
	return &Watcher{loader: loader, root: root, logger: logger}
}

// Run watches until the context is cancelled. The plugins root and its
// direct subdirectories are watched; fsnotify does not recurse on its own.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addWatches(fw); err != nil {
		return err
	}

	var mu sync.Mutex
	var debounce *time.Timer
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// A new plugin directory needs its own watch for the
			// descriptor write that follows.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := fw.Add(ev.Name); addErr != nil {
						w.logger.Printf("[PluginWatcher] watch %s: %v", ev.Name, addErr)
					}
				}
			}

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() { w.reload(ctx) })
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("[PluginWatcher] watch error: %v", err)
		}
	}
}

func (w *Watcher) addWatches(fw *fsnotify.Watcher) error {
	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch plugins root %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read plugins root %s: %w", w.root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || skipDirName(entry.Name()) {
			continue
		}
		if err := fw.Add(filepath.Join(w.root, entry.Name())); err != nil {
			w.logger.Printf("[PluginWatcher] watch %s: %v", entry.Name(), err)
		}
	}
	return nil
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.loader.LoadAll(ctx)
	switch {
	case errors.Is(err, ErrLoadInProgress):
		w.logger.Printf("[PluginWatcher] reload already in progress, skipping")
	case err != nil:
		w.logger.Printf("[PluginWatcher] reload failed: %v", err)
	default:
		w.logger.Printf("[PluginWatcher] reloaded %d plugins (%d errors)", report.Total, report.Errors)
	}
}
