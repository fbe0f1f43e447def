package alerting

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// MonitorStore is the subset of the monitor repository used to sync monitor files.
type MonitorStore interface {
	Create(ctx context.Context, monitor *models.Monitor) error
	GetByID(ctx context.Context, id string) (*models.Monitor, error)
	Update(ctx context.Context, monitor *models.Monitor) error
}

// SyncMonitors upserts monitors into store by id. Alerts of triggers dropped from an
// updated monitor are moved to history through runner, which may be nil.
func SyncMonitors(ctx context.Context, store MonitorStore, runner *Runner, monitors []*models.Monitor) error {
	for _, m := range monitors {
		existing, err := store.GetByID(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("get monitor %s: %w", m.ID, err)
		}
		if existing == nil {
			if err := store.Create(ctx, m); err != nil {
				return fmt.Errorf("create monitor %s: %w", m.ID, err)
			}
			continue
		}

		m.Version = existing.Version
		if err := store.Update(ctx, m); err != nil {
			return fmt.Errorf("update monitor %s: %w", m.ID, err)
		}
		if runner != nil {
			if _, err := runner.MoveAlerts(ctx, m.ID, m); err != nil {
				log.Printf("monitor %s: error moving alerts of removed triggers: %v", m, err)
			}
		}
	}
	return nil
}

// MonitorFileWatcher reloads a monitors file when it changes and syncs it into a store.
type MonitorFileWatcher struct {
	path     string
	limits   Limits
	store    MonitorStore
	runner   *Runner
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewMonitorFileWatcher creates a watcher for the monitors file at path.
func NewMonitorFileWatcher(path string, limits Limits, store MonitorStore, runner *Runner) (*MonitorFileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &MonitorFileWatcher{
		path:     absPath,
		limits:   limits,
		store:    store,
		runner:   runner,
		debounce: 500 * time.Millisecond,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Load reads the file once and syncs it into the store.
func (w *MonitorFileWatcher) Load(ctx context.Context) (int, error) {
	monitors, err := LoadMonitorsFromFile(w.path, w.limits)
	if err != nil {
		return 0, err
	}
	if err := SyncMonitors(ctx, w.store, w.runner, monitors); err != nil {
		return 0, err
	}
	return len(monitors), nil
}

// Start watches the file's directory so editors that replace the file are noticed.
func (w *MonitorFileWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	go w.run(ctx)
	return nil
}

// Stop stops the watcher.
func (w *MonitorFileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	w.watcher.Close()
}

func (w *MonitorFileWatcher) run(ctx context.Context) {
	var timer *time.Timer
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			// Editors often write a file in several steps.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			reload = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("monitors file watcher error: %v", err)
		case <-reload:
			reload = nil
			n, err := w.Load(ctx)
			if err != nil {
				log.Printf("failed to reload monitors from %s: %v", w.path, err)
				continue
			}
			log.Printf("reloaded %d monitors from %s", n, w.path)
		}
	}
}
