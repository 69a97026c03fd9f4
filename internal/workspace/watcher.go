package workspace

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/logging"
)

const debounceInterval = 50 * time.Millisecond

// ReloadFunc receives the freshly loaded catalog, or the error that stopped
// it from loading. A failed reload leaves the caller's previous catalog alone.
type ReloadFunc func(*Catalog, error)

// Watcher reloads a workspace file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which save by renaming a temp file over the original still
// trigger a reload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	bus      *event.Bus
	logger   *logging.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for path. bus and logger may be nil.
func NewWatcher(path string, onReload ReloadFunc, bus *event.Bus, logger *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		bus:      bus,
		logger:   logger.WithComponent("workspace-watcher"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.watchLoop()
}

// Stop ends the watch loop and waits for it to exit. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	// Editors often emit several events for one save.
	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(debounceInterval)

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workspace watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cat, err := Load(w.path)

	queries := 0
	if err != nil {
		w.logger.Warn("workspace reload failed", "path", w.path, "error", err)
	} else {
		queries = cat.Len()
		w.logger.Info("workspace reloaded", "path", w.path, "queries", queries)
	}

	if w.onReload != nil {
		w.onReload(cat, err)
	}
	if w.bus != nil {
		w.bus.Publish(event.NewCatalogReloadedEvent(w.path, queries, err))
	}
}
