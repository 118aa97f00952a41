package accounts

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads the accounts cache when the file changes and notifies the
// caller so coordinators can be rebuilt. It watches the containing directory
// rather than the file itself: editors typically replace the file, which
// would otherwise drop the watch.
type Watcher struct {
	cache    *Cache
	onChange func()
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(cache *Cache, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(filepath.Dir(cache.path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		cache:    cache,
		onChange: onChange,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.cache.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce the event bursts a single save produces.
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(watchDebounce)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Accounts file watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := w.cache.Reload(); err != nil {
		slog.Error("Failed to reload accounts file, keeping previous configuration", "path", w.cache.path, "error", err)
		return
	}
	slog.Info("Accounts configuration reloaded", "path", w.cache.path, "accounts", w.cache.GetEntryCount())
	if w.onChange != nil {
		w.onChange()
	}
}
