package cache

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// Watcher proactively invalidates cache entries when a local input file
// they depended on changes on disk, so a later Get never needs to stat
// every watch path itself (spec.md's domain stack: fsnotify "watches
// staged local input files referenced by a cache key so modification
// invalidates the entry without repeated stat polling").
type Watcher struct {
	fsw   *fsnotify.Watcher
	store Store

	mu      sync.Mutex
	byPath  map[string][]Key
	watched map[string]bool

	done chan struct{}
}

func NewWatcher(store Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "create cache file watcher")
	}
	w := &Watcher{
		fsw:     fsw,
		store:   store,
		byPath:  make(map[string][]Key),
		watched: make(map[string]bool),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch registers an entry's local input paths so the watcher invalidates
// it the moment any of them is written to or removed.
func (w *Watcher) Watch(key Key, paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		w.byPath[p] = append(w.byPath[p], key)
		if !w.watched[p] {
			if err := w.fsw.Add(p); err == nil {
				w.watched[p] = true
			}
		}
	}
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.invalidate(ev.Name)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) invalidate(path string) {
	w.mu.Lock()
	keys := w.byPath[path]
	delete(w.byPath, path)
	w.mu.Unlock()
	for _, k := range keys {
		_ = w.store.Delete(k)
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
