package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a Store whenever its file changes on disk and then calls
// onChange. The directory is watched rather than the file so editors that
// replace the file by rename are seen.
type Watcher struct {
	store    *Store
	path     string
	onChange func()
	debounce time.Duration

	w    *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching the store's file. onChange may be nil.
func Watch(store *Store, onChange func()) (*Watcher, error) {
	if store.Path() == "" {
		return nil, fmt.Errorf("store has no configuration file")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	path := filepath.Clean(store.Path())
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		store:    store,
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		w:        fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	log.Debug("Watching configuration", "path", path)
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.schedule()
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warn("Configuration watcher error", "err", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	changed, err := w.store.Reload()
	if err != nil {
		log.Warn("Could not reload configuration", "path", w.path, "err", err)
		return
	}
	if !changed {
		return
	}
	log.Info("Configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange()
	}
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.w.Close()
	w.wg.Wait()
	return err
}
