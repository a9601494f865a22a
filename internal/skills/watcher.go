package skills

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the registry when the skills directory changes.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// Watch starts watching the registry's directory for manifest changes.
// Every create, write, remove, or rename under the root triggers a full
// reload, which keeps the logic immune to editor rename-and-replace
// save patterns.
func Watch(registry *Registry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(registry.Dir()); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		registry: registry,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	go w.loop()

	log.Printf("[skills] watching %s for changes", registry.Dir())
	return w, nil
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	const reloadOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&reloadOps == 0 {
				continue
			}
			if err := w.registry.Load(); err != nil {
				log.Printf("[skills] reload failed: %v", err)
			}
		case <-w.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}
