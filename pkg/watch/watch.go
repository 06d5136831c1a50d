// Package watch calls back when watched files change. Bursts of events for
// one path within the debounce window collapse into a single callback.
package watch

import (
	"sync"
	"time"
)

// DefaultDebounce is how long a path must stay quiet before its callback runs.
const DefaultDebounce = 100 * time.Millisecond

// pollInterval is how often an idle watcher checks for events or
// cancellation.
const pollInterval = 50 * time.Millisecond

// Watcher reports changes to a set of files. Callbacks run on their own
// goroutines and may overlap for different paths.
type Watcher struct {
	Debounce time.Duration

	mu       sync.Mutex
	pending  map[string]*time.Timer
	onChange func(path string)
	platform
}

func (w *Watcher) init(onChange func(string)) {
	w.Debounce = DefaultDebounce
	w.pending = make(map[string]*time.Timer)
	w.onChange = onChange
}

func (w *Watcher) changed(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.onChange(path)
	})
}

// stopPending cancels callbacks that have not fired yet.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
