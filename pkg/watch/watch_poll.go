//go:build !linux

package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

type platform struct {
	mtimes map[string]time.Time
}

// New returns a watcher that polls modification times.
func New(onChange func(path string)) (*Watcher, error) {
	w := &Watcher{platform: platform{mtimes: make(map[string]time.Time)}}
	w.init(onChange)
	return w, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.mtimes[abs] = info.ModTime()
	w.mu.Unlock()
	return nil
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.mtimes))
	for path := range w.mtimes {
		paths = append(paths, path)
	}
	w.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		w.mu.Lock()
		last := w.mtimes[path]
		w.mtimes[path] = info.ModTime()
		w.mu.Unlock()
		if info.ModTime().After(last) {
			w.changed(path)
		}
	}
}

// Close stops pending callbacks.
func (w *Watcher) Close() error {
	w.stopPending()
	return nil
}
