//go:build linux

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	changeMask  = unix.IN_MODIFY | unix.IN_CLOSE_WRITE
	replaceMask = unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_IGNORED
)

type platform struct {
	fd    int
	paths map[int]string
}

// New returns an inotify-backed watcher that calls onChange with the
// absolute path of each changed file.
func New(onChange func(path string)) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %w", err)
	}
	w := &Watcher{platform: platform{fd: fd, paths: make(map[int]string)}}
	w.init(onChange)
	return w, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return w.addWatch(abs)
}

func (w *Watcher) addWatch(abs string) error {
	wd, err := unix.InotifyAddWatch(w.fd, abs, changeMask|unix.IN_DELETE_SELF|unix.IN_MOVE_SELF)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	w.mu.Lock()
	w.paths[wd] = abs
	w.mu.Unlock()
	return nil
}

// Run dispatches events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*16)
	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		default:
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				sleep(ctx, pollInterval)
				continue
			}
			return fmt.Errorf("reading inotify events: %w", err)
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)
			w.handle(int(event.Wd), event.Mask)
		}
	}
}

func (w *Watcher) handle(wd int, mask uint32) {
	w.mu.Lock()
	path, ok := w.paths[wd]
	if ok && mask&replaceMask != 0 {
		delete(w.paths, wd)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case mask&changeMask != 0:
		w.changed(path)
	case mask&replaceMask != 0:
		// Editors that save by renaming leave the watch on the old inode.
		if _, err := os.Stat(path); err == nil {
			if w.addWatch(path) == nil {
				w.changed(path)
			}
		}
	}
}

// Close releases the inotify descriptor.
func (w *Watcher) Close() error {
	w.stopPending()
	return unix.Close(w.fd)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
