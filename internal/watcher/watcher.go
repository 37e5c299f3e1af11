// Package watcher reports changes to the directories that describe the
// set of macro devices: the device configuration directory and the
// kernel's input node directory.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a directory must stay quiet before a change
// is reported.
const DefaultDebounce = 250 * time.Millisecond

// Watcher monitors directories and calls its callback once per burst of
// changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration
	onChange  func()
	logger    *slog.Logger

	mu      sync.Mutex
	changed time.Time
	watched []string

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a watcher over paths. onChange runs on the watcher's own
// goroutine.
func New(paths []string, debounce time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		paths:     paths,
		debounce:  debounce,
		onChange:  onChange,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Paths that do not exist or cannot be watched are
// logged and skipped.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil || !info.IsDir() {
			w.logger.Warn("not watching", "path", absPath, "error", err)
			continue
		}
		if err := w.fsWatcher.Add(absPath); err != nil {
			w.logger.Warn("not watching", "path", absPath, "error", err)
			continue
		}
		w.watched = append(w.watched, absPath)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop shuts the watcher down. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsWatcher.Close()
	})
	return err
}

// Close implements io.Closer.
func (w *Watcher) Close() error {
	return w.Stop()
}

// WatchedPaths returns the directories actually being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.watched
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// Chmod matters: udev fixes node permissions after creating it.
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write|fsnotify.Chmod) == 0 {
				continue
			}
			w.logger.Debug("watched path changed", "path", event.Name, "op", event.Op.String())
			w.mark(time.Now())

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) mark(now time.Time) {
	w.mu.Lock()
	w.changed = now
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			if w.settled(now) {
				w.onChange()
			}
		}
	}
}

// settled reports, once, that the last change is older than the debounce
// interval.
func (w *Watcher) settled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.changed.IsZero() || now.Sub(w.changed) < w.debounce {
		return false
	}
	w.changed = time.Time{}
	return true
}
