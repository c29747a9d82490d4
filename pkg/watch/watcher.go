// Package watch monitors a live session log and decides when another
// compression pass is due.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls pass triggering.
type Config struct {
	// Debounce coalesces rapid writes into one change notification.
	Debounce time.Duration

	// MessageThreshold triggers a pass once this many new records have
	// accumulated since the last pass. Zero disables the count trigger.
	MessageThreshold int

	// IdleFlush triggers a pass when records are pending and the log has
	// been quiet for this long. Zero disables the idle trigger.
	IdleFlush time.Duration
}

// DefaultConfig returns the standard trigger thresholds.
func DefaultConfig() Config {
	return Config{
		Debounce:         2 * time.Second,
		MessageThreshold: 200,
		IdleFlush:        10 * time.Minute,
	}
}

// Watcher monitors one session log file.
type Watcher struct {
	cfg     Config
	watcher *fsnotify.Watcher
	path    string

	mu         sync.Mutex
	lastSize   int64
	processing bool

	// OnChange is called after debounce when the file has grown. It receives
	// the watched path and returns the number of records left unprocessed
	// (pending); the watcher uses that for the threshold triggers.
	OnChange func(path string) (pending int, err error)

	// OnTrigger fires a compression pass. reason is "threshold" or "idle".
	OnTrigger func(path, reason string) error

	// OnError receives watch and callback failures.
	OnError func(path string, err error)

	pendingMu sync.Mutex
	pending   int
	lastWrite time.Time
}

// NewWatcher creates a watcher for the given session log.
func NewWatcher(path string, cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// Watch the directory containing the file (fsnotify works better this way)
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		cfg:       cfg,
		watcher:   fsWatcher,
		path:      absPath,
		lastSize:  stat.Size(),
		lastWrite: time.Now(),
	}, nil
}

// Run starts the watch loop. Blocks until context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var debounceTimer *time.Timer
	var timerMu sync.Mutex

	var idleTick <-chan time.Time
	if w.cfg.IdleFlush > 0 {
		ticker := time.NewTicker(w.cfg.IdleFlush / 2)
		defer ticker.Stop()
		idleTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil || absPath != w.path {
				continue
			}

			timerMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.cfg.Debounce, w.handleChange)
			timerMu.Unlock()

		case <-idleTick:
			w.checkIdle()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(w.path, err)
			}
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	if w.processing {
		w.mu.Unlock()
		return
	}
	w.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(w.path, err)
		}
		return
	}

	w.mu.Lock()
	grown := stat.Size() != w.lastSize
	w.lastSize = stat.Size()
	w.mu.Unlock()
	if !grown {
		return
	}

	if w.OnChange == nil {
		return
	}
	pending, err := w.OnChange(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(w.path, err)
		}
		return
	}

	w.pendingMu.Lock()
	w.pending = pending
	w.lastWrite = time.Now()
	shouldTrigger := w.cfg.MessageThreshold > 0 && pending >= w.cfg.MessageThreshold
	w.pendingMu.Unlock()

	if shouldTrigger {
		w.trigger("threshold")
	}
}

func (w *Watcher) checkIdle() {
	w.pendingMu.Lock()
	idle := w.pending > 0 && w.cfg.IdleFlush > 0 &&
		time.Since(w.lastWrite) >= w.cfg.IdleFlush
	w.pendingMu.Unlock()

	if idle {
		w.trigger("idle")
	}
}

func (w *Watcher) trigger(reason string) {
	if w.OnTrigger == nil {
		return
	}
	if err := w.OnTrigger(w.path, reason); err != nil {
		if w.OnError != nil {
			w.OnError(w.path, err)
		}
		return
	}
	w.pendingMu.Lock()
	w.pending = 0
	w.lastWrite = time.Now()
	w.pendingMu.Unlock()
}

// Pending returns the current unprocessed record count.
func (w *Watcher) Pending() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return w.pending
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
