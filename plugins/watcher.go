package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce sets how long the watcher waits for changes to settle.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(l variables.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFragments also watches dir and reloads its fragments into store.
func WithFragments(dir string, store *prompt.MemoryStore) WatcherOption {
	return func(w *Watcher) {
		w.fragmentsDir = dir
		w.fragments = store
	}
}

// WithReloadHook is called after every reload with its outcome.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher reloads variable definitions, and optionally prompt fragments,
// whenever files in the watched directories change. Each reload goes through
// the Loader, so the variable registry emits its change notifications.
type Watcher struct {
	loader       *Loader
	dirs         []string
	fragmentsDir string
	fragments    *prompt.MemoryStore
	debounce     time.Duration
	logger       variables.Logger
	onReload     func(error)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending time.Time
}

// NewWatcher creates a Watcher for the definition dirs served by loader.
func NewWatcher(loader *Loader, dirs []string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		loader:   loader,
		dirs:     append([]string(nil), dirs...),
		debounce: 250 * time.Millisecond,
		logger:   nopLogger{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start begins watching. Directories that do not exist yet are skipped.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugin watcher: create fsnotify: %w", err)
	}
	w.fsWatcher = fsw

	watched := 0
	for _, dir := range w.watchDirs() {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			w.logger.Printf("plugin watcher: %s does not exist; not watching it", dir)
			continue
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("plugin watcher: watch %s: %w", dir, err)
		}
		watched++
	}
	if watched == 0 {
		_ = fsw.Close()
		return fmt.Errorf("plugin watcher: none of %v exist", w.watchDirs())
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine to exit.
// It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		if w.fsWatcher != nil {
			err = w.fsWatcher.Close()
		}
	})
	return err
}

// Reload loads definitions and fragments immediately.
func (w *Watcher) Reload() error {
	err := w.loader.Load(w.dirs...)
	if err == nil && w.fragments != nil {
		var fragments map[string]string
		fragments, err = prompt.ReadFragmentDir(w.fragmentsDir)
		if err == nil {
			w.fragments.Replace(fragments)
		}
	}
	if err != nil {
		w.logger.Printf("plugin watcher: reload failed, keeping previous definitions: %v", err)
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	return err
}

func (w *Watcher) watchDirs() []string {
	dirs := append([]string(nil), w.dirs...)
	if w.fragments != nil && w.fragmentsDir != "" {
		dirs = append(dirs, w.fragmentsDir)
	}
	return dirs
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("plugin watcher: %v", err)

		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) processPending() {
	w.mu.Lock()
	ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if ready {
		w.pending = time.Time{}
	}
	w.mu.Unlock()
	if ready {
		_ = w.Reload()
	}
}

func (w *Watcher) relevant(path string) bool {
	name := filepath.Base(path)
	if isYAMLFile(name) || isGoFile(name) {
		return true
	}
	if w.fragments != nil && prompt.IsFragmentFile(name) {
		return filepath.Clean(filepath.Dir(path)) == filepath.Clean(w.fragmentsDir)
	}
	return false
}

// EnsureDirs creates the watched directories so a watcher can start in a
// fresh project.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("plugin: ensure %s: %w", dir, err)
		}
	}
	return nil
}
