// Package watcher turns fsnotify notifications under a workspace root into
// add, change and unlink events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/weft/internal/workflow"
)

// Event is one file-system notification.
type Event struct {
	// Path is absolute.
	Path string
	Kind workflow.EventKind
}

// Handler receives events from the watcher goroutine.
type Handler func(Event)

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Watcher recursively watches a directory tree.
type Watcher struct {
	root    string
	handler Handler
	ignore  func(rel string) bool
	logger  Logger

	fs       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
	dirs     map[string]struct{}
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithIgnore replaces the ignore predicate. It receives slash-separated paths
// relative to the root.
func WithIgnore(fn func(rel string) bool) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.ignore = fn
		}
	}
}

// New creates a watcher for root. Call Start to begin delivering events.
func New(root string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}
	w := &Watcher{
		root:    abs,
		handler: handler,
		ignore:  func(rel string) bool { return workflow.Ignored(rel, nil) },
		logger:  nopLogger{},
		fs:      fsw,
		done:    make(chan struct{}),
		dirs:    map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start registers every directory under the root and begins processing
// events until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addTree(w.root, false); err != nil {
		return err
	}
	go w.process(ctx)
	return nil
}

// Stop releases the underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fs.Close()
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// Watching reports whether Start has been called and Stop has not.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) watchingDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return rel, true
	}
	return rel, !w.ignore(rel)
}

// addTree watches dir and its subdirectories. When emit is set, files found
// along the way are reported as additions; a newly created directory may
// already hold files by the time it is registered.
func (w *Watcher) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watcher: walk %s: %w", dir, err)
			}
			return nil
		}
		if _, ok := w.rel(path); !ok {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if emit {
				w.handler(Event{Path: path, Kind: workflow.EventAdd})
			}
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watcher: watch %s: %w", path, err)
		}
		w.mu.Lock()
		w.dirs[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if _, ok := w.rel(event.Name); !ok {
		return
	}
	kind, ok := convertOp(event.Op)
	if !ok {
		return
	}
	if kind == workflow.EventAdd {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.logger.Printf("watcher: %v", err)
			}
			return
		}
	}
	if kind == workflow.EventUnlink {
		w.mu.Lock()
		_, wasDir := w.dirs[event.Name]
		delete(w.dirs, event.Name)
		w.mu.Unlock()
		if wasDir {
			_ = w.fs.Remove(event.Name)
		}
	}
	w.handler(Event{Path: event.Name, Kind: kind})
}

// convertOp maps an fsnotify op onto an event kind. Chmod-only events are dropped.
func convertOp(op fsnotify.Op) (workflow.EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return workflow.EventAdd, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return workflow.EventUnlink, true
	case op.Has(fsnotify.Write):
		return workflow.EventChange, true
	default:
		return "", false
	}
}
