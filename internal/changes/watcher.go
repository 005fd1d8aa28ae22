package changes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchError reports a failure of the file watching subsystem. It ends the
// watch session.
type WatchError struct {
	Err error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watch failed: %v", e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Root is the directory to watch recursively.
	Root string
	// Filter selects the paths that produce change sets (optional).
	Filter *Filter
	// Debounce is the coalescing window (DefaultDebounce if zero).
	Debounce time.Duration
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Watcher produces change sets from file system notifications. Paths are
// reported relative to Root using forward slashes.
type Watcher struct {
	root     string
	filter   *Filter
	debounce time.Duration
	logger   *slog.Logger
	submit   func(ChangeSet)
}

// NewWatcher creates a Watcher that passes each debounced change set to
// submit.
func NewWatcher(cfg WatcherConfig, submit func(ChangeSet)) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &Watcher{
		root:     root,
		filter:   cfg.Filter,
		debounce: cfg.Debounce,
		logger:   logger,
		submit:   submit,
	}
}

// Run watches until ctx is done. It returns nil on cancellation and a
// *WatchError when the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &WatchError{Err: err}
	}
	defer func() { _ = fsw.Close() }()

	if err := w.watchDir(fsw, w.root); err != nil {
		return &WatchError{Err: err}
	}

	deb := NewDebouncer(w.debounce, func(events []Event) {
		cs := Compute(events, nil, w.filter)
		if cs.Empty() {
			return
		}
		w.logger.Info("change detected", "dirty", len(cs.Dirty), "deleted", len(cs.Deleted))
		w.submit(cs)
	})
	defer deb.Stop()

	w.logger.Info("watching for changes", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return &WatchError{Err: errors.New("event channel closed")}
			}
			w.handle(fsw, deb, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return &WatchError{Err: errors.New("error channel closed")}
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watcher dropped events", "error", err)
				continue
			}
			return &WatchError{Err: err}
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, deb *Debouncer, event fsnotify.Event) {
	rel, ok := w.relative(event.Name)
	if !ok {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Remove):
		op = OpRemove
	case event.Has(fsnotify.Rename):
		op = OpRename
	case event.Has(fsnotify.Create):
		op = OpCreate
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.filter.IgnoredDir(rel) {
				if err := w.watchDir(fsw, event.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
				}
			}
			return
		}
	case event.Has(fsnotify.Write):
		op = OpWrite
	default:
		return
	}

	w.logger.Debug("file event", "path", rel, "op", op.String())
	deb.Add(Event{Path: rel, Op: op})
}

func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// watchDir recursively adds a directory to the watcher.
func (w *Watcher) watchDir(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, _ := w.relative(path)
			if strings.HasPrefix(d.Name(), ".") || w.filter.IgnoredDir(rel) {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}
