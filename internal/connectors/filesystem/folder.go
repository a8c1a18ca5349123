// Package filesystem watches a local folder of course materials.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/lectern/internal/logger"
)

// ChangeType classifies a folder change.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change is a material file appearing, changing or disappearing.
type Change struct {
	Type       ChangeType
	Path       string
	MaterialID string
}

// ErrClosed is returned by operations on a closed folder.
var ErrClosed = errors.New("folder is closed")

// Folder discovers material files under a root directory.
type Folder struct {
	root   string
	accept func(path string) bool
	log    logger.Logger

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// Option configures a Folder.
type Option func(*Folder)

// WithFilter limits the folder to files accept returns true for.
func WithFilter(accept func(path string) bool) Option {
	return func(f *Folder) {
		if accept != nil {
			f.accept = accept
		}
	}
}

// New creates a folder rooted at root. Hidden files and directories are
// always skipped.
func New(root string, opts ...Option) *Folder {
	f := &Folder{
		root:   root,
		accept: func(string) bool { return true },
		log:    logger.With("folder"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the watched directory.
func (f *Folder) Root() string {
	return f.root
}

func (f *Folder) checkRoot() error {
	info, err := os.Stat(f.root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", f.root)
	}
	return nil
}

// Scan lists every eligible file under the root as a ChangeCreated.
func (f *Folder) Scan(ctx context.Context) ([]Change, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	if err := f.checkRoot(); err != nil {
		return nil, err
	}

	var changes []Change
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			f.log.Warn("skipping %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == f.root {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !f.accept(path) {
			return nil
		}
		changes = append(changes, Change{Type: ChangeCreated, Path: path, MaterialID: f.MaterialID(path)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Watch streams changes under the root until ctx is cancelled or the
// folder is closed. The channel is closed when watching stops.
func (f *Folder) Watch(ctx context.Context) (<-chan Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	if f.watcher != nil {
		return nil, errors.New("folder is already being watched")
	}
	if err := f.checkRoot(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := f.addTree(watcher, f.root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	f.watcher = watcher

	changes := make(chan Change)
	go f.loop(ctx, watcher, changes)
	return changes, nil
}

func (f *Folder) loop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	defer f.stopWatching(watcher)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				f.watchNewDir(watcher, event.Name)
			}
			change := f.handleEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("watch error: %v", err)
		}
	}
}

// addTree watches dir and every non-hidden directory below it.
func (f *Folder) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (f *Folder) watchNewDir(watcher *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || isHidden(f.rel(path)) {
		return
	}
	if err := f.addTree(watcher, path); err != nil {
		f.log.Warn("%v", err)
	}
}

// handleEvent maps a filesystem event to a change, or nil when the event
// does not concern an eligible file.
func (f *Folder) handleEvent(event fsnotify.Event) *Change {
	if isHidden(f.rel(event.Name)) {
		return nil
	}

	var kind ChangeType
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = ChangeDeleted
	case event.Has(fsnotify.Create):
		kind = ChangeCreated
	case event.Has(fsnotify.Write):
		kind = ChangeUpdated
	default:
		return nil
	}

	if kind != ChangeDeleted {
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
	}
	if !f.accept(event.Name) {
		return nil
	}
	return &Change{Type: kind, Path: event.Name, MaterialID: f.MaterialID(event.Name)}
}

func (f *Folder) stopWatching(watcher *fsnotify.Watcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher == watcher {
		f.watcher = nil
	}
	_ = watcher.Close()
}

func (f *Folder) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close stops watching. It is safe to call more than once.
func (f *Folder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.watcher != nil {
		err := f.watcher.Close()
		f.watcher = nil
		return err
	}
	return nil
}

var idUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// MaterialID derives a stable material ID from a file's path relative to
// the root, so edits re-ingest the same material.
// "Unit 1/Cells.md" becomes "unit-1-cells".
func (f *Folder) MaterialID(path string) string {
	rel := f.rel(path)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	id := idUnsafe.ReplaceAllString(strings.ToLower(filepath.ToSlash(rel)), "-")
	return strings.Trim(id, "-")
}

// rel returns path relative to the root, or its base name when it lies
// outside the root.
func (f *Folder) rel(path string) string {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
