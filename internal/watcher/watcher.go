// Package watcher re-ingests documents when they change on disk.
package watcher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"factrag/internal/loader"
	"factrag/internal/logging"
)

// DefaultDelay is how long the watcher waits for writes to settle.
const DefaultDelay = 500 * time.Millisecond

// Batch is a settled set of file changes.
type Batch struct {
	Changed []string
	Removed []string
}

func (b Batch) Empty() bool { return len(b.Changed) == 0 && len(b.Removed) == 0 }

// Handler receives settled batches. Errors are logged and watching goes on.
type Handler func(ctx context.Context, batch Batch) error

// Watcher watches files and directories for supported documents.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	hashes    *hashTracker
	handler   Handler
	logger    *slog.Logger
	roots     []string
}

// New watches paths (files or directories, recursively). Existing files are
// hashed so saving them unchanged triggers nothing.
func New(paths []string, delay time.Duration, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	w := &Watcher{
		fsw:     fsw,
		hashes:  newHashTracker(),
		handler: handler,
		logger:  logging.OrDiscard(logger),
	}
	w.debouncer = NewDebouncer(delay)
	for _, p := range paths {
		if err := w.add(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	w.roots = append(w.roots, path)
	if !info.IsDir() {
		w.hashes.HasChanged(path)
		// watch the parent so editors that replace the file are still seen
		return w.fsw.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.fsw.Add(p)
		}
		if loader.Supported(p) {
			w.hashes.HasChanged(p)
		}
		return nil
	})
}

// Run processes events until ctx is done. Pending changes are dropped on exit.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debouncer.Stop()
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-w.debouncer.C():
			batch := w.debouncer.Drain()
			if batch.Empty() {
				continue
			}
			w.logger.Info("documents changed", "changed", len(batch.Changed), "removed", len(batch.Removed))
			if err := w.handler(ctx, batch); err != nil {
				w.logger.Error("re-ingest failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
			return
		}
	}
	if !loader.Supported(event.Name) || !w.covers(event.Name) {
		return
	}
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, err := os.Stat(event.Name); err == nil {
			// replaced in place
			if w.hashes.HasChanged(event.Name) {
				w.debouncer.Add(event.Name, false)
			}
			return
		}
		w.hashes.Remove(event.Name)
		w.debouncer.Add(event.Name, true)
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if !w.hashes.HasChanged(event.Name) {
			w.logger.Debug("skip unchanged file", "path", event.Name)
			return
		}
		w.debouncer.Add(event.Name, false)
	}
}

// covers reports whether path is one of the watched files or lies under a
// watched directory.
func (w *Watcher) covers(path string) bool {
	path = filepath.Clean(path)
	for _, root := range w.roots {
		if path == root {
			return true
		}
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			if info, err := os.Stat(root); err == nil && info.IsDir() {
				return true
			}
		}
	}
	return false
}

// Debouncer collects paths and signals once no change arrived for the delay.
type Debouncer struct {
	mu      sync.Mutex
	changed map[string]struct{}
	removed map[string]struct{}
	timer   *time.Timer
	ready   chan struct{}
	delay   time.Duration
	stopped bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		changed: map[string]struct{}{},
		removed: map[string]struct{}{},
		ready:   make(chan struct{}, 1),
		delay:   delay,
	}
}

// Add queues a path. A later event for the same path overrides an earlier one.
func (d *Debouncer) Add(path string, removed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if removed {
		delete(d.changed, path)
		d.removed[path] = struct{}{}
	} else {
		delete(d.removed, path)
		d.changed[path] = struct{}{}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.signal)
}

func (d *Debouncer) signal() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// C fires when a batch has settled.
func (d *Debouncer) C() <-chan struct{} { return d.ready }

// Drain returns the queued paths, sorted, and resets the queue.
func (d *Debouncer) Drain() Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := Batch{Changed: sortedKeys(d.changed), Removed: sortedKeys(d.removed)}
	d.changed = map[string]struct{}{}
	d.removed = map[string]struct{}{}
	return b
}

// Stop discards the timer; later adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// hashTracker remembers file content hashes to skip writes that change nothing.
type hashTracker struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newHashTracker() *hashTracker { return &hashTracker{hashes: map[string]string{}} }

// HasChanged reports whether path is new or its content differs from the last
// call. Unreadable files count as changed.
func (t *hashTracker) HasChanged(path string) bool {
	hash, err := fileHash(path)
	if err != nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.hashes[path]
	t.hashes[path] = hash
	return !ok || old != hash
}

func (t *hashTracker) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hashes, path)
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
