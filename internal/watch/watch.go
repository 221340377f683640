// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch reports file changes below a directory tree.
//
// It wraps fsnotify, which watches single directories, with a recursive
// walk and adds directories created after startup. Events are delivered on a
// bounded channel and dropped, never blocked on, when the consumer falls
// behind.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/bartekus/testloop/internal/change"
	"github.com/bartekus/testloop/internal/logging"
	"github.com/bartekus/testloop/internal/metrics"
	"github.com/bartekus/testloop/internal/scanner"
)

// DefaultBuffer is the capacity of the event channel.
const DefaultBuffer = 256

// ErrNotDirectory is returned when the watch root is missing or not a directory.
var ErrNotDirectory = errors.New("watch path is not a directory")

// Options configures a Watcher.
type Options struct {
	ExcludeDirs []string
	Buffer      int
	Logger      *logging.Logger
	Metrics     *metrics.Registry
}

// Watcher is a recursive fsnotify watcher.
type Watcher struct {
	root    string
	fs      *fsnotify.Watcher
	scan    *scanner.Scanner
	logger  *logging.Logger
	metrics *metrics.Registry

	events  chan change.Event
	errors  chan error
	dropped atomic.Int64

	done     chan struct{}
	loops    sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool
}

// New validates root and prepares a watcher. Nothing is watched until Start.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDirectory, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDirectory, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Watcher{
		root:    abs,
		fs:      fsw,
		scan:    scanner.New(abs, scanner.FilterOptions{ExcludeDirs: opts.ExcludeDirs}),
		logger:  logging.OrDefault(opts.Logger).WithComponent("watch"),
		metrics: opts.Metrics,
		events:  make(chan change.Event, buffer),
		errors:  make(chan error, 16),
		done:    make(chan struct{}),
	}, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string {
	return w.root
}

// Start registers every directory below the root and begins delivering
// events. It fails when the tree cannot be walked.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already started")
	}
	dirs, err := w.scan.Dirs(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDirectory, err)
	}
	for _, dir := range dirs {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.logger.Debug("watching", "root", w.root, "directories", len(dirs))

	w.loops.Add(1)
	go w.loop(ctx)
	return nil
}

// Events returns the change stream. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan change.Event {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Dropped returns how many events were lost to a full channel.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Watching returns the directories currently registered.
func (w *Watcher) Watching() []string {
	return w.fs.WatchList()
}

// Stop ends the event loop, waits for it to return and releases the
// underlying watches. Events and Errors are closed once Stop returns.
// It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.loops.Wait()
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.loops.Done()
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		w.addTree(ctx, ev.Name)
	}

	out := change.Event{Path: ev.Name, Kind: kindOf(ev.Op)}
	select {
	case w.events <- out:
	default:
		w.dropped.Add(1)
		w.metrics.EventDropped()
		w.logger.Debug("event dropped", "path", ev.Name)
	}
}

// addTree starts watching a directory created after Start, and anything
// already created beneath it.
func (w *Watcher) addTree(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.scan.Skip(path) {
		return
	}
	dirs, err := w.scan.DirsUnder(ctx, path)
	if err != nil {
		w.logger.Debug("walk new directory", "path", path, "error", err)
		return
	}
	for _, dir := range dirs {
		if err := w.fs.Add(dir); err != nil {
			w.logger.Warn("watch new directory", "path", dir, "error", err)
		}
	}
}

func kindOf(op fsnotify.Op) change.Kind {
	switch {
	case op.Has(fsnotify.Write):
		return change.KindModified
	case op.Has(fsnotify.Create):
		return change.KindCreated
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return change.KindDeleted
	default:
		return change.KindOther
	}
}
