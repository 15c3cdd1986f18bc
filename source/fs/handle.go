// Package fs provides a file system native observer built on fsnotify.
//
// Targets are paths. A directory target reports structural changes of its
// entries; with Subtree it also reports changes anywhere below it,
// including directories created after observation started. A file target
// reports its own content and attribute changes.
package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/yacchi/nodemux/native"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("fs observer closed")

// DefaultBatchSize is the maximum number of events delivered in one batch.
const DefaultBatchSize = 64

// AttributeMode is the attribute name reported for permission changes.
const AttributeMode = "mode"

var (
	newWatcher = fsnotify.NewWatcher
	osStat     = os.Stat
	walkDir    = filepath.WalkDir
	goos       = runtime.GOOS
)

// Option configures a Handle.
type Option func(*Handle)

// WithBatchSize sets how many queued events are folded into one delivery.
// Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(h *Handle) {
		if n > 0 {
			h.batchSize = n
		}
	}
}

// WithErrorHandler sets a callback for watcher errors, such as a
// subdirectory that could not be watched or an event queue overflow.
// Errors are dropped if no handler is set.
func WithErrorHandler(fn func(error)) Option {
	return func(h *Handle) {
		h.onError = fn
	}
}

// root is one observed target.
type root struct {
	path string
	opts native.Options
}

// owner ties a watched directory to a target. A file target is served by
// a watch on its parent directory and only claims events for its own path.
type owner struct {
	target string
	file   string
}

func (o owner) claims(name string) bool {
	return o.file == "" || o.file == name
}

// eventKey identifies a raw event for duplicate suppression.
type eventKey struct {
	name string
	op   fsnotify.Op
}

// Handle is a native.Handle over one fsnotify watcher.
//
// Only directories are watched, so a change to a file is reported by
// exactly one watch. A watched directory whose parent is watched too is
// the exception: its own attribute and rename events arrive once from
// each watch, and the second copy is dropped.
type Handle struct {
	w         *fsnotify.Watcher
	deliver   native.DeliverFunc[string]
	onError   func(error)
	batchSize int

	mu      sync.Mutex
	roots   map[string]root    // target -> root
	watched map[string][]owner // watched directory -> owners
	dups    map[eventKey]int   // copies of an event still expected
	errs    []error            // reported once mu is released
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Ensure Handle implements the native interfaces.
var _ native.Handle[string] = (*Handle)(nil)
var _ native.Warner = (*Handle)(nil)

// Opener returns a native.Opener for nodemux.New.
//
// Example:
//
//	mux := nodemux.New(fs.Opener(fs.WithBatchSize(16)))
func Opener(opts ...Option) native.Opener[string] {
	return func(deliver native.DeliverFunc[string]) (native.Handle[string], error) {
		return Open(deliver, opts...)
	}
}

// Open creates a Handle delivering to deliver. It returns an error
// wrapping native.ErrUnavailable on platforms fsnotify does not support.
func Open(deliver native.DeliverFunc[string], opts ...Option) (*Handle, error) {
	if !supported(goos) {
		return nil, fmt.Errorf("fsnotify on %s: %w", goos, native.ErrUnavailable)
	}

	w, err := newWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	h := &Handle{
		w:         w,
		deliver:   deliver,
		batchSize: DefaultBatchSize,
		roots:     make(map[string]root),
		watched:   make(map[string][]owner),
		dups:      make(map[eventKey]int),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.run()
	return h, nil
}

func supported(platform string) bool {
	switch platform {
	case "linux", "android", "darwin", "ios", "freebsd", "openbsd", "netbsd",
		"dragonfly", "windows", "illumos", "solaris":
		return true
	}
	return false
}

// Start implements native.Handle.
// The path must exist. A file is observed through its parent directory,
// which also keeps it observed across atomic replace (temp file + rename).
// With Subtree, every readable subdirectory of a directory is watched as
// well; unreadable ones are reported to the error handler.
func (h *Handle) Start(target string, opts native.Options) error {
	path := filepath.Clean(target)
	info, err := osStat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", target, err)
	}

	defer h.flushErrors()
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if _, ok := h.roots[target]; ok {
		h.roots[target] = root{path: path, opts: opts}
		return nil
	}

	if !info.IsDir() {
		if err := h.watchLocked(filepath.Dir(path), owner{target: target, file: path}); err != nil {
			return err
		}
		h.roots[target] = root{path: path, opts: opts}
		return nil
	}

	if err := h.watchLocked(path, owner{target: target}); err != nil {
		return err
	}
	h.roots[target] = root{path: path, opts: opts}

	if opts.Subtree {
		h.watchTreeLocked(path, target)
	}
	return nil
}

// StopAll implements native.Handle.
func (h *Handle) StopAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	var errs []error
	for path := range h.watched {
		// The kernel drops watches on deleted paths by itself.
		if err := h.w.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			errs = append(errs, fmt.Errorf("failed to remove watch %q: %w", path, err))
		}
	}
	clear(h.watched)
	clear(h.roots)
	clear(h.dups)
	return errors.Join(errs...)
}

// Close implements native.Handle. It stops event delivery and releases
// the fsnotify watcher. Only the first call has any effect.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		clear(h.watched)
		clear(h.roots)
		clear(h.dups)
		h.errs = nil
		h.mu.Unlock()

		close(h.done)
		if err := h.w.Close(); err != nil {
			h.closeErr = fmt.Errorf("failed to close fsnotify watcher: %w", err)
		}
	})
	return h.closeErr
}

// Warnings implements native.Warner.
func (h *Handle) Warnings() []string {
	return watchLimitWarnings()
}

// watchLocked adds o to the owners of the directory at path, adding the
// fsnotify watch if the directory is not watched yet.
func (h *Handle) watchLocked(path string, o owner) error {
	owners, ok := h.watched[path]
	if ok {
		if !slices.Contains(owners, o) {
			h.watched[path] = append(owners, o)
		}
		return nil
	}
	if err := h.w.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}
	h.watched[path] = []owner{o}
	return nil
}

// watchTreeLocked watches every directory below dir for target.
func (h *Handle) watchTreeLocked(dir, target string) {
	_ = walkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			h.errorLocked(fmt.Errorf("failed to walk %q: %w", p, err))
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || p == dir {
			return nil
		}
		if err := h.watchLocked(p, owner{target: target}); err != nil {
			h.errorLocked(err)
		}
		return nil
	})
}

// errorLocked queues err for the error handler. The handler may call back
// into the multiplexer and from there into h, so it never runs under mu.
func (h *Handle) errorLocked(err error) {
	if h.onError != nil {
		h.errs = append(h.errs, err)
	}
}

// flushErrors passes queued errors to the error handler.
func (h *Handle) flushErrors() {
	h.mu.Lock()
	errs := h.errs
	h.errs = nil
	h.mu.Unlock()

	for _, err := range errs {
		h.reportError(err)
	}
}

func (h *Handle) reportError(err error) {
	if h.onError != nil {
		h.onError(err)
	}
}
