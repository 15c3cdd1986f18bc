// Package mutest provides test doubles for code built on nodemux.
//
// FakeHandle stands in for a native observer: it records every call the
// multiplexer makes and lets a test deliver records on demand. Recorder
// collects what a listener received.
package mutest

import (
	"fmt"
	"slices"
	"sync"

	"github.com/yacchi/nodemux/native"
)

// Op names a call made on a FakeHandle.
type Op string

// FakeHandle operations.
const (
	OpStart   Op = "start"
	OpStopAll Op = "stopAll"
	OpClose   Op = "close"
)

// Call is one recorded call on a FakeHandle.
type Call[T comparable] struct {
	Op      Op
	Target  T
	Options native.Options
}

// FakeHandle is an in-memory native.Handle.
type FakeHandle[T comparable] struct {
	mu       sync.Mutex
	deliver  native.DeliverFunc[T]
	calls    []Call[T]
	active   map[T]native.Options
	failing  map[T]error
	warnings []string
	stopErr  error
	closeErr error
}

var _ native.Handle[string] = (*FakeHandle[string])(nil)
var _ native.Warner = (*FakeHandle[string])(nil)

// NewFake creates a FakeHandle. Use Opener to hand it to nodemux.New.
func NewFake[T comparable]() *FakeHandle[T] {
	return &FakeHandle[T]{
		active:  make(map[T]native.Options),
		failing: make(map[T]error),
	}
}

// Opener returns an opener that yields f and captures the delivery callback.
func (f *FakeHandle[T]) Opener() native.Opener[T] {
	return func(deliver native.DeliverFunc[T]) (native.Handle[T], error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deliver = deliver
		return f, nil
	}
}

// Unavailable returns an opener for a capability that does not exist.
func Unavailable[T comparable]() native.Opener[T] {
	return func(native.DeliverFunc[T]) (native.Handle[T], error) {
		return nil, native.ErrUnavailable
	}
}

// Failing returns an opener that fails with err.
func Failing[T comparable](err error) native.Opener[T] {
	return func(native.DeliverFunc[T]) (native.Handle[T], error) {
		return nil, err
	}
}

// Start implements native.Handle.
func (f *FakeHandle[T]) Start(target T, opts native.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call[T]{Op: OpStart, Target: target, Options: opts})
	if err, ok := f.failing[target]; ok {
		return err
	}
	f.active[target] = opts
	return nil
}

// StopAll implements native.Handle.
func (f *FakeHandle[T]) StopAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call[T]{Op: OpStopAll})
	clear(f.active)
	return f.stopErr
}

// Close implements native.Handle.
func (f *FakeHandle[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call[T]{Op: OpClose})
	clear(f.active)
	return f.closeErr
}

// Warnings implements native.Warner.
func (f *FakeHandle[T]) Warnings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.warnings)
}

// SetWarnings sets the warnings reported when the handle is opened.
func (f *FakeHandle[T]) SetWarnings(w ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = w
}

// FailStart makes every future Start for target fail with err.
// A nil err clears the failure.
func (f *FakeHandle[T]) FailStart(target T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failing, target)
		return
	}
	f.failing[target] = err
}

// FailStopAll makes StopAll return err (it still clears the active set).
func (f *FakeHandle[T]) FailStopAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopErr = err
}

// FailClose makes Close return err.
func (f *FakeHandle[T]) FailClose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

// Emit delivers records the way a real observer would: records for
// targets that are not being observed are discarded before delivery.
// It returns the number of records delivered.
func (f *FakeHandle[T]) Emit(records ...native.Record[T]) int {
	f.mu.Lock()
	deliver := f.deliver
	var batch []native.Record[T]
	for _, r := range records {
		if _, ok := f.active[r.Target]; ok {
			batch = append(batch, r)
		}
	}
	f.mu.Unlock()

	if deliver != nil && len(batch) > 0 {
		deliver(batch)
	}
	return len(batch)
}

// Inject delivers records unconditionally, simulating notifications that
// were queued before their target was stopped.
func (f *FakeHandle[T]) Inject(records ...native.Record[T]) {
	f.mu.Lock()
	deliver := f.deliver
	f.mu.Unlock()

	if deliver != nil {
		deliver(records)
	}
}

// Calls returns every recorded call in order.
func (f *FakeHandle[T]) Calls() []Call[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Starts returns the recorded Start calls in order.
func (f *FakeHandle[T]) Starts() []Call[T] {
	return f.filter(OpStart)
}

// StopCount returns how many times StopAll was called.
func (f *FakeHandle[T]) StopCount() int {
	return len(f.filter(OpStopAll))
}

// CloseCount returns how many times Close was called.
func (f *FakeHandle[T]) CloseCount() int {
	return len(f.filter(OpClose))
}

// Active reports whether target is currently observed, and with which options.
func (f *FakeHandle[T]) Active(target T) (native.Options, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.active[target]
	return opts, ok
}

// ActiveCount returns the number of observed targets.
func (f *FakeHandle[T]) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// Reset forgets recorded calls but keeps the active set.
func (f *FakeHandle[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeHandle[T]) filter(op Op) []Call[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call[T]
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (c Call[T]) String() string {
	if c.Op == OpStart {
		return fmt.Sprintf("%s(%v)", c.Op, c.Target)
	}
	return string(c.Op)
}
