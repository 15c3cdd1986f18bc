package mutest

import (
	"slices"
	"sync"

	"github.com/yacchi/nodemux/native"
)

// Recorder collects the records passed to its Func.
type Recorder[T comparable] struct {
	mu      sync.Mutex
	records []native.Record[T]
}

// Func is the callback to pass to nodemux.NewListener.
func (r *Recorder[T]) Func(rec native.Record[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of everything received so far.
func (r *Recorder[T]) Records() []native.Record[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Len returns the number of records received.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Reset discards the received records.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
