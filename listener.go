package nodemux

import (
	"fmt"
	"sync/atomic"
)

var nextListenerID atomic.Uint64

// Listener wraps a callback with a unique ID for reliable removal.
// Two listeners are the same only if they are the same pointer, so keep
// the value returned by NewListener to unobserve later.
type Listener[T comparable] struct {
	id uint64
	fn func(Record[T])
}

// NewListener creates a listener that calls fn for each matching record.
func NewListener[T comparable](fn func(Record[T])) *Listener[T] {
	return &Listener[T]{
		id: nextListenerID.Add(1),
		fn: fn,
	}
}

// ID returns the listener's process-unique identifier.
func (l *Listener[T]) ID() uint64 {
	return l.id
}

func (l *Listener[T]) String() string {
	return fmt.Sprintf("listener#%d", l.id)
}

func (l *Listener[T]) valid() bool {
	return l != nil && l.fn != nil
}
