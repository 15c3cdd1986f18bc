package native

// DeliverFunc receives batches of records from a Handle.
// Records arrive in the order the capability observed them.
type DeliverFunc[T comparable] func(records []Record[T])

// Handle is the single native observer owned by a multiplexer.
//
// Start adds a target to the observed set. There is no per-target
// removal: StopAll drops every target and the owner re-issues Start for
// the ones it still wants. Close releases the underlying resource.
type Handle[T comparable] interface {
	Start(target T, opts Options) error
	StopAll() error
	Close() error
}

// Opener acquires a Handle whose notifications go to deliver.
// It returns an error wrapping ErrUnavailable when the capability is
// absent; the caller treats that as a permanent, silent degrade.
type Opener[T comparable] func(deliver DeliverFunc[T]) (Handle[T], error)

// Warner is implemented by handles that work but lack a secondary
// feature. Each warning is surfaced once, right after opening.
type Warner interface {
	Warnings() []string
}
