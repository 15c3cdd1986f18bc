package nodemux

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yacchi/nodemux/native"
)

// entry is one row of the subscription table.
type entry[T comparable] struct {
	listeners []*Listener[T]
	opts      ObserveOptions
}

// Multiplexer routes the notifications of one native handle to the
// listeners registered per target.
//
// A Multiplexer is either enabled or disabled for its whole lifetime.
// When the capability could not be opened every method is a no-op, so
// callers never need to branch on availability. Close ends the lifetime
// of an enabled Multiplexer.
//
// All methods are safe for concurrent use. Listeners are invoked without
// any internal lock held and may call back into the Multiplexer.
type Multiplexer[T comparable] struct {
	logger zerolog.Logger
	report DiagnosticHandler

	// mu protects handle calls, entries and closed. Native Start/StopAll
	// happen under mu so the handle's observed set always equals a replay
	// of entries.
	mu      sync.Mutex
	handle  native.Handle[T]
	entries map[T]*entry[T]
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// New opens the native capability and returns a Multiplexer over it.
//
// If open is nil or fails with native.ErrUnavailable the Multiplexer is
// disabled without any diagnostic. Any other open error also disables it
// and is reported as DiagnosticOpenFailed. Warnings from a handle that
// implements native.Warner are reported as DiagnosticFeatureMissing.
func New[T comparable](open native.Opener[T], opts ...Option) *Multiplexer[T] {
	cfg := newConfig(opts)
	m := &Multiplexer[T]{
		logger: cfg.logger,
		report: cfg.diagnostic,
	}

	if open == nil {
		m.logger.Debug().Msg("nodemux: no native observer configured, disabled")
		return m
	}

	h, err := open(m.deliver)
	if err != nil || h == nil {
		if err != nil && !errors.Is(err, native.ErrUnavailable) {
			m.emit([]Diagnostic{{
				Code:    DiagnosticOpenFailed,
				Message: "failed to open native observer",
				Err:     err,
			}})
		}
		m.logger.Debug().Err(err).Msg("nodemux: native observer unavailable, disabled")
		return m
	}

	m.mu.Lock()
	m.handle = h
	m.entries = make(map[T]*entry[T])
	m.mu.Unlock()

	if w, ok := h.(native.Warner); ok {
		var diags []Diagnostic
		for _, msg := range w.Warnings() {
			diags = append(diags, Diagnostic{Code: DiagnosticFeatureMissing, Message: msg})
		}
		m.emit(diags)
	}
	return m
}

// IsEnabled reports whether the Multiplexer has a live native handle.
// It is false when the capability was unavailable and after Close.
func (m *Multiplexer[T]) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabledLocked()
}

func (m *Multiplexer[T]) enabledLocked() bool {
	return m.handle != nil && !m.closed
}

// Observe registers listener for target with DefaultOptions.
func (m *Multiplexer[T]) Observe(target T, listener *Listener[T]) {
	m.ObserveWith(target, listener, DefaultOptions())
}

// ObserveWith registers listener for target.
//
// The first registration for a target chooses its options and starts the
// native observation. Later registrations for the same target only add
// the listener; their opts are ignored until the target is fully removed.
// Registering the same listener twice has no further effect.
//
// A non-empty AttributeFilter turns on Attributes. Invalid options or a
// nil listener are reported as diagnostics and the call is otherwise
// ignored.
func (m *Multiplexer[T]) ObserveWith(target T, listener *Listener[T], opts ObserveOptions) {
	var diags []Diagnostic
	defer func() { m.emit(diags) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabledLocked() {
		return
	}
	if !listener.valid() {
		diags = append(diags, Diagnostic{
			Code:    DiagnosticInvalidListener,
			Message: "listener must be created with NewListener and a non-nil callback",
			Target:  target,
		})
		return
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		diags = append(diags, Diagnostic{
			Code:    DiagnosticInvalidOptions,
			Message: "options must select at least one kind of change",
			Target:  target,
			Err:     err,
		})
		return
	}

	if e, ok := m.entries[target]; ok {
		if !slices.Contains(e.listeners, listener) {
			e.listeners = append(e.listeners, listener)
		}
		return
	}

	opts.AttributeFilter = slices.Clone(opts.AttributeFilter)
	if err := m.handle.Start(target, opts); err != nil {
		diags = append(diags, Diagnostic{
			Code:    DiagnosticStartFailed,
			Message: "native observer refused target",
			Target:  target,
			Err:     err,
		})
		return
	}
	m.entries[target] = &entry[T]{
		listeners: []*Listener[T]{listener},
		opts:      opts,
	}
	m.logger.Debug().Interface("target", target).Stringer("listener", listener).Msg("nodemux: observing target")
}

// Unobserve removes listener from target. When it was the last listener,
// or listener is nil, the target is removed entirely and the native
// handle is reconciled with the remaining targets.
func (m *Multiplexer[T]) Unobserve(target T, listener *Listener[T]) {
	var diags []Diagnostic
	defer func() { m.emit(diags) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabledLocked() {
		return
	}
	e, ok := m.entries[target]
	if !ok {
		return
	}

	if listener != nil {
		if i := slices.Index(e.listeners, listener); i >= 0 {
			e.listeners = slices.Delete(e.listeners, i, i+1)
		}
		if len(e.listeners) > 0 {
			return
		}
	}

	delete(m.entries, target)
	m.logger.Debug().Interface("target", target).Msg("nodemux: target removed")
	diags = m.reconcileLocked()
}

// UnobserveAll removes target and all of its listeners.
func (m *Multiplexer[T]) UnobserveAll(target T) {
	m.Unobserve(target, nil)
}

// Disconnect removes every target and stops the native handle.
// The Multiplexer stays enabled and accepts new registrations.
func (m *Multiplexer[T]) Disconnect() {
	var diags []Diagnostic
	defer func() { m.emit(diags) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabledLocked() {
		return
	}
	diags = m.disconnectLocked()
}

func (m *Multiplexer[T]) disconnectLocked() []Diagnostic {
	m.entries = make(map[T]*entry[T])
	if err := m.handle.StopAll(); err != nil {
		return []Diagnostic{{
			Code:    DiagnosticStopFailed,
			Message: "failed to stop native observer",
			Err:     err,
		}}
	}
	return nil
}

// Close disconnects and releases the native handle. It is the teardown
// hook for the owner of the Multiplexer and is safe to call more than
// once; only the first call does any work. Every other method becomes a
// no-op afterwards.
func (m *Multiplexer[T]) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		if !m.enabledLocked() {
			m.closed = true
			m.mu.Unlock()
			return
		}
		diags := m.disconnectLocked()
		m.closed = true
		m.entries = nil
		h := m.handle
		m.mu.Unlock()

		m.emit(diags)

		// Outside the lock: closing may wait for an in-flight delivery.
		if err := h.Close(); err != nil {
			m.closeErr = fmt.Errorf("failed to close native observer: %w", err)
		}
		m.logger.Debug().Msg("nodemux: closed")
	})
	return m.closeErr
}

// Targets returns the currently observed targets in no particular order.
func (m *Multiplexer[T]) Targets() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := make([]T, 0, len(m.entries))
	for t := range m.entries {
		targets = append(targets, t)
	}
	return targets
}

// Options returns the options target is observed with.
func (m *Multiplexer[T]) Options(target T) (ObserveOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[target]
	if !ok {
		return ObserveOptions{}, false
	}
	opts := e.opts
	opts.AttributeFilter = slices.Clone(opts.AttributeFilter)
	return opts, true
}

// Listeners returns the number of listeners registered for target.
func (m *Multiplexer[T]) Listeners(target T) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[target]; ok {
		return len(e.listeners)
	}
	return 0
}

// deliver is the native handle's delivery callback.
// Records for targets that are no longer in the table are dropped.
func (m *Multiplexer[T]) deliver(records []native.Record[T]) {
	for _, r := range records {
		for _, l := range m.listenersFor(r.Target) {
			l.fn(r)
		}
	}
}

// listenersFor snapshots the listeners of target so they can run unlocked.
func (m *Multiplexer[T]) listenersFor(target T) []*Listener[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[target]
	if !ok {
		return nil
	}
	return slices.Clone(e.listeners)
}

func (m *Multiplexer[T]) emit(diags []Diagnostic) {
	if m.report == nil {
		return
	}
	for _, d := range diags {
		m.report(d)
	}
}
