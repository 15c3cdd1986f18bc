package nodemux

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DiagnosticCode classifies a Diagnostic.
type DiagnosticCode string

// Diagnostic codes.
const (
	// DiagnosticOpenFailed: the capability exists but could not be opened.
	DiagnosticOpenFailed DiagnosticCode = "open-failed"

	// DiagnosticFeatureMissing: the handle works but lacks a secondary feature.
	DiagnosticFeatureMissing DiagnosticCode = "feature-missing"

	// DiagnosticInvalidOptions: an observe call was rejected for its options.
	DiagnosticInvalidOptions DiagnosticCode = "invalid-options"

	// DiagnosticInvalidListener: an observe call was rejected for a nil listener.
	DiagnosticInvalidListener DiagnosticCode = "invalid-listener"

	// DiagnosticStartFailed: the handle refused to start observing a target.
	DiagnosticStartFailed DiagnosticCode = "start-failed"

	// DiagnosticStopFailed: the handle failed to stop observing.
	DiagnosticStopFailed DiagnosticCode = "stop-failed"
)

// Diagnostic is a non-fatal report. Diagnostics never change control flow.
type Diagnostic struct {
	// Code classifies the report.
	Code DiagnosticCode

	// Message is a human-readable description.
	Message string

	// Target is the target involved, or nil.
	Target any

	// Err is the underlying error, if any.
	Err error
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("nodemux: %s: %s", d.Code, d.Message)
	if d.Target != nil {
		s += fmt.Sprintf(" (target %v)", d.Target)
	}
	if d.Err != nil {
		s += ": " + d.Err.Error()
	}
	return s
}

// DiagnosticHandler receives diagnostics.
type DiagnosticHandler func(d Diagnostic)

// LogDiagnostics returns a handler that writes diagnostics to logger at warn level.
func LogDiagnostics(logger zerolog.Logger) DiagnosticHandler {
	return func(d Diagnostic) {
		ev := logger.Warn().Str("code", string(d.Code))
		if d.Target != nil {
			ev = ev.Interface("target", d.Target)
		}
		if d.Err != nil {
			ev = ev.Err(d.Err)
		}
		ev.Msg(d.Message)
	}
}
