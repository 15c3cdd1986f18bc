package nodemux

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option configures a Multiplexer.
type Option func(*config)

type config struct {
	logger     zerolog.Logger
	diagnostic DiagnosticHandler
	hasDiag    bool
}

// WithLogger sets the logger used for lifecycle events.
// The default is the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDiagnosticHandler sets the handler for non-fatal diagnostics.
// Pass nil to discard them. The default logs them with the configured
// logger at warn level.
//
// Example:
//
//	mux := nodemux.New(open, nodemux.WithDiagnosticHandler(func(d nodemux.Diagnostic) {
//	    metrics.Inc(string(d.Code))
//	}))
func WithDiagnosticHandler(h DiagnosticHandler) Option {
	return func(c *config) {
		c.diagnostic = h
		c.hasDiag = true
	}
}

func newConfig(opts []Option) config {
	cfg := config{logger: log.Logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.hasDiag {
		cfg.diagnostic = LogDiagnostics(cfg.logger)
	}
	return cfg
}
