package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yacchi/nodemux"
	"github.com/yacchi/nodemux/native"
	"github.com/yacchi/nodemux/source/fs"
)

// sessionFieldKey tags every output line with the run it belongs to.
const sessionFieldKey = "session"

// openObserver builds the native observer; tests replace it.
var openObserver = func(cfg Config, onError func(error)) native.Opener[string] {
	return fs.Opener(fs.WithBatchSize(cfg.BatchSize), fs.WithErrorHandler(onError))
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "nodewatch [flags] PATH...",
		Short:         "Print filesystem changes observed through one shared watcher",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args, stdout, logger)
		},
	}
	if err := bindFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

// run observes paths until ctx is done.
// Records are written to out as JSON lines; diagnostics go to logger.
func run(ctx context.Context, cfg Config, paths []string, out io.Writer, logger zerolog.Logger) error {
	session := uuid.New().String()
	logger = logger.With().Str(sessionFieldKey, session).Logger()
	records := zerolog.New(out).With().Timestamp().Str(sessionFieldKey, session).Logger()

	mux := nodemux.New(
		openObserver(cfg, func(err error) {
			logger.Warn().Err(err).Msg("watcher error")
		}),
		nodemux.WithLogger(logger),
	)
	if !mux.IsEnabled() {
		return errors.New("filesystem observation is not available on this platform")
	}

	opts := cfg.Options()
	for _, p := range paths {
		target, err := filepath.Abs(p)
		if err != nil {
			target = p
		}
		l := nodemux.NewListener(func(r nodemux.Record[string]) {
			ev := records.Log().
				Str("target", r.Target).
				Str("kind", string(r.Kind)).
				Str("name", r.Name).
				Str("op", r.Op)
			if r.Attribute != "" {
				ev = ev.Str("attribute", r.Attribute)
			}
			ev.Send()
		})
		mux.ObserveWith(target, l, opts)
	}

	observed := mux.Targets()
	if len(observed) == 0 {
		return errors.Join(
			fmt.Errorf("none of the %d path(s) could be observed", len(paths)),
			mux.Close(),
		)
	}
	logger.Info().Int("targets", len(observed)).Msg("watching")

	<-ctx.Done()

	logger.Debug().Msg("shutting down")
	return mux.Close()
}
