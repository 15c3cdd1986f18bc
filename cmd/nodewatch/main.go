// Package main provides the nodewatch CLI tool.
//
// nodewatch observes filesystem paths through a single shared native
// observer and prints every change as a JSON line on stdout.
//
// Usage:
//
//	nodewatch [flags] PATH...
//
// Flags can also be set through NODEWATCH_* environment variables or a
// YAML config file passed with --config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
