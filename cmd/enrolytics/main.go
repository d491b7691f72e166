package main

// Package main is the entry point for the enrolytics command line tool.
//
// Responsibilities:
//   - Parse the subcommand (analyze, sample, runs, history, version)
//   - Load and validate configuration from YAML and ENROLYTICS_* env
//   - Wire ingest, the analysis pipeline, the report writer, the
//     results store, and audit logging per command
//   - Expose the optional /metrics and /healthz listener during runs
//
// Command Flow:
//   1. sample  → write a deterministic synthetic dataset
//   2. analyze → ingest → pipeline → reports → persist run
//   3. runs    → list persisted runs, newest first
//   4. history → one region's risk score across past runs
//
// Graceful Shutdown:
//   - SIGINT/SIGTERM cancel the command context
//   - The pipeline aborts between stages; no partial result is written
//   - Audit logs are flushed before exit

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/enrolytics/enrolytics/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "enrolytics:", err)
		os.Exit(1)
	}
}
