// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cmd assembles the simpleperf command tree: a root cobra
// command wiring every subcommand in spec.md §6's CLI surface (list,
// stat, record, report, debug-unwind) against one shared
// options.CommonOptions, the same two-layer shape (a root in
// pkg/cmd, one package per subcommand) maxgio92-xcover/pkg/cmd uses.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/debugunwind"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/list"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/options"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/record"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/report"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/stat"
)

// NewRootCmd returns the "simpleperf" root command, with every
// subcommand attached.
func NewRootCmd(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "simpleperf",
		Short:             "simpleperf samples and reports performance events",
		Long:              `simpleperf drives a perf_event_open(2)-based sampling pipeline: select events, acquire them across a target, order and aggregate the records, and report or persist the result.`,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(list.NewCommand(opts))
	cmd.AddCommand(stat.NewCommand(opts))
	cmd.AddCommand(record.NewCommand(opts))
	cmd.AddCommand(report.NewCommand(opts))
	cmd.AddCommand(debugunwind.NewCommand(opts))

	return cmd
}

// Execute builds the root command against a context cancelled on
// SIGINT/SIGTERM and a stderr console logger, runs it, and exits
// non-zero on error (spec.md §6: "Exit code 0 on success, non-zero on
// error").
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := options.New(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewRootCmd(opts).ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("simpleperf: command failed")
		os.Exit(1)
	}
}
