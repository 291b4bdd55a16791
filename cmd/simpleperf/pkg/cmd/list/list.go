// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package list implements "simpleperf list": enumerating the hardware,
// software, cache and tracepoint events this build of the core can
// select, per spec.md §6 ("list [hw|sw|cache|tracepoint]").
package list

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/options"
)

const CmdName = "list"

// Options holds list's own flags alongside the shared CommonOptions.
type Options struct {
	*options.CommonOptions
}

// NewCommand returns the "list" subcommand, configured with opts.
func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:               CmdName + " [hw|sw|cache|tracepoint]",
		Short:             "List all available event types",
		DisableAutoGenTag: true,
		Args:              cobra.MaximumNArgs(1),
		RunE:              o.Run,
	}
	return cmd
}

// Run prints every known event label under the requested category, or
// every category when args is empty.
func (o *Options) Run(cmd *cobra.Command, args []string) error {
	kind := ""
	if len(args) == 1 {
		kind = args[0]
	}

	if kind == "" || kind == "hw" || kind == "hardware" {
		printSection(cmd, "Hardware events", hardwareLabels())
	}
	if kind == "" || kind == "sw" || kind == "software" {
		printSection(cmd, "Software events", softwareLabels())
	}
	if kind == "" || kind == "cache" {
		printSection(cmd, "Hardware cache events", cacheLabels())
	}
	if kind == "" || kind == "tracepoint" {
		printSection(cmd, "Tracepoint events", tracepointLabels())
	}
	return nil
}

func printSection(cmd *cobra.Command, title string, labels []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "List of %s:\n", title)
	for _, l := range labels {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", l)
	}
	fmt.Fprintln(cmd.OutOrStdout())
}

func hardwareLabels() []string {
	var out []string
	for _, c := range attr.AllHardwareCounters() {
		out = append(out, c.Label())
	}
	return out
}

func softwareLabels() []string {
	var out []string
	for _, c := range attr.AllSoftwareCounters() {
		out = append(out, c.Label())
	}
	return out
}

func cacheLabels() []string {
	var out []string
	for _, c := range attr.AllCacheCounters() {
		out = append(out, c.Label())
	}
	return out
}

// tracepointLabels enumerates /sys/kernel/debug/tracing/events on the
// running kernel; simpleperf's own list command does the same
// directory walk. Kept separate since it touches the filesystem rather
// than a fixed table.
func tracepointLabels() []string {
	return readTracepoints("/sys/kernel/debug/tracing/events")
}
