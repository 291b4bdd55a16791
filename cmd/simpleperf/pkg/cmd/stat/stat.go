// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stat implements "simpleperf stat": counting-mode measurement
// of a target over a fixed duration, spec.md §6's
// "stat -e events -p pids -t tids -a --duration secs --group evset
// --verbose -o outfile".
package stat

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/common"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/options"
	"github.com/simpleperf-go/simpleperf/eventset"
)

const CmdName = "stat"

// Options holds stat's own flags alongside the shared CommonOptions.
type Options struct {
	events   []string
	pids     string
	tids     string
	allCPUs  bool
	cpus     string
	duration float64
	verbose  bool
	outFile  string

	*options.CommonOptions
}

// NewCommand returns the "stat" subcommand, configured with opts.
func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "Gather event counts for a target",
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringArrayVarP(&o.events, "event", "e", nil, "Comma-separated event group to count (repeatable)")
	cmd.Flags().StringVarP(&o.pids, "pid", "p", "", "Comma-separated process ids to count")
	cmd.Flags().StringVarP(&o.tids, "tid", "t", "", "Comma-separated thread ids to count")
	cmd.Flags().BoolVarP(&o.allCPUs, "all-cpus", "a", false, "Count on every CPU rather than an explicit list")
	cmd.Flags().StringVar(&o.cpus, "cpu", "", "Comma-separated CPU list to count on")
	cmd.Flags().Float64Var(&o.duration, "duration", 1.0, "How long to count, in seconds")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Print per-cpu, per-thread counts instead of totals")
	cmd.Flags().StringVarP(&o.outFile, "output", "o", "", "Write counts to this file instead of stdout")
	cmd.MarkFlagRequired("event")

	return cmd
}

// Run opens the requested events in counting mode, waits out the
// configured duration (or an earlier SIGINT/SIGTERM via o.Ctx), reads
// every counter once, and prints the result.
func (o *Options) Run(cmd *cobra.Command, args []string) error {
	pids, err := common.ParseIntList(o.pids)
	if err != nil {
		return err
	}
	tids, err := common.ParseIntList(o.tids)
	if err != nil {
		return err
	}
	cpus, err := common.ParseIntList(o.cpus)
	if err != nil {
		return err
	}

	set := eventset.New(eventset.WithStatMode(), eventset.WithLogger(&o.Logger))
	if err := common.ParseEventGroups(set, o.events); err != nil {
		return err
	}
	set.SetTarget(common.BuildTarget(pids, tids, o.allCPUs, cpus))

	if err := set.Open(); err != nil {
		return errors.Wrap(err, "opening event selection set")
	}
	defer set.Close()

	if err := set.EnableAll(); err != nil {
		return errors.Wrap(err, "enabling counters")
	}

	select {
	case <-time.After(time.Duration(o.duration * float64(time.Second))):
	case <-o.Ctx.Done():
	}

	if err := set.DisableAll(); err != nil {
		return errors.Wrap(err, "disabling counters")
	}

	counters, err := set.ReadCounters()
	if err != nil {
		return errors.Wrap(err, "reading counters")
	}

	out := cmd.OutOrStdout()
	if o.outFile != "" {
		f, err := os.Create(o.outFile)
		if err != nil {
			return errors.Wrapf(err, "creating %s", o.outFile)
		}
		defer f.Close()
		out = f
	}

	return printCounters(out, counters, o.verbose)
}

func printCounters(w interface{ Write([]byte) (int, error) }, counters []eventset.CounterSample, verbose bool) error {
	totals := make(map[string]uint64)
	order := make([]string, 0, len(counters))
	for _, c := range counters {
		if verbose {
			if _, err := fmt.Fprintf(w, "%-20s cpu%-3d tid%-7d %15d  (enabled %d ns, running %d ns)\n",
				c.Selection.Name, c.CPU, c.Tid, c.Count.Value, c.Count.TimeEnabled, c.Count.TimeRunning); err != nil {
				return err
			}
			continue
		}
		if _, ok := totals[c.Selection.Name]; !ok {
			order = append(order, c.Selection.Name)
		}
		totals[c.Selection.Name] += c.Count.Value
	}
	if verbose {
		return nil
	}
	for _, name := range order {
		if _, err := fmt.Fprintf(w, "%-20s %15d\n", name, totals[name]); err != nil {
			return err
		}
	}
	return nil
}
