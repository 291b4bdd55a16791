// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugunwind implements "simpleperf debug-unwind": dumping
// the raw register/stack payload DWARF call-graph samples carry, per
// spec.md §6's "debug-unwind -i file -o file --sample-time ts --symfs
// dir --unwind-sample". The offline DWARF unwinding engine itself is
// explicitly out of scope (spec.md's Non-goals); this command surfaces
// the bytes an external unwinder would consume, not the unwound
// frames.
package debugunwind

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/options"
	"github.com/simpleperf-go/simpleperf/perffile"
	"github.com/simpleperf-go/simpleperf/record"
)

const CmdName = "debug-unwind"

// Options holds debug-unwind's own flags alongside the shared
// CommonOptions.
type Options struct {
	inFile       string
	outFile      string
	sampleTime   uint64
	symFsDir     string
	unwindSample bool

	*options.CommonOptions
}

// NewCommand returns the "debug-unwind" subcommand, configured with
// opts.
func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "Dump the unwinding payload of recorded DWARF call-graph samples",
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.inFile, "input", "i", "perf.data", "Recording file to read")
	cmd.Flags().StringVarP(&o.outFile, "output", "o", "", "Write dump to this file instead of stdout")
	cmd.Flags().Uint64Var(&o.sampleTime, "sample-time", 0, "Dump only the sample recorded at this timestamp (0 dumps every DWARF sample)")
	cmd.Flags().StringVar(&o.symFsDir, "symfs", "", "Root directory to search for mapped binaries (unused by the dump itself, accepted for command-line compatibility)")
	cmd.Flags().BoolVar(&o.unwindSample, "unwind-sample", false, "Accepted for command-line compatibility; this build never invokes an offline unwinder")

	return cmd
}

// Run reads o.inFile and prints, for every Sample record carrying a
// user register/stack dump (i.e. recorded under --call-graph dwarf),
// its IP, register count and stack byte length.
func (o *Options) Run(cmd *cobra.Command, args []string) error {
	reader, err := perffile.Open(o.inFile)
	if err != nil {
		return errors.Wrapf(err, "opening %s", o.inFile)
	}
	defer reader.Close()

	out := cmd.OutOrStdout()
	if o.outFile != "" {
		f, err := os.Create(o.outFile)
		if err != nil {
			return errors.Wrapf(err, "creating %s", o.outFile)
		}
		defer f.Close()
		out = f
	}

	return reader.ForEachRecord(func(rec record.Record) error {
		s, ok := rec.(*record.Sample)
		if !ok || len(s.UserStack) == 0 {
			return nil
		}
		if o.sampleTime != 0 && s.Time != o.sampleTime {
			return nil
		}
		_, err := fmt.Fprintf(out, "sample time=%d pid=%d tid=%d ip=%#x regs=%d stack_bytes=%d dynamic_size=%d\n",
			s.Time, s.Pid, s.Tid, s.IP, len(s.UserRegisters), len(s.UserStack), s.UserStackDynamicSize)
		return err
	})
}
