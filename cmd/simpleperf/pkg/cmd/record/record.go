// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record implements "simpleperf record": sampling-mode
// acquisition of a target, draining its ring buffers through a
// recordcache.Cache for time order, and persisting the result as a
// PERFILE2 recording, per spec.md §6's "record -e events --group
// evset -p pids -t tids -a --cpu list -f freq|-c period
// -g|--call-graph fp|dwarf[,size] -m pages -o outfile --duration
// secs".
package record

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/common"
	"github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd/options"
	"github.com/simpleperf-go/simpleperf/eventset"
	"github.com/simpleperf-go/simpleperf/perffile"
	"github.com/simpleperf-go/simpleperf/reactor"
	"github.com/simpleperf-go/simpleperf/record"
	"github.com/simpleperf-go/simpleperf/recordcache"
)

const CmdName = "record"

// defaultSampleFreq matches simpleperf's own default of 4000Hz.
const defaultSampleFreq = 4000

// allUserRegsAMD64 dumps every register PERF_SAMPLE_REGS_USER defines
// on x86-64 (PERF_REG_X86_64_MAX == 27), the set DWARF call-graph
// unwinding needs to walk the stack from.
const allUserRegsAMD64 = 1<<27 - 1

// defaultUserStackSize is the per-sample user stack dump size for
// "--call-graph dwarf" when no explicit size is given, matching
// simpleperf's own default.
const defaultUserStackSize = 8192

// Options holds record's own flags alongside the shared CommonOptions.
type Options struct {
	events    []string
	pids      string
	tids      string
	allCPUs   bool
	cpus      string
	freq      uint64
	period    uint64
	callGraph string
	mmapPages uint
	outFile   string
	duration  float64

	*options.CommonOptions
}

// NewCommand returns the "record" subcommand, configured with opts.
func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "Record sampled events for a target",
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringArrayVarP(&o.events, "event", "e", []string{"cpu-cycles"}, "Comma-separated event group to sample (repeatable)")
	cmd.Flags().StringVarP(&o.pids, "pid", "p", "", "Comma-separated process ids to record")
	cmd.Flags().StringVarP(&o.tids, "tid", "t", "", "Comma-separated thread ids to record")
	cmd.Flags().BoolVarP(&o.allCPUs, "all-cpus", "a", false, "Record on every CPU rather than an explicit list")
	cmd.Flags().StringVar(&o.cpus, "cpu", "", "Comma-separated CPU list to record on")
	cmd.Flags().Uint64VarP(&o.freq, "freq", "f", defaultSampleFreq, "Sample frequency, in Hz")
	cmd.Flags().Uint64VarP(&o.period, "period", "c", 0, "Sample period; overrides --freq when nonzero")
	cmd.Flags().StringVarP(&o.callGraph, "call-graph", "g", "", `Call-graph capture mode: "fp" or "dwarf[,stack-size]"`)
	cmd.Flags().UintVarP(&o.mmapPages, "mmap-pages", "m", 128, "Ring buffer size, in pages (must be a power of two)")
	cmd.Flags().StringVarP(&o.outFile, "output", "o", "perf.data", "Recording output file")
	cmd.Flags().Float64Var(&o.duration, "duration", 0, "Stop recording after this many seconds (0 waits for Ctrl-C)")

	return cmd
}

// Run builds the requested event selection set in sampling mode,
// applies -f/-c/-g to every selection, opens it, drains its ring
// buffers through a reactor.Loop and a recordcache.Cache, and writes
// the time-ordered result to a PERFILE2 file.
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

	set := eventset.New(eventset.WithMaxPages(o.mmapPages), eventset.WithLogger(&o.Logger))
	if err := common.ParseEventGroups(set, o.events); err != nil {
		return err
	}
	set.SetTarget(common.BuildTarget(pids, tids, o.allCPUs, cpus))

	if err := applyCallGraph(set, o.callGraph); err != nil {
		return err
	}
	applySamplePeriod(set, o.freq, o.period)

	if err := set.Open(); err != nil {
		return errors.Wrap(err, "opening event selection set")
	}
	defer set.Close()

	return o.record(cmd, set)
}

// applyCallGraph configures every selection's attr for the requested
// call-graph capture mode, mirroring simpleperf's own -g flag: "fp"
// asks the kernel to walk frame pointers (no extra per-sample cost
// beyond PERF_SAMPLE_CALLCHAIN); "dwarf[,size]" additionally dumps the
// user register file and a slice of the user stack so a report-time
// unwinder (outside this module's scope; spec.md's Non-goals exclude
// DWARF unwinding itself) can reconstruct frames the kernel's own
// frame-pointer walk would miss in code built without frame pointers.
func applyCallGraph(set *eventset.Set, mode string) error {
	if mode == "" {
		return nil
	}
	parts := strings.SplitN(mode, ",", 2)
	switch parts[0] {
	case "fp":
		set.EachAttr(func(a *attr.EventAttr) {
			a.SampleFormat.Callchain = true
		})
		return nil
	case "dwarf":
		stackSize := uint32(defaultUserStackSize)
		if len(parts) == 2 {
			n, err := strconv.ParseUint(parts[1], 10, 32)
			if err != nil {
				return errors.Wrapf(err, "parsing --call-graph dwarf stack size %q", parts[1])
			}
			stackSize = uint32(n)
		}
		set.EachAttr(func(a *attr.EventAttr) {
			a.SampleFormat.Callchain = true
			a.SampleFormat.UserRegisters = true
			a.SampleFormat.UserStack = true
			a.SampleRegsUser = allUserRegsAMD64
			a.SampleStackUser = stackSize
		})
		return nil
	default:
		return fmt.Errorf(`record: --call-graph must be "fp" or "dwarf[,size]", got %q`, mode)
	}
}

// applySamplePeriod sets every selection's sample period or frequency:
// an explicit --period always wins, otherwise --freq applies.
func applySamplePeriod(set *eventset.Set, freq, period uint64) {
	set.EachAttr(func(a *attr.EventAttr) {
		a.SampleFormat.Period = true
		a.SampleFormat.IP = true
		a.SampleFormat.Tid = true
		a.SampleFormat.Time = true
		a.SampleFormat.CPU = true
		// Non-Sample records (Mmap, Comm, ...) only carry a SampleId time
		// trailer when this is set; without it recordcache has nothing to
		// order them by.
		a.Options.SampleIDAll = true
		if period != 0 {
			a.SetSamplePeriod(period)
		} else {
			a.SetSampleFreq(freq)
		}
	})
}

// record drains set through loop, time-ordering records via a
// recordcache.Cache before handing them to the perffile.Writer, until
// o.duration elapses or SIGINT/SIGTERM arrives through the loop.
func (o *Options) record(cmd *cobra.Command, set *eventset.Set) error {
	attrs := collectAttrs(set)
	if len(attrs) == 0 {
		return fmt.Errorf("record: no selections to record")
	}

	writer, err := perffile.Create(o.outFile, attrs)
	if err != nil {
		return errors.Wrap(err, "creating recording file")
	}
	defer writer.Close()

	loop, err := reactor.New()
	if err != nil {
		return errors.Wrap(err, "creating reactor loop")
	}

	cache := recordcache.New(timestampOf, true, 16, uint64(2*time.Millisecond))

	var decodeErr error
	flush := func(final bool) error {
		var records []record.Record
		if final {
			records = cache.Drain()
		} else {
			for {
				r, ok := cache.Pop()
				if !ok {
					break
				}
				records = append(records, r)
			}
		}
		for _, r := range records {
			buf, err := record.Encode(r, attrs[0].Attr)
			if err != nil {
				return err
			}
			if err := writer.WriteData(buf); err != nil {
				return err
			}
		}
		return nil
	}

	if err := set.StartDraining(loop, func(cpu int, rec record.Record, err error) {
		if err != nil {
			decodeErr = err
			loop.Exit()
			return
		}
		cache.Push(rec)
		if flushErr := flush(false); flushErr != nil {
			decodeErr = flushErr
			loop.Exit()
		}
	}); err != nil {
		return errors.Wrap(err, "starting drain")
	}

	if err := set.EnableAll(); err != nil {
		return errors.Wrap(err, "enabling events")
	}

	if o.duration > 0 {
		timer, err := loop.AddPeriodicEvent(time.Duration(o.duration*float64(time.Second)), func() bool {
			loop.Exit()
			return true
		})
		if err != nil {
			return errors.Wrap(err, "arming duration timer")
		}
		defer timer.Cancel()
	}
	sigReg, err := loop.AddSignalEvents([]os.Signal{os.Interrupt, syscall.SIGTERM}, func() bool {
		loop.Exit()
		return true
	})
	if err != nil {
		return errors.Wrap(err, "registering signal handler")
	}
	defer sigReg.Cancel()

	if err := loop.RunLoop(); err != nil {
		return errors.Wrap(err, "recording")
	}
	if decodeErr != nil {
		return errors.Wrap(decodeErr, "decoding drained record")
	}

	if err := set.DisableAll(); err != nil {
		return errors.Wrap(err, "disabling events")
	}
	return flush(true)
}

// collectAttrs builds the attr section Writer.Create needs: one entry
// per flattened selection. Ids is left empty; the per-cpu kernel ids
// eventIdRecord would otherwise duplicate here are already carried in
// the data section as the synthetic EventId record StartDraining
// delivers first, so a reader recovers the same attr-index mapping
// from the data stream instead of the attr section's redundant copy.
func collectAttrs(set *eventset.Set) []perffile.AttrWithId {
	var out []perffile.AttrWithId
	set.EachAttr(func(a *attr.EventAttr) {
		out = append(out, perffile.AttrWithId{Attr: a})
	})
	return out
}

// timestampOf extracts the ordering timestamp from a drained record:
// overflow samples (Sample/SampleGroup) carry it directly; every other
// record type carries it in its trailing SampleId block when
// Options.SampleIDAll was requested, via the embedded record.ID.
func timestampOf(r record.Record) (uint64, bool) {
	switch v := r.(type) {
	case *record.Sample:
		return v.Time, true
	case *record.SampleGroup:
		return v.Time, true
	case *record.Mmap:
		return v.Time, false
	case *record.Mmap2:
		return v.Time, false
	case *record.Comm:
		return v.Time, false
	case *record.Exit:
		return v.Time, false
	case *record.Fork:
		return v.Time, false
	case *record.Lost:
		return v.Time, false
	case *record.Switch:
		return v.Time, false
	case *record.SwitchCPUWide:
		return v.Time, false
	case *record.Namespaces:
		return v.Time, false
	default:
		return 0, false
	}
}
