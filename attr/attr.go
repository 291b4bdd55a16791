// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package attr configures performance events. An EventAttr names an event
// type (hardware, software, cache, tracepoint, or a user-space sampler)
// and the sample selectors, privilege exclusions, and stack-capture
// options that apply to it. See man 2 perf_event_open.
package attr

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EventType is the overall type of a performance event.
type EventType uint32

// Supported event types.
const (
	HardwareEvent      EventType = unix.PERF_TYPE_HARDWARE
	SoftwareEvent      EventType = unix.PERF_TYPE_SOFTWARE
	TracepointEvent    EventType = unix.PERF_TYPE_TRACEPOINT
	HardwareCacheEvent EventType = unix.PERF_TYPE_HW_CACHE
	RawEvent           EventType = unix.PERF_TYPE_RAW
	BreakpointEvent    EventType = unix.PERF_TYPE_BREAKPOINT

	// UserSpaceSamplerEvent is a reserved private type for user-space
	// samplers (e.g. inplace ETM-style samplers) that do not correspond
	// to a kernel PMU. Selection sets must not mix this type with other
	// event types in the same group; see eventset.AddGroup.
	UserSpaceSamplerEvent EventType = 1 << 31
)

// EventAttr configures a single perf event: its type, sample mode,
// selector mask, privilege exclusions, and stack-capture options. All
// EventAttrs belonging to one eventset.Set must carry an identical
// SampleFormat mask after each eventset.Set.AddGroup call unions them, so the
// record codec can decode every sample with one fixed field layout.
type EventAttr struct {
	// Label is a human-readable name for the event, as given on the
	// command line (e.g. "cpu-cycles", "sched:sched_switch").
	Label string

	// Type is the major type of the event.
	Type EventType

	// Config is the type-specific event configuration.
	Config uint64

	// Sample configures the sample period or sample frequency for
	// overflow packets, based on Options.Freq: if Options.Freq is set,
	// Sample is interpreted as "sample frequency", otherwise it is
	// interpreted as "sample period".
	Sample uint64

	// SampleFormat configures the selector mask: which optional fields
	// accompany overflow (SAMPLE) records, and which fields are carried
	// in the SampleId trailer of every other record type when
	// Options.SampleIDAll is set.
	SampleFormat SampleFormat

	// CountFormat specifies the format of counts read from the event
	// using ReadCounter or ReadGroupCounter.
	CountFormat CountFormat

	// Options contains fine-grained event configuration: privilege
	// exclusions, precision level, enable-on-exec, and the rest of
	// §3's "privilege exclusions, precision level, sample_id_all flag,
	// and frame-pointer/DWARF stack-capture switches".
	Options Options

	// Wakeup configures event wakeup. If Options.Watermark is set,
	// Wakeup is interpreted as the number of bytes before wakeup.
	// Otherwise, it is interpreted as "wake up every n events".
	Wakeup uint32

	// BreakpointType is the breakpoint type, if Type == BreakpointEvent.
	BreakpointType uint32

	// Config1 extends Config for events that need it: breakpoint
	// address, kprobe function, uprobe path.
	Config1 uint64

	// Config2 further extends Config1: breakpoint length, kprobe/uprobe
	// offset.
	Config2 uint64

	// BranchSampleFormat specifies what branches to include in the
	// branch record, if SampleFormat.BranchStack is set.
	BranchSampleFormat BranchSampleFormat

	// SampleRegsUser is the set of user registers to dump on samples,
	// lowest bit first. Required for SampleFormat.UserRegisters.
	SampleRegsUser uint64

	// SampleStackUser is the size of the user stack to dump on samples,
	// for DWARF-based call-graph capture.
	SampleStackUser uint32

	// ClockID is the clock ID to use with samples, if Options.UseClockID
	// is set.
	ClockID int32

	// SampleRegsIntr is the set of registers to dump for each interrupt
	// sample.
	SampleRegsIntr uint64

	// AuxWatermark is the watermark for the aux area.
	AuxWatermark uint32

	// SampleMaxStack is the maximum number of frame pointers in a call
	// chain.
	SampleMaxStack uint16
}

// SysAttr marshals a into the kernel's perf_event_attr layout, ready to
// pass to perf_event_open(2).
func (a *EventAttr) SysAttr() *unix.PerfEventAttr {
	return &unix.PerfEventAttr{
		Type:               uint32(a.Type),
		Size:               uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:             a.Config,
		Sample:             a.Sample,
		Sample_type:        a.SampleFormat.marshal(),
		Read_format:        a.CountFormat.marshal(),
		Bits:               a.Options.marshal(),
		Wakeup:             a.Wakeup,
		Bp_type:            a.BreakpointType,
		Ext1:               a.Config1,
		Ext2:               a.Config2,
		Branch_sample_type: a.BranchSampleFormat.marshal(),
		Sample_regs_user:   a.SampleRegsUser,
		Sample_stack_user:  a.SampleStackUser,
		Clockid:            a.ClockID,
		Sample_regs_intr:   a.SampleRegsIntr,
		Aux_watermark:      a.AuxWatermark,
		Sample_max_stack:   a.SampleMaxStack,
	}
}

// FromSysAttr reconstructs an EventAttr from the kernel's perf_event_attr
// layout, the inverse of SysAttr. Used when reading a recording file back
// from disk, where the attr section stores the wire struct rather than
// this package's own type.
func FromSysAttr(sys *unix.PerfEventAttr) *EventAttr {
	return &EventAttr{
		Type:               EventType(sys.Type),
		Config:             sys.Config,
		Sample:             sys.Sample,
		SampleFormat:       unmarshalSampleFormat(sys.Sample_type),
		CountFormat:        unmarshalCountFormat(sys.Read_format),
		Options:            unmarshalOptions(sys.Bits),
		Wakeup:             sys.Wakeup,
		BreakpointType:     sys.Bp_type,
		Config1:            sys.Ext1,
		Config2:            sys.Ext2,
		BranchSampleFormat: unmarshalBranchSampleFormat(sys.Branch_sample_type),
		SampleRegsUser:     sys.Sample_regs_user,
		SampleStackUser:    sys.Sample_stack_user,
		ClockID:            sys.Clockid,
		SampleRegsIntr:     sys.Sample_regs_intr,
		AuxWatermark:       sys.Aux_watermark,
		SampleMaxStack:     sys.Sample_max_stack,
	}
}

// Clone returns a deep copy of a suitable for retention past the call
// that produced it (no shared slices, so a plain struct copy suffices).
func (a *EventAttr) Clone() *EventAttr {
	clone := *a
	return &clone
}

// SetSamplePeriod configures the sampling period for the event.
//
// It sets a.Sample to p and a.Options.Freq to false.
func (a *EventAttr) SetSamplePeriod(p uint64) {
	a.Sample = p
	a.Options.Freq = false
}

// SetSampleFreq configures the sampling frequency for the event.
//
// It sets a.Sample to f and enables a.Options.Freq.
func (a *EventAttr) SetSampleFreq(f uint64) {
	a.Sample = f
	a.Options.Freq = true
}

// ProbePMU probes /sys/bus/event_source/devices/<name>/type for the
// EventType value associated with the specified PMU.
func ProbePMU(name string) (EventType, error) {
	p := filepath.Join("/sys/bus/event_source/devices", name, "type")
	content, err := ioutil.ReadFile(p)
	if err != nil {
		return 0, err
	}
	nr := strings.TrimSpace(string(content))
	et, err := strconv.ParseUint(nr, 10, 32)
	if err != nil {
		return 0, err
	}
	return EventType(et), nil
}

// NewTracepoint probes /sys/kernel/debug/tracing/events/<category>/<event>/id
// for the trace point's id, and returns an EventAttr with Type and Config
// set accordingly.
func NewTracepoint(category, event string) (*EventAttr, error) {
	f := filepath.Join("/sys/kernel/debug/tracing/events", category, event, "id")
	content, err := ioutil.ReadFile(f)
	if err != nil {
		return nil, err
	}
	nr := strings.TrimSpace(string(content))
	config, err := strconv.ParseUint(nr, 10, 64)
	if err != nil {
		return nil, err
	}
	return &EventAttr{
		Label:  category + ":" + event,
		Type:   TracepointEvent,
		Config: config,
	}, nil
}

// BreakpointType is the type of a breakpoint.
type BreakpointType uint32

// Breakpoint types. Values are OR-ed together. The combination of
// BreakpointTypeR or BreakpointTypeW with BreakpointTypeX is invalid.
const (
	BreakpointTypeEmpty BreakpointType = 0x0
	BreakpointTypeR     BreakpointType = 0x1
	BreakpointTypeW     BreakpointType = 0x2
	BreakpointTypeRW    BreakpointType = BreakpointTypeR | BreakpointTypeW
	BreakpointTypeX     BreakpointType = 0x4
)

// BreakpointLength is the length of the breakpoint being measured.
type BreakpointLength uint64

// Breakpoint length values.
const (
	BreakpointLength1 BreakpointLength = 1
	BreakpointLength2 BreakpointLength = 2
	BreakpointLength4 BreakpointLength = 4
	BreakpointLength8 BreakpointLength = 8
)

// ExecutionBreakpointLength returns the length of an execution breakpoint,
// sizeof(C long) on the host platform.
func ExecutionBreakpointLength() BreakpointLength {
	var x uintptr
	return BreakpointLength(unsafe.Sizeof(x))
}

// NewBreakpoint returns an EventAttr configured to record breakpoint
// events.
//
// typ is the type of the breakpoint. addr is the address of the
// breakpoint (for execution breakpoints, the instruction address of
// interest; for read/write breakpoints, the memory location of interest).
// length is the length of the breakpoint being measured.
func NewBreakpoint(typ BreakpointType, addr uint64, length BreakpointLength) *EventAttr {
	return &EventAttr{
		Type:           BreakpointEvent,
		BreakpointType: uint32(typ),
		Config1:        addr,
		Config2:        uint64(length),
	}
}

// NewExecutionBreakpoint returns an EventAttr configured to record an
// execution breakpoint at the specified address.
func NewExecutionBreakpoint(addr uint64) *EventAttr {
	return NewBreakpoint(BreakpointTypeX, addr, ExecutionBreakpointLength())
}

func marshalBitwiseUint64(bits []bool) uint64 {
	var res uint64
	for shift, set := range bits {
		if set {
			res |= 1 << uint(shift)
		}
	}
	return res
}

// bit reports whether shift is set in mask.
func bit(mask uint64, shift uint) bool { return mask&(1<<shift) != 0 }
