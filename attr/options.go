// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attr

// Options contains low level event options: privilege exclusions,
// precision level, enable-on-exec, and the sample_id_all and
// frame-pointer/DWARF stack-capture switches named in spec §3.
type Options struct {
	// Disabled disables the event by default. If the event is in a
	// group, but not a group leader, this option has no effect, since
	// the group leader controls when events are enabled or disabled.
	Disabled bool

	// Inherit specifies that this counter should count events of child
	// tasks as well as the specified task. Applies only to new children
	// at the time of counter creation.
	Inherit bool

	// Pinned specifies that the counter should always be on the CPU if
	// possible. Applies only to hardware counters and group leaders.
	Pinned bool

	// Exclusive specifies that when this counter's group is on the CPU,
	// it should be the only group using the CPU's counters.
	Exclusive bool

	// ExcludeUser excludes events that happen in user space.
	ExcludeUser bool

	// ExcludeKernel excludes events that happen in kernel space.
	ExcludeKernel bool

	// ExcludeHypervisor excludes events that happen in the hypervisor.
	ExcludeHypervisor bool

	// ExcludeIdle disables counting while the CPU is idle.
	ExcludeIdle bool

	// Mmap enables MmapRecord records for every mmap(2) call with
	// PROT_EXEC set.
	Mmap bool

	// Comm enables tracking of process command name.
	Comm bool

	// Freq configures the event to use sample frequency rather than
	// sample period. See also EventAttr.Sample.
	Freq bool

	// InheritStat enables saving of event counts on context switch for
	// inherited tasks. Only meaningful if Inherit is also set.
	InheritStat bool

	// EnableOnExec configures the counter to be enabled automatically
	// after a call to exec(2). Preferred over an ioctl enable after
	// open because some kernels mishandle the ioctl when cpu-hotplug
	// races (spec §4.E, "Enable semantics").
	EnableOnExec bool

	// Task configures the event to include fork/exit notifications in
	// the ring buffer.
	Task bool

	// Watermark configures the ring buffer to issue an overflow
	// notification when the Wakeup byte boundary is crossed, instead
	// of every Wakeup samples.
	Watermark bool

	// PreciseIP controls the number of instructions between an event of
	// interest happening and the kernel being able to stop and record it.
	PreciseIP Skid

	// MmapData is the counterpart to Mmap: it enables MmapRecord records
	// for mmap(2) calls without PROT_EXEC.
	MmapData bool

	// SampleIDAll configures Tid, Time, ID, StreamID, CPU and Identifier
	// samples to be included in the trailing SampleId block of
	// non-SAMPLE records.
	SampleIDAll bool

	// ExcludeHost configures only events happening inside a guest
	// instance to be measured.
	ExcludeHost bool

	// ExcludeGuest is the opposite of ExcludeHost.
	ExcludeGuest bool

	// ExcludeKernelCallchain excludes kernel frames from call chains.
	ExcludeKernelCallchain bool

	// ExcludeUserCallchain excludes user frames from call chains.
	ExcludeUserCallchain bool

	// Mmap2 configures mmap(2) events to include inode data.
	Mmap2 bool

	// CommExec distinguishes process renaming via exec(2) from other
	// causes.
	CommExec bool

	// UseClockID selects which internal Linux clock to use for
	// timestamps, via EventAttr.ClockID.
	UseClockID bool

	// ContextSwitch enables SwitchRecord / SwitchCPUWideRecord records.
	ContextSwitch bool

	// writeBackward would configure the kernel to write the ring
	// backwards; unsupported by this package, kept zero.
	writeBackward bool

	// Namespaces enables NamespacesRecord records.
	Namespaces bool
}

func (opt Options) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		opt.Disabled,
		opt.Inherit,
		opt.Pinned,
		opt.Exclusive,
		opt.ExcludeUser,
		opt.ExcludeKernel,
		opt.ExcludeHypervisor,
		opt.ExcludeIdle,
		opt.Mmap,
		opt.Comm,
		opt.Freq,
		opt.InheritStat,
		opt.EnableOnExec,
		opt.Task,
		opt.Watermark,
		opt.PreciseIP&1 != 0, opt.PreciseIP&2 != 0, // 2-bit skid constraint
		opt.MmapData,
		opt.SampleIDAll,
		opt.ExcludeHost,
		opt.ExcludeGuest,
		opt.ExcludeKernelCallchain,
		opt.ExcludeUserCallchain,
		opt.Mmap2,
		opt.CommExec,
		opt.UseClockID,
		opt.ContextSwitch,
		opt.writeBackward,
		opt.Namespaces,
	})
}

// unmarshalOptions is the inverse of Options.marshal.
func unmarshalOptions(mask uint64) Options {
	return Options{
		Disabled:               bit(mask, 0),
		Inherit:                bit(mask, 1),
		Pinned:                 bit(mask, 2),
		Exclusive:              bit(mask, 3),
		ExcludeUser:            bit(mask, 4),
		ExcludeKernel:          bit(mask, 5),
		ExcludeHypervisor:      bit(mask, 6),
		ExcludeIdle:            bit(mask, 7),
		Mmap:                   bit(mask, 8),
		Comm:                   bit(mask, 9),
		Freq:                   bit(mask, 10),
		InheritStat:            bit(mask, 11),
		EnableOnExec:           bit(mask, 12),
		Task:                   bit(mask, 13),
		Watermark:              bit(mask, 14),
		PreciseIP:              Skid(boolBit(mask, 15)<<0 | boolBit(mask, 16)<<1),
		MmapData:               bit(mask, 17),
		SampleIDAll:            bit(mask, 18),
		ExcludeHost:            bit(mask, 19),
		ExcludeGuest:           bit(mask, 20),
		ExcludeKernelCallchain: bit(mask, 21),
		ExcludeUserCallchain:   bit(mask, 22),
		Mmap2:                  bit(mask, 23),
		CommExec:               bit(mask, 24),
		UseClockID:             bit(mask, 25),
		ContextSwitch:          bit(mask, 26),
		writeBackward:          bit(mask, 27),
		Namespaces:             bit(mask, 28),
	}
}

func boolBit(mask uint64, shift uint) uint8 {
	if bit(mask, shift) {
		return 1
	}
	return 0
}

// CountFormat configures the format of Counter or GroupCounter
// measurements.
//
// TotalTimeEnabled and TotalTimeRunning configure the event to include
// time-enabled and time-running measurements with the counts. Usually
// these two values are equal; they may differ when events are
// multiplexed.
//
// If ID is set, a unique ID is assigned to the associated event.
//
// If Group is set, callers must use ReadGroupCounter on the associated
// eventfile.EventFile. Otherwise, they must use ReadCounter.
type CountFormat struct {
	TotalTimeEnabled bool
	TotalTimeRunning bool
	ID               bool
	Group            bool
}

// ReadSize returns the number of bytes a non-group counter read(2)
// produces under this format.
func (f CountFormat) ReadSize() int {
	size := 8 // value is always present
	if f.TotalTimeEnabled {
		size += 8
	}
	if f.TotalTimeRunning {
		size += 8
	}
	if f.ID {
		size += 8
	}
	return size
}

// GroupReadHeaderSize returns the size of the fixed portion of a group
// counter read(2), before the per-event counts.
func (f CountFormat) GroupReadHeaderSize() int {
	size := 8 // number of events is always present
	if f.TotalTimeEnabled {
		size += 8
	}
	if f.TotalTimeRunning {
		size += 8
	}
	return size
}

// GroupReadCountSize returns the size of one event's entry within a group
// counter read(2).
func (f CountFormat) GroupReadCountSize() int {
	size := 8 // value is always present
	if f.ID {
		size += 8
	}
	return size
}

func (f CountFormat) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		f.TotalTimeEnabled,
		f.TotalTimeRunning,
		f.ID,
		f.Group,
	})
}

// unmarshalCountFormat is the inverse of CountFormat.marshal.
func unmarshalCountFormat(mask uint64) CountFormat {
	return CountFormat{
		TotalTimeEnabled: bit(mask, 0),
		TotalTimeRunning: bit(mask, 1),
		ID:               bit(mask, 2),
		Group:            bit(mask, 3),
	}
}
