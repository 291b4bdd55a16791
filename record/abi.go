// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import "github.com/simpleperf-go/simpleperf/attr"

// Mmap (PERF_RECORD_MMAP) records a PROT_EXEC mapping, or, if Options.MmapData
// was set on the originating attr, any mapping at all.
type Mmap struct {
	Header
	Pid        uint32
	Tid        uint32
	Addr       uint64
	Len        uint64
	PageOffset uint64
	Filename   string
	ID
}

func (r *Mmap) RecordHeader() Header { return r.Header }

func (r *Mmap) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.uint64(&r.Addr)
	f.uint64(&r.Len)
	f.uint64(&r.PageOffset)
	f.string(&r.Filename)
	f.id(&r.ID, a)
	return f.finish()
}

// Executable reports whether the mapping is executable.
func (r *Mmap) Executable() bool { return r.Header.Misc&miscMmapData == 0 }

// Mmap2 (PERF_RECORD_MMAP2) is Mmap extended with device/inode data, enough
// to uniquely identify shared mappings across processes.
type Mmap2 struct {
	Header
	Pid             uint32
	Tid             uint32
	Addr            uint64
	Len             uint64
	PageOffset      uint64
	MajorID         uint32
	MinorID         uint32
	Inode           uint64
	InodeGeneration uint64
	Prot            uint32
	Flags           uint32
	Filename        string
	ID
}

func (r *Mmap2) RecordHeader() Header { return r.Header }

func (r *Mmap2) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.uint64(&r.Addr)
	f.uint64(&r.Len)
	f.uint64(&r.PageOffset)
	f.uint32(&r.MajorID, &r.MinorID)
	f.uint64(&r.Inode)
	f.uint64(&r.InodeGeneration)
	f.uint32(&r.Prot, &r.Flags)
	f.string(&r.Filename)
	f.id(&r.ID, a)
	return f.finish()
}

// Executable reports whether the mapping is executable.
func (r *Mmap2) Executable() bool { return r.Header.Misc&miscMmapData == 0 }

// Lost (PERF_RECORD_LOST) reports events dropped before reaching the ring.
type Lost struct {
	Header
	LostID uint64
	Lost   uint64
	ID
}

func (r *Lost) RecordHeader() Header { return r.Header }

func (r *Lost) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.LostID)
	f.uint64(&r.Lost)
	f.id(&r.ID, a)
	return f.finish()
}

// Comm (PERF_RECORD_COMM) reports a process name change.
type Comm struct {
	Header
	Pid     uint32
	Tid     uint32
	NewName string
	ID
}

func (r *Comm) RecordHeader() Header { return r.Header }

func (r *Comm) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.string(&r.NewName)
	f.id(&r.ID, a)
	return f.finish()
}

// WasExec reports whether the name change was caused by exec(2).
func (r *Comm) WasExec() bool { return r.Header.Misc&miscCommExec != 0 }

// Exit (PERF_RECORD_EXIT) reports a process or thread exit.
type Exit struct {
	Header
	Pid  uint32
	Ppid uint32
	Tid  uint32
	Ptid uint32
	Time uint64
	ID
}

func (r *Exit) RecordHeader() Header { return r.Header }

func (r *Exit) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Ppid)
	f.uint32(&r.Tid, &r.Ptid)
	f.uint64(&r.Time)
	f.id(&r.ID, a)
	return f.finish()
}

// Fork (PERF_RECORD_FORK) reports a process or thread creation.
type Fork struct {
	Header
	Pid  uint32
	Ppid uint32
	Tid  uint32
	Ptid uint32
	Time uint64
	ID
}

func (r *Fork) RecordHeader() Header { return r.Header }

func (r *Fork) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Ppid)
	f.uint32(&r.Tid, &r.Ptid)
	f.uint64(&r.Time)
	f.id(&r.ID, a)
	return f.finish()
}

// Throttle (PERF_RECORD_THROTTLE) reports that sampling was throttled.
type Throttle struct {
	Header
	Time     uint64
	EventID  uint64
	StreamID uint64
	ID
}

func (r *Throttle) RecordHeader() Header { return r.Header }

func (r *Throttle) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.Time)
	f.uint64(&r.EventID)
	f.uint64(&r.StreamID)
	f.id(&r.ID, a)
	return f.finish()
}

// Unthrottle (PERF_RECORD_UNTHROTTLE) reports that throttling lifted.
type Unthrottle struct {
	Header
	Time     uint64
	EventID  uint64
	StreamID uint64
	ID
}

func (r *Unthrottle) RecordHeader() Header { return r.Header }

func (r *Unthrottle) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.Time)
	f.uint64(&r.EventID)
	f.uint64(&r.StreamID)
	f.id(&r.ID, a)
	return f.finish()
}

// Read (PERF_RECORD_READ) reports a single event's measurement.
type Read struct {
	Header
	Pid   uint32
	Tid   uint32
	Count Count
	ID
}

func (r *Read) RecordHeader() Header { return r.Header }

func (r *Read) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.count(&r.Count, a)
	f.id(&r.ID, a)
	return f.finish()
}

// ReadGroup (PERF_RECORD_READ) reports a group's measurements.
type ReadGroup struct {
	Header
	Pid        uint32
	Tid        uint32
	GroupCount GroupCount
	ID
}

func (r *ReadGroup) RecordHeader() Header { return r.Header }

func (r *ReadGroup) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.groupCount(&r.GroupCount, a)
	f.id(&r.ID, a)
	return f.finish()
}

// AuxFlag describes an update to the AUX buffer region.
type AuxFlag uint64

// AuxFlag bits.
const (
	AuxTruncated AuxFlag = 0x01
	AuxOverwrite AuxFlag = 0x02
	AuxPartial   AuxFlag = 0x04
	AuxCollision AuxFlag = 0x08
)

// Aux (PERF_RECORD_AUX) reports new data in the AUX buffer region.
type Aux struct {
	Header
	Offset uint64
	Size   uint64
	Flags  AuxFlag
	ID
}

func (r *Aux) RecordHeader() Header { return r.Header }

func (r *Aux) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.Offset)
	f.uint64(&r.Size)
	var flags uint64
	f.uint64(&flags)
	r.Flags = AuxFlag(flags)
	f.id(&r.ID, a)
	return f.finish()
}

// ItraceStart (PERF_RECORD_ITRACE_START) reports which thread started an
// instruction trace.
type ItraceStart struct {
	Header
	Pid uint32
	Tid uint32
	ID
}

func (r *ItraceStart) RecordHeader() Header { return r.Header }

func (r *ItraceStart) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.id(&r.ID, a)
	return f.finish()
}

// LostSamples (PERF_RECORD_LOST_SAMPLES) reports samples that may have
// been lost by hardware sampling (e.g. Intel PEBS).
type LostSamples struct {
	Header
	Lost uint64
	ID
}

func (r *LostSamples) RecordHeader() Header { return r.Header }

func (r *LostSamples) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.Lost)
	f.id(&r.ID, a)
	return f.finish()
}

// Switch (PERF_RECORD_SWITCH) reports a context switch.
type Switch struct {
	Header
	ID
}

func (r *Switch) RecordHeader() Header { return r.Header }

func (r *Switch) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.id(&r.ID, a)
	return f.finish()
}

// Out reports whether the switch was out of (vs into) the current task.
func (r *Switch) Out() bool { return r.Header.Misc&miscSwitchOut != 0 }

// Preempted reports whether the outgoing task was preempted while runnable.
func (r *Switch) Preempted() bool { return r.Header.Misc&miscSwitchOutPreempt != 0 }

// SwitchCPUWide (PERF_RECORD_SWITCH_CPU_WIDE) is Switch with the peer
// process/thread identified, emitted only in CPU-wide sampling mode.
type SwitchCPUWide struct {
	Header
	Pid uint32
	Tid uint32
	ID
}

func (r *SwitchCPUWide) RecordHeader() Header { return r.Header }

func (r *SwitchCPUWide) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	f.id(&r.ID, a)
	return f.finish()
}

func (r *SwitchCPUWide) Out() bool       { return r.Header.Misc&miscSwitchOut != 0 }
func (r *SwitchCPUWide) Preempted() bool { return r.Header.Misc&miscSwitchOutPreempt != 0 }

// Namespace identifies one entry of a Namespaces record.
type Namespace struct {
	Dev   uint64
	Inode uint64
}

// Namespaces (PERF_RECORD_NAMESPACES) reports namespace membership.
type Namespaces struct {
	Header
	Pid        uint32
	Tid        uint32
	Namespaces []Namespace
	ID
}

func (r *Namespaces) RecordHeader() Header { return r.Header }

func (r *Namespaces) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32(&r.Pid, &r.Tid)
	var nr uint64
	f.uint64(&nr)
	r.Namespaces = make([]Namespace, f.countFor(nr, 16))
	for i := range r.Namespaces {
		f.uint64(&r.Namespaces[i].Dev)
		f.uint64(&r.Namespaces[i].Inode)
	}
	f.id(&r.ID, a)
	return f.finish()
}

// Unknown is returned by Decode for kernel record types this package does
// not parse. Payload is the raw, undecoded body.
type Unknown struct {
	Header
	Payload []byte
}

func (r *Unknown) RecordHeader() Header { return r.Header }
