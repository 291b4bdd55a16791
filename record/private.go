// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

// These record types never appear on a kernel ring buffer; they are
// simpleperf's own side-channel records, written into the feature
// section or the data section of a recording file to carry information
// the kernel ABI has no room for: build IDs, a snapshot of
// /proc/kallsyms, and the DSO/symbol tables used to resolve IPs without
// re-reading every mapped file at report time.

const buildIDSize = 20

// BuildId carries a DSO's build ID, the 20-byte identity ELF's
// .note.gnu.build-id or APK/dex equivalent produces.
type BuildId struct {
	Header
	Pid      uint32
	BuildID  [buildIDSize]byte
	Filename string
}

func (r *BuildId) RecordHeader() Header { return r.Header }

func (r *BuildId) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint32single(&r.Pid)
	f.bytesN(r.BuildID[:])
	f.stringPad64(&r.Filename)
	return f.finish()
}

// KernelSymbol carries a verbatim copy of /proc/kallsyms, captured once
// at record time since reading it later may require root the reporting
// user lacks, or may race with module load/unload.
type KernelSymbol struct {
	Header
	KallsymsBlob string
}

func (r *KernelSymbol) RecordHeader() Header { return r.Header }

func (r *KernelSymbol) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	var size uint32
	f.uint32single(&size)
	blob := make([]byte, f.countFor(uint64(size), 1))
	f.bytesN(blob)
	r.KallsymsBlob = string(blob)
	return f.finish()
}

// DsoType distinguishes the kind of binary a Dso record describes.
type DsoType uint32

// Known DSO types.
const (
	DsoKernel DsoType = iota
	DsoKernelModule
	DsoElfFile
	DsoDexFile
)

// Dso registers one mapped binary (ELF, dex file, or kernel/module
// image) under a small integer ID that Symbol records reference, so the
// symbol table need not repeat the (long) file path per entry.
type Dso struct {
	Header
	Type DsoType
	ID   uint64
	Name string
}

func (r *Dso) RecordHeader() Header { return r.Header }

func (r *Dso) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	var typ uint32
	f.uint32single(&typ)
	r.Type = DsoType(typ)
	f.uint64(&r.ID)
	f.string(&r.Name)
	return f.finish()
}

// Symbol is one entry of a DSO's symbol table: an address range and the
// name it resolves to, keyed to the Dso record that declared DsoID.
type Symbol struct {
	Header
	Addr  uint64
	Len   uint64
	Name  string
	DsoID uint64
}

func (r *Symbol) RecordHeader() Header { return r.Header }

func (r *Symbol) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	f.uint64(&r.Addr)
	f.uint64(&r.Len)
	f.string(&r.Name)
	f.uint64(&r.DsoID)
	return f.finish()
}

// EventId maps a set of kernel-assigned event ids to the index of the
// attr (within an eventset.Set's flattened selection list) that
// produced them, so a sink reading interleaved samples from many
// EventFiles can tell which selection a given Sample.EventID belongs
// to. Emitted synthetically by package eventset whenever it opens new
// files, whether at startup or after a hotplug online transition; it
// never arrives from the kernel ring buffer itself.
type EventId struct {
	Header
	Entries []EventIdEntry
}

// EventIdEntry is one (id, attr index) pair within an EventId record.
type EventIdEntry struct {
	AttrIndex uint64
	ID        uint64
}

func (r *EventId) RecordHeader() Header { return r.Header }

func (r *EventId) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	var count uint64
	f.uint64(&count)
	r.Entries = make([]EventIdEntry, f.countFor(count, 16))
	for i := range r.Entries {
		f.uint64(&r.Entries[i].AttrIndex)
		f.uint64(&r.Entries[i].ID)
	}
	return f.finish()
}

// TracingData carries the ftrace format blob needed to decode raw
// tracepoint samples offline, without access to the recording machine's
// /sys/kernel/debug/tracing directory.
type TracingData struct {
	Header
	Blob []byte
}

func (r *TracingData) RecordHeader() Header { return r.Header }

func (r *TracingData) decode(raw *Raw) error {
	r.Header = raw.Header
	f := raw.fields()
	var size uint32
	f.uint32single(&size)
	r.Blob = make([]byte, f.countFor(uint64(size), 1))
	f.bytesN(r.Blob)
	return f.finish()
}
