// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"bytes"
	"encoding/binary"

	"github.com/simpleperf-go/simpleperf/attr"
)

// builder accumulates an encoded record body. Encode finishes by
// prefixing the header once the body length is known.
type builder struct {
	buf bytes.Buffer
}

func (b *builder) u32(v uint32) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) u64(v uint64) { binary.Write(&b.buf, binary.LittleEndian, v) }

func (b *builder) u32Cond(cond bool, v uint32) {
	if cond {
		b.u32(v)
	}
}

func (b *builder) u64Cond(cond bool, v uint64) {
	if cond {
		b.u64(v)
	}
}

// str writes s NUL-terminated and padded so that the whole record (the
// 8-byte header plus everything written so far) lands on the next
// multiple of align.
func (b *builder) str(s string, align int) {
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	offset := 8 + b.buf.Len()
	if pad := (align - offset%align) % align; pad > 0 {
		b.buf.Write(make([]byte, pad))
	}
}

func (b *builder) raw(p []byte) { b.buf.Write(p) }

func (b *builder) id(id ID, a *attr.EventAttr) {
	if !a.Options.SampleIDAll {
		return
	}
	sf := a.SampleFormat
	b.u32Cond(sf.Tid, id.Pid)
	b.u32Cond(sf.Tid, id.Tid)
	b.u64Cond(sf.Time, id.Time)
	b.u64Cond(sf.ID, id.ID)
	b.u64Cond(sf.StreamID, id.StreamID)
	b.u32Cond(sf.CPU, id.CPU)
	b.u32Cond(sf.CPU, id.Res)
	b.u64Cond(sf.Identifier, id.Identifier)
}

func (b *builder) count(c Count, a *attr.EventAttr) {
	b.u64(c.Value)
	if a.CountFormat.TotalTimeEnabled {
		b.u64(c.TimeEnabled)
	}
	if a.CountFormat.TotalTimeRunning {
		b.u64(c.TimeRunning)
	}
	if a.CountFormat.ID {
		b.u64(c.ID)
	}
}

// finish wraps the accumulated body with a header of type t and misc
// bits misc, returning the complete encoded record.
func (b *builder) finish(t Type, misc uint16) []byte {
	body := b.buf.Bytes()
	size := 8 + len(body)
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:4], uint32(t))
	binary.LittleEndian.PutUint16(out[4:6], misc)
	binary.LittleEndian.PutUint16(out[6:8], uint16(size))
	copy(out[8:], body)
	return out
}

// Encode marshals r back into its wire representation. For the record
// types it handles (Mmap, Mmap2, Comm, Exit, Fork, Lost, BuildId,
// KernelSymbol, Dso, Symbol, TracingData, EventId and Sample), Encode is
// the left inverse of Decode: for a Raw successfully decoded into r,
// Encode(r, a) reproduces the original bytes exactly, modulo the
// zero-padding of variable-length string fields (which Decode discards
// and Encode regenerates canonically). Any other record type yields a
// *FramingError.
func Encode(r Record, a *attr.EventAttr) ([]byte, error) {
	switch v := r.(type) {
	case *Mmap:
		var b builder
		b.u32(v.Pid)
		b.u32(v.Tid)
		b.u64(v.Addr)
		b.u64(v.Len)
		b.u64(v.PageOffset)
		b.str(v.Filename, 8)
		b.id(v.ID, a)
		return b.finish(TypeMmap, v.Header.Misc), nil
	case *Mmap2:
		var b builder
		b.u32(v.Pid)
		b.u32(v.Tid)
		b.u64(v.Addr)
		b.u64(v.Len)
		b.u64(v.PageOffset)
		b.u32(v.MajorID)
		b.u32(v.MinorID)
		b.u64(v.Inode)
		b.u64(v.InodeGeneration)
		b.u32(v.Prot)
		b.u32(v.Flags)
		b.str(v.Filename, 8)
		b.id(v.ID, a)
		return b.finish(TypeMmap2, v.Header.Misc), nil
	case *Comm:
		var b builder
		b.u32(v.Pid)
		b.u32(v.Tid)
		b.str(v.NewName, 8)
		b.id(v.ID, a)
		return b.finish(TypeComm, v.Header.Misc), nil
	case *Exit:
		var b builder
		b.u32(v.Pid)
		b.u32(v.Ppid)
		b.u32(v.Tid)
		b.u32(v.Ptid)
		b.u64(v.Time)
		b.id(v.ID, a)
		return b.finish(TypeExit, v.Header.Misc), nil
	case *Fork:
		var b builder
		b.u32(v.Pid)
		b.u32(v.Ppid)
		b.u32(v.Tid)
		b.u32(v.Ptid)
		b.u64(v.Time)
		b.id(v.ID, a)
		return b.finish(TypeFork, v.Header.Misc), nil
	case *Lost:
		var b builder
		b.u64(v.LostID)
		b.u64(v.Lost)
		b.id(v.ID, a)
		return b.finish(TypeLost, v.Header.Misc), nil
	case *BuildId:
		var b builder
		b.u32(v.Pid)
		b.raw(v.BuildID[:])
		b.str(v.Filename, 64)
		return b.finish(TypeBuildId, v.Header.Misc), nil
	case *KernelSymbol:
		var b builder
		b.u32(uint32(len(v.KallsymsBlob)))
		b.raw([]byte(v.KallsymsBlob))
		return b.finish(TypeKernelSymbol, v.Header.Misc), nil
	case *Dso:
		var b builder
		b.u32(uint32(v.Type))
		b.u64(v.ID)
		b.str(v.Name, 8)
		return b.finish(TypeDso, v.Header.Misc), nil
	case *Symbol:
		var b builder
		b.u64(v.Addr)
		b.u64(v.Len)
		b.str(v.Name, 8)
		b.u64(v.DsoID)
		return b.finish(TypeSymbol, v.Header.Misc), nil
	case *TracingData:
		var b builder
		b.u32(uint32(len(v.Blob)))
		b.raw(v.Blob)
		return b.finish(TypeTracingData, v.Header.Misc), nil
	case *EventId:
		var b builder
		b.u64(uint64(len(v.Entries)))
		for _, e := range v.Entries {
			b.u64(e.AttrIndex)
			b.u64(e.ID)
		}
		return b.finish(TypeEventId, v.Header.Misc), nil
	case *Sample:
		return encodeSample(v, a)
	default:
		return nil, &FramingError{Type: r.RecordHeader().Type, Reason: "encode not supported for this record type"}
	}
}

func encodeSample(v *Sample, a *attr.EventAttr) ([]byte, error) {
	var b builder
	sf := a.SampleFormat
	b.u64Cond(sf.Identifier, v.Identifier)
	b.u64Cond(sf.IP, v.IP)
	b.u32Cond(sf.Tid, v.Pid)
	b.u32Cond(sf.Tid, v.Tid)
	b.u64Cond(sf.Time, v.Time)
	b.u64Cond(sf.Addr, v.Addr)
	b.u64Cond(sf.ID, v.EventID)
	b.u64Cond(sf.StreamID, v.StreamID)
	b.u32Cond(sf.CPU, v.CPU)
	b.u32Cond(sf.CPU, v.Res)
	b.u64Cond(sf.Period, v.Period)
	if sf.Count {
		b.count(v.Count, a)
	}
	if sf.Callchain {
		b.u64(uint64(len(v.Callchain)))
		for _, ip := range v.Callchain {
			b.u64(ip)
		}
	}
	if sf.Raw {
		b.u32(uint32(len(v.Raw)))
		b.raw(v.Raw)
	}
	if sf.BranchStack {
		b.u64(uint64(len(v.BranchStack)))
		for _, e := range v.BranchStack {
			b.u64(e.From)
			b.u64(e.To)
			var flags uint64
			if e.Mispredicted {
				flags |= 1 << 0
			}
			if e.Predicted {
				flags |= 1 << 1
			}
			if e.InTransaction {
				flags |= 1 << 2
			}
			if e.TransactionAbort {
				flags |= 1 << 3
			}
			flags |= (uint64(e.Cycles) & 0xffff) << 4
			flags |= (uint64(e.BranchType) & 0xf) << 20
			b.u64(flags)
		}
	}
	if sf.UserRegisters {
		b.u64(v.UserRegisterABI)
		for _, r := range v.UserRegisters {
			b.u64(r)
		}
	}
	if sf.UserStack {
		b.u64(uint64(len(v.UserStack)))
		b.raw(v.UserStack)
		if len(v.UserStack) > 0 {
			b.u64(v.UserStackDynamicSize)
		}
	}
	b.u64Cond(sf.Weight, v.Weight)
	if sf.DataSource {
		b.u64(uint64(v.DataSource))
	}
	if sf.Transaction {
		b.u64(uint64(v.Transaction))
	}
	if sf.IntrRegisters {
		b.u64(v.IntrRegisterABI)
		for _, r := range v.IntrRegisters {
			b.u64(r)
		}
	}
	b.u64Cond(sf.PhysicalAddress, v.PhysicalAddress)
	return b.finish(TypeSample, v.Header.Misc), nil
}
