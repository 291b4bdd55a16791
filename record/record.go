// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record decodes and encodes the records written by the kernel to
// a perf ring buffer, plus the simpleperf-private side-channel record
// types carried in recording files (BuildId, KernelSymbol, Dso, Symbol,
// TracingData). See man 2 perf_event_open and the PERF_RECORD_* family.
package record

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/attr"
)

// Type is the type of a record, ABI (kernel) or simpleperf-private.
type Type uint32

// Known record types. Values below privateBase come from the kernel ABI;
// values at or above it are simpleperf-private, chosen out of the ABI's
// range so that a stream never confuses the two families.
const (
	TypeMmap          Type = unix.PERF_RECORD_MMAP
	TypeLost          Type = unix.PERF_RECORD_LOST
	TypeComm          Type = unix.PERF_RECORD_COMM
	TypeExit          Type = unix.PERF_RECORD_EXIT
	TypeThrottle      Type = unix.PERF_RECORD_THROTTLE
	TypeUnthrottle    Type = unix.PERF_RECORD_UNTHROTTLE
	TypeFork          Type = unix.PERF_RECORD_FORK
	TypeRead          Type = unix.PERF_RECORD_READ
	TypeSample        Type = unix.PERF_RECORD_SAMPLE
	TypeMmap2         Type = unix.PERF_RECORD_MMAP2
	TypeAux           Type = unix.PERF_RECORD_AUX
	TypeItraceStart   Type = unix.PERF_RECORD_ITRACE_START
	TypeLostSamples   Type = unix.PERF_RECORD_LOST_SAMPLES
	TypeSwitch        Type = unix.PERF_RECORD_SWITCH
	TypeSwitchCPUWide Type = unix.PERF_RECORD_SWITCH_CPU_WIDE
	TypeNamespaces    Type = unix.PERF_RECORD_NAMESPACES

	privateBase Type = 0x40000

	TypeBuildId     Type = privateBase + 1
	TypeKernelSymbol Type = privateBase + 2
	TypeDso          Type = privateBase + 3
	TypeSymbol       Type = privateBase + 4
	TypeTracingData  Type = privateBase + 5
	TypeUnknown      Type = privateBase + 6
	TypeEventId      Type = privateBase + 7
)

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

var typeNames = map[Type]string{
	TypeMmap:          "PERF_RECORD_MMAP",
	TypeLost:          "PERF_RECORD_LOST",
	TypeComm:          "PERF_RECORD_COMM",
	TypeExit:          "PERF_RECORD_EXIT",
	TypeThrottle:      "PERF_RECORD_THROTTLE",
	TypeUnthrottle:    "PERF_RECORD_UNTHROTTLE",
	TypeFork:          "PERF_RECORD_FORK",
	TypeRead:          "PERF_RECORD_READ",
	TypeSample:        "PERF_RECORD_SAMPLE",
	TypeMmap2:         "PERF_RECORD_MMAP2",
	TypeAux:           "PERF_RECORD_AUX",
	TypeItraceStart:   "PERF_RECORD_ITRACE_START",
	TypeLostSamples:   "PERF_RECORD_LOST_SAMPLES",
	TypeSwitch:        "PERF_RECORD_SWITCH",
	TypeSwitchCPUWide: "PERF_RECORD_SWITCH_CPU_WIDE",
	TypeNamespaces:    "PERF_RECORD_NAMESPACES",
	TypeBuildId:       "SIMPLE_PERF_RECORD_BUILD_ID",
	TypeKernelSymbol:  "SIMPLE_PERF_RECORD_KERNEL_SYMBOL",
	TypeDso:           "SIMPLE_PERF_RECORD_DSO",
	TypeSymbol:        "SIMPLE_PERF_RECORD_SYMBOL",
	TypeTracingData:   "SIMPLE_PERF_RECORD_TRACING_DATA",
	TypeUnknown:       "SIMPLE_PERF_RECORD_UNKNOWN",
	TypeEventId:       "SIMPLE_PERF_RECORD_EVENT_ID",
}

func (t Type) known() bool {
	_, ok := typeNames[t]
	return ok
}

// CPUMode bits, from the low 3 bits of Header.Misc.
const cpuModeMask = 7

// CPUMode is the CPU operation mode in effect when a record's event fired.
type CPUMode uint8

// Known CPU modes.
const (
	UnknownMode     CPUMode = 0
	KernelMode      CPUMode = 1
	UserMode        CPUMode = 2
	HypervisorMode  CPUMode = 3
	GuestKernelMode CPUMode = 4
	GuestUserMode   CPUMode = 5
)

// Misc bits beyond CPUMode, shared across several record types.
const (
	miscMmapData         = 1 << 13
	miscCommExec         = 1 << 13
	miscSwitchOut        = 1 << 13
	miscSwitchOutPreempt = 1 << 14
	miscExactIP          = 1 << 14
)

// Header is the header present at the start of every record.
type Header struct {
	Type Type
	Misc uint16
	Size uint16
}

// CPUMode returns the CPU mode in effect when the record's event fired.
func (h Header) CPUMode() CPUMode { return CPUMode(h.Misc & cpuModeMask) }

// FramingError reports a malformed record: one whose declared Size does
// not admit the fields its Type and attr mandate, so decoding would read
// past the record's boundary.
type FramingError struct {
	Type   Type
	Size   uint16
	Offset int
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("record: framing error decoding %s (size %d, offset %d): %s",
		e.Type, e.Size, e.Offset, e.Reason)
}

// ID carries the identifiers attached to a record when Options.SampleIDAll
// is set on the originating attr (or always, for TypeSample). Which
// fields are populated is governed by the attr's SampleFormat.
type ID struct {
	Pid        uint32
	Tid        uint32
	Time       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Identifier uint64
}

// Record is implemented by every decoded record type.
type Record interface {
	RecordHeader() Header
}

// Raw is an undecoded record: a header plus the bytes that follow it,
// as read from a ring buffer or a recording file. Data must not include
// the header itself.
type Raw struct {
	Header Header
	Data   []byte
}

func (raw Raw) fields() fields {
	return fields{b: raw.Data, typ: raw.Header.Type, size: raw.Header.Size}
}

// headerSize is sizeof(Header): a 32-bit type, a 16-bit misc field and
// a 16-bit size field, unpadded.
const headerSize = 8

// Decode decodes raw into a concrete Record, using a to resolve any
// attr-dependent field layout (SampleFormat, CountFormat, SampleIDAll).
// Unknown kernel record types decode to *Unknown rather than failing,
// since callers need only skip them cleanly.
//
// Decode bounds every field read to raw.Header.Size (spec §4.A: "size
// too small, out-of-bound variable length, trailing garbage beyond
// size" all yield a *FramingError rather than reading past the
// record's boundary) and aborts decoding of the current record only;
// callers are expected to log and continue (spec §7).
func Decode(raw *Raw, a *attr.EventAttr) (Record, error) {
	if int(raw.Header.Size) < headerSize {
		return nil, &FramingError{Type: raw.Header.Type, Size: raw.Header.Size, Reason: "size smaller than record header"}
	}
	if len(raw.Data) != int(raw.Header.Size)-headerSize {
		return nil, &FramingError{
			Type: raw.Header.Type, Size: raw.Header.Size, Offset: len(raw.Data),
			Reason: fmt.Sprintf("declared size implies a %d byte body, got %d", int(raw.Header.Size)-headerSize, len(raw.Data)),
		}
	}
	switch raw.Header.Type {
	case TypeMmap:
		r := &Mmap{}
		return r, r.decode(raw, a)
	case TypeLost:
		r := &Lost{}
		return r, r.decode(raw, a)
	case TypeComm:
		r := &Comm{}
		return r, r.decode(raw, a)
	case TypeExit:
		r := &Exit{}
		return r, r.decode(raw, a)
	case TypeThrottle:
		r := &Throttle{}
		return r, r.decode(raw, a)
	case TypeUnthrottle:
		r := &Unthrottle{}
		return r, r.decode(raw, a)
	case TypeFork:
		r := &Fork{}
		return r, r.decode(raw, a)
	case TypeRead:
		if a.CountFormat.Group {
			r := &ReadGroup{}
			return r, r.decode(raw, a)
		}
		r := &Read{}
		return r, r.decode(raw, a)
	case TypeSample:
		if a.CountFormat.Group {
			r := &SampleGroup{}
			return r, r.decode(raw, a)
		}
		r := &Sample{}
		return r, r.decode(raw, a)
	case TypeMmap2:
		r := &Mmap2{}
		return r, r.decode(raw, a)
	case TypeAux:
		r := &Aux{}
		return r, r.decode(raw, a)
	case TypeItraceStart:
		r := &ItraceStart{}
		return r, r.decode(raw, a)
	case TypeLostSamples:
		r := &LostSamples{}
		return r, r.decode(raw, a)
	case TypeSwitch:
		r := &Switch{}
		return r, r.decode(raw, a)
	case TypeSwitchCPUWide:
		r := &SwitchCPUWide{}
		return r, r.decode(raw, a)
	case TypeNamespaces:
		r := &Namespaces{}
		return r, r.decode(raw, a)
	case TypeBuildId:
		r := &BuildId{}
		return r, r.decode(raw)
	case TypeKernelSymbol:
		r := &KernelSymbol{}
		return r, r.decode(raw)
	case TypeDso:
		r := &Dso{}
		return r, r.decode(raw)
	case TypeSymbol:
		r := &Symbol{}
		return r, r.decode(raw)
	case TypeTracingData:
		r := &TracingData{}
		return r, r.decode(raw)
	case TypeEventId:
		r := &EventId{}
		return r, r.decode(raw)
	default:
		return &Unknown{Header: raw.Header, Payload: append([]byte(nil), raw.Data...)}, nil
	}
}

// bitCount returns the number of set bits in mask, used to size register
// dump slices (SampleRegsUser / SampleRegsIntr).
func bitCount(mask uint64) int { return bits.OnesCount64(mask) }
