// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import "github.com/simpleperf-go/simpleperf/attr"

// BranchEntry is one entry of a last-branch-record stack.
type BranchEntry struct {
	From             uint64
	To               uint64
	Mispredicted     bool
	Predicted        bool
	InTransaction    bool
	TransactionAbort bool
	Cycles           uint16
	BranchType       uint8
}

func decodeBranchStack(f *fields, n int) []BranchEntry {
	entries := make([]BranchEntry, n)
	for i := range entries {
		var from, to, flags uint64
		f.uint64(&from)
		f.uint64(&to)
		f.uint64(&flags)
		entries[i] = BranchEntry{
			From:             from,
			To:               to,
			Mispredicted:     flags&(1<<0) != 0,
			Predicted:        flags&(1<<1) != 0,
			InTransaction:    flags&(1<<2) != 0,
			TransactionAbort: flags&(1<<3) != 0,
			Cycles:           uint16((flags >> 4) & 0xffff),
			BranchType:       uint8((flags >> 20) & 0xf),
		}
	}
	return entries
}

// DataSource decodes PERF_SAMPLE_DATA_SRC, describing the memory
// subsystem an access was satisfied from.
type DataSource uint64

// Transaction describes a transactional-memory abort.
type Transaction uint64

// Transaction bits.
const (
	TransactionElision       Transaction = 1 << iota // Intel RTM/HLE elision abort
	TransactionGeneric                                // generic transaction abort
	TransactionSync                                   // synchronous (related to the reported IP)
	TransactionAsync                                   // asynchronous (unrelated to the reported IP)
	TransactionRetryable                              // retrying may succeed
	TransactionConflict                               // abort due to memory conflict with other threads
	TransactionWriteCapacity                          // abort due to write capacity overflow
	TransactionReadCapacity                           // abort due to read capacity overflow
)

const (
	txnAbortMask  = 0xffffffff
	txnAbortShift = 32
)

// UserAbortCode returns the user-specified abort code of the transaction.
func (t Transaction) UserAbortCode() uint32 {
	return uint32((t >> txnAbortShift) & txnAbortMask)
}

// sampleBody holds the fields shared, field for field, by Sample and
// SampleGroup. It exists so the two decode methods share one body.
type sampleBody struct {
	Identifier uint64
	IP         uint64
	Pid        uint32
	Tid        uint32
	Time       uint64
	Addr       uint64
	EventID    uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Period     uint64
	Callchain  []uint64

	Raw                  []byte
	BranchStack          []BranchEntry
	UserRegisterABI      uint64
	UserRegisters        []uint64
	UserStack            []byte
	UserStackDynamicSize uint64
	Weight               uint64
	DataSource           DataSource
	Transaction          Transaction
	IntrRegisterABI      uint64
	IntrRegisters        []uint64
	PhysicalAddress      uint64
}

func (b *sampleBody) decodeCommon(f *fields, a *attr.EventAttr) {
	sf := a.SampleFormat
	f.uint64Cond(sf.Identifier, &b.Identifier)
	f.uint64Cond(sf.IP, &b.IP)
	f.uint32Cond(sf.Tid, &b.Pid, &b.Tid)
	f.uint64Cond(sf.Time, &b.Time)
	f.uint64Cond(sf.Addr, &b.Addr)
	f.uint64Cond(sf.ID, &b.EventID)
	f.uint64Cond(sf.StreamID, &b.StreamID)
	f.uint32Cond(sf.CPU, &b.CPU, &b.Res)
	f.uint64Cond(sf.Period, &b.Period)
}

func (b *sampleBody) decodeTail(f *fields, a *attr.EventAttr) {
	sf := a.SampleFormat
	if sf.Callchain {
		var nr uint64
		f.uint64(&nr)
		b.Callchain = make([]uint64, f.countFor(nr, 8))
		for i := range b.Callchain {
			f.uint64(&b.Callchain[i])
		}
	}
	if sf.Raw {
		f.uint32sizeBytes(&b.Raw)
	}
	if sf.BranchStack {
		var nr uint64
		f.uint64(&nr)
		b.BranchStack = decodeBranchStack(f, f.countFor(nr, 24))
	}
	if sf.UserRegisters {
		f.uint64(&b.UserRegisterABI)
		b.UserRegisters = make([]uint64, bitCount(a.SampleRegsUser))
		for i := range b.UserRegisters {
			f.uint64(&b.UserRegisters[i])
		}
	}
	if sf.UserStack {
		f.uint64sizeBytes(&b.UserStack)
		if len(b.UserStack) > 0 {
			f.uint64(&b.UserStackDynamicSize)
		}
	}
	f.uint64Cond(sf.Weight, &b.Weight)
	if sf.DataSource {
		var ds uint64
		f.uint64(&ds)
		b.DataSource = DataSource(ds)
	}
	if sf.Transaction {
		var tx uint64
		f.uint64(&tx)
		b.Transaction = Transaction(tx)
	}
	if sf.IntrRegisters {
		f.uint64(&b.IntrRegisterABI)
		b.IntrRegisters = make([]uint64, bitCount(a.SampleRegsIntr))
		for i := range b.IntrRegisters {
			f.uint64(&b.IntrRegisters[i])
		}
	}
	f.uint64Cond(sf.PhysicalAddress, &b.PhysicalAddress)
}

// Sample (PERF_RECORD_SAMPLE) is an overflow record for a non-group event.
//
// Fields through Callchain are kernel ABI. Everything from Raw onward has
// no cross-kernel-version compatibility guarantee.
type Sample struct {
	Header
	sampleBody
	Count Count
}

func (r *Sample) RecordHeader() Header { return r.Header }

func (r *Sample) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	r.decodeCommon(&f, a)
	if a.SampleFormat.Count {
		f.count(&r.Count, a)
	}
	r.decodeTail(&f, a)
	return f.finish()
}

// ExactIP reports whether IP is the exact instruction that triggered the
// event, rather than a skid-affected approximation.
func (r *Sample) ExactIP() bool { return r.Header.Misc&miscExactIP != 0 }

// SampleGroup (PERF_RECORD_SAMPLE) is an overflow record for a group event.
type SampleGroup struct {
	Header
	sampleBody
	GroupCount GroupCount
}

func (r *SampleGroup) RecordHeader() Header { return r.Header }

func (r *SampleGroup) decode(raw *Raw, a *attr.EventAttr) error {
	r.Header = raw.Header
	f := raw.fields()
	r.decodeCommon(&f, a)
	if a.SampleFormat.Count {
		f.groupCount(&r.GroupCount, a)
	}
	r.decodeTail(&f, a)
	return f.finish()
}

// ExactIP reports whether IP is the exact instruction that triggered the
// event, rather than a skid-affected approximation.
func (r *SampleGroup) ExactIP() bool { return r.Header.Misc&miscExactIP != 0 }
