// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"fmt"
	"unsafe"

	"github.com/simpleperf-go/simpleperf/attr"
)

// fields is a cursor over the undecoded bytes of a record, advanced as
// each field is consumed. off tracks how many body bytes have been
// consumed so far, so that string padding can be computed relative to
// the start of the whole record (the 8-byte header plus off), matching
// how Encode's builder computes it.
//
// Every read goes through require (directly, or via a helper that
// calls it), which checks the bytes actually exist before touching
// f.b. The first out-of-bounds read latches a *FramingError in ferr;
// every read after that is a no-op, so a malformed record decodes to
// a zero-valued result plus an error instead of panicking partway
// through. Callers retrieve the latched error with err or finish.
type fields struct {
	b    []byte
	off  int
	typ  Type
	size uint16
	ferr error
}

// fail latches reason as a FramingError, if one is not already latched.
func (f *fields) fail(reason string) {
	if f.ferr == nil {
		f.ferr = &FramingError{Type: f.typ, Size: f.size, Offset: f.off, Reason: reason}
	}
}

// err returns the framing error latched by the first malformed read,
// if any.
func (f *fields) err() error { return f.ferr }

// finish returns err(), or, if no read has failed but bytes remain
// unconsumed after every field the record's type and attr call for,
// a newly latched "trailing garbage" FramingError (spec §4.A: decoders
// require post-pad offset <= header.size).
func (f *fields) finish() error {
	if f.ferr != nil {
		return f.ferr
	}
	if len(f.b) != 0 {
		f.fail("trailing garbage beyond record size")
	}
	return f.ferr
}

// require reports whether n more bytes are available, latching a
// framing error and returning false otherwise.
func (f *fields) require(n int) bool {
	if f.ferr != nil {
		return false
	}
	if n < 0 || n > len(f.b) {
		f.fail(fmt.Sprintf("need %d bytes, have %d", n, len(f.b)))
		return false
	}
	return true
}

// countFor validates that n elements of elemSize bytes each fit in the
// bytes remaining, latching a framing error and returning 0 otherwise.
// Call this before allocating a slice sized by a wire-supplied length
// prefix (CALLCHAIN, BRANCH_STACK, group reads, ...), so a malformed
// length can't drive an unbounded allocation ahead of the bounds check
// that would eventually catch it anyway.
func (f *fields) countFor(n uint64, elemSize int) int {
	if f.ferr != nil {
		return 0
	}
	if elemSize <= 0 || n > uint64(len(f.b)/elemSize) {
		f.fail(fmt.Sprintf("length prefix %d exceeds remaining record bytes", n))
		return 0
	}
	return int(n)
}

func (f *fields) uint64(v *uint64) {
	if !f.require(8) {
		return
	}
	*v = *(*uint64)(unsafe.Pointer(&f.b[0]))
	f.advance(8)
}

func (f *fields) uint64Cond(cond bool, v *uint64) {
	if cond {
		f.uint64(v)
	}
}

func (f *fields) uint32(a, b *uint32) {
	if !f.require(8) {
		return
	}
	*a = *(*uint32)(unsafe.Pointer(&f.b[0]))
	*b = *(*uint32)(unsafe.Pointer(&f.b[4]))
	f.advance(8)
}

// uint32single decodes a single 32-bit field into v, advancing 4 bytes.
func (f *fields) uint32single(v *uint32) {
	if !f.require(4) {
		return
	}
	*v = *(*uint32)(unsafe.Pointer(&f.b[0]))
	f.advance(4)
}

func (f *fields) uint32Cond(cond bool, a, b *uint32) {
	if cond {
		f.uint32(a, b)
	}
}

// string decodes a NUL-terminated string padded so that the whole
// record (header plus everything consumed) lands on an 8-byte boundary.
func (f *fields) string(s *string) {
	f.stringAligned(s, 8)
}

// stringPad64 is like string, but for fields padded to 64 bytes
// (BuildId.Filename).
func (f *fields) stringPad64(s *string) {
	f.stringAligned(s, 64)
}

func (f *fields) stringAligned(s *string, align int) {
	if f.ferr != nil {
		return
	}
	for i := 0; i < len(f.b); i++ {
		if f.b[i] == 0 {
			offset := 8 + f.off + i + 1
			padded := i + 1 + (align-offset%align)%align
			if padded > len(f.b) {
				f.fail("string padding extends past record size")
				return
			}
			*s = string(f.b[:i])
			f.advance(padded)
			return
		}
	}
	f.fail("unterminated string")
}

// uint32sizeBytes decodes a uint32 length prefix followed by that many
// raw bytes (used for SampleFormat.Raw).
func (f *fields) uint32sizeBytes(b *[]byte) {
	var n uint32
	f.uint32single(&n)
	if !f.require(int(n)) {
		return
	}
	*b = append([]byte(nil), f.b[:n]...)
	f.advance(int(n))
}

// uint64sizeBytes decodes a uint64 length prefix followed by that many
// raw bytes (used for SampleFormat.UserStack).
func (f *fields) uint64sizeBytes(b *[]byte) {
	var n uint64
	f.uint64(&n)
	if f.ferr != nil {
		return
	}
	if n > uint64(len(f.b)) {
		f.fail(fmt.Sprintf("need %d bytes, have %d", n, len(f.b)))
		return
	}
	*b = append([]byte(nil), f.b[:n]...)
	f.advance(int(n))
}

// bytesN copies exactly len(b) raw bytes, used for fixed-length binary
// blobs such as BuildId's 20-byte build ID.
func (f *fields) bytesN(b []byte) {
	if !f.require(len(b)) {
		return
	}
	copy(b, f.b[:len(b)])
	f.advance(len(b))
}

// id decodes an ID trailer according to a's SampleIDAll and SampleFormat
// configuration. Called at the tail of every ABI record's decode, and a
// no-op whenever SampleIDAll is unset.
func (f *fields) id(id *ID, a *attr.EventAttr) {
	if !a.Options.SampleIDAll {
		return
	}
	f.uint32Cond(a.SampleFormat.Tid, &id.Pid, &id.Tid)
	f.uint64Cond(a.SampleFormat.Time, &id.Time)
	f.uint64Cond(a.SampleFormat.ID, &id.ID)
	f.uint64Cond(a.SampleFormat.StreamID, &id.StreamID)
	f.uint32Cond(a.SampleFormat.CPU, &id.CPU, &id.Res)
	f.uint64Cond(a.SampleFormat.Identifier, &id.Identifier)
}

func (f *fields) count(c *Count, a *attr.EventAttr) {
	f.uint64(&c.Value)
	if a.CountFormat.TotalTimeEnabled {
		f.uint64(&c.TimeEnabled)
	}
	if a.CountFormat.TotalTimeRunning {
		f.uint64(&c.TimeRunning)
	}
	if a.CountFormat.ID {
		f.uint64(&c.ID)
	}
}

func (f *fields) groupCount(gc *GroupCount, a *attr.EventAttr) {
	var nr uint64
	f.uint64(&nr)
	if a.CountFormat.TotalTimeEnabled {
		f.uint64(&gc.TimeEnabled)
	}
	if a.CountFormat.TotalTimeRunning {
		f.uint64(&gc.TimeRunning)
	}
	entrySize := 8
	if a.CountFormat.ID {
		entrySize = 16
	}
	gc.Counts = make([]GroupCountEntry, f.countFor(nr, entrySize))
	for i := range gc.Counts {
		f.uint64(&gc.Counts[i].Value)
		if a.CountFormat.ID {
			f.uint64(&gc.Counts[i].ID)
		}
	}
}

func (f *fields) advance(n int) {
	f.b = f.b[n:]
	f.off += n
}

func (f *fields) len() int { return len(f.b) }
