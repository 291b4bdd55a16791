// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ring

import (
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/record"
)

// newTestRing builds a Ring over a plain byte slice, standing in for an
// mmapped region, so the wraparound logic can be exercised without a
// real perf event file descriptor.
func newTestRing(dataSize uint64) *Ring {
	return &Ring{
		meta: &unix.PerfEventMmapPage{},
		data: make([]byte, dataSize),
	}
}

func writeHeader(b []byte, typ record.Type, size uint16) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(typ))
	binary.LittleEndian.PutUint16(b[4:6], 0)
	binary.LittleEndian.PutUint16(b[6:8], size)
}

func TestReadRawNoWrap(t *testing.T) {
	r := newTestRing(64)
	writeHeader(r.data[0:], 1, 16)
	binary.LittleEndian.PutUint64(r.data[8:], 0xdeadbeef)
	r.meta.Data_head = 16
	r.meta.Data_tail = 0

	var raw record.Raw
	if !r.ReadRaw(&raw) {
		t.Fatal("expected a record to be available")
	}
	if raw.Header.Type != 1 {
		t.Fatalf("got type %d, want 1", raw.Header.Type)
	}
	if got := binary.LittleEndian.Uint64(raw.Data); got != 0xdeadbeef {
		t.Fatalf("got payload %x, want deadbeef", got)
	}
	if r.Available() {
		t.Fatal("expected buffer to be drained")
	}
}

func TestReadRawWrap(t *testing.T) {
	r := newTestRing(32)
	// Place a 16-byte record straddling the end of a 32-byte ring,
	// starting at offset 24: 8 bytes at the tail, 8 at the head.
	writeHeader(r.data[24:], 2, 16)
	binary.LittleEndian.PutUint64(r.data[0:], 0x1122334455667788)
	r.meta.Data_head = 24 + 16
	r.meta.Data_tail = 24

	var raw record.Raw
	if !r.ReadRaw(&raw) {
		t.Fatal("expected a record to be available")
	}
	if raw.Header.Type != 2 {
		t.Fatalf("got type %d, want 2", raw.Header.Type)
	}
	if got := binary.LittleEndian.Uint64(raw.Data); got != 0x1122334455667788 {
		t.Fatalf("got payload %x, want the wrapped value", got)
	}
}

func TestReadRawEmpty(t *testing.T) {
	r := newTestRing(64)
	var raw record.Raw
	if r.ReadRaw(&raw) {
		t.Fatal("expected no record to be available on an empty ring")
	}
}
