// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ring reads records out of a memory-mapped perf ring buffer.
// It owns no goroutines and does no polling itself; callers (package
// eventfile, driven by package reactor) decide when a buffer is likely
// to have data and call ReadRaw to find out for certain.
package ring

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/record"
)

const pageSize = 4096

// Ring is a memory-mapped perf ring buffer: one metadata page, followed
// by 2^SizeExp data pages.
type Ring struct {
	fd      int
	mapping []byte
	meta    *unix.PerfEventMmapPage
	data    []byte
}

// Map maps the ring buffer associated with fd. sizeExp determines the
// data region's size: 2^sizeExp pages, which must be a power of two as
// required by the kernel. fd is not retained beyond the mmap call;
// callers keep owning and eventually closing it.
func Map(fd int, sizeExp uint) (*Ring, error) {
	size := (1 + (1 << sizeExp)) * pageSize
	mapping, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, os.NewSyscallError("mmap", err)
	}
	meta := (*unix.PerfEventMmapPage)(unsafe.Pointer(&mapping[0]))
	return &Ring{
		fd:      fd,
		mapping: mapping,
		meta:    meta,
		data:    mapping[meta.Data_offset : meta.Data_offset+meta.Data_size],
	}, nil
}

// FD returns the perf event file descriptor this ring is mapped from,
// for registration with package reactor.
func (r *Ring) FD() int { return r.fd }

// Available reports whether the kernel has made any new data available
// since the last ReadRaw, without consuming it.
func (r *Ring) Available() bool {
	head := atomic.LoadUint64(&r.meta.Data_head)
	tail := atomic.LoadUint64(&r.meta.Data_tail)
	return head != tail
}

// ReadRaw reads the next raw record into raw, reporting whether one was
// available. Callers must not retain raw.Data past the next call to
// ReadRaw: it may alias the mapping directly when the record did not
// wrap around the end of the buffer.
func (r *Ring) ReadRaw(raw *record.Raw) bool {
	head := atomic.LoadUint64(&r.meta.Data_head)
	tail := atomic.LoadUint64(&r.meta.Data_tail)
	if head == tail {
		return false
	}
	size := uint64(len(r.data))
	start := tail % size
	raw.Header = *(*record.Header)(unsafe.Pointer(&r.data[start]))
	end := (tail + uint64(raw.Header.Size)) % size

	var body []byte
	if end < start {
		// The record wraps around the end of the buffer: copy it into
		// a contiguous allocation, head then tail segment, following
		// the two-slice approach used to read BPF perf buffers.
		body = make([]byte, raw.Header.Size)
		n := copy(body, r.data[start:])
		copy(body[n:], r.data[:int(raw.Header.Size)-n])
	} else {
		body = r.data[start:end]
	}
	raw.Data = body[unsafe.Sizeof(raw.Header):]

	// Release: tell the kernel we've consumed through tail+size. This
	// must happen after the data has been copied or aliased above.
	atomic.AddUint64(&r.meta.Data_tail, uint64(raw.Header.Size))
	return true
}

// Drain reads every record currently available, without blocking.
func (r *Ring) Drain() []record.Raw {
	var out []record.Raw
	for {
		var raw record.Raw
		if !r.ReadRaw(&raw) {
			return out
		}
		out = append(out, raw)
	}
}

// Close unmaps the ring buffer. It does not close the underlying file
// descriptor, which package eventfile owns.
func (r *Ring) Close() error {
	return unix.Munmap(r.mapping)
}
