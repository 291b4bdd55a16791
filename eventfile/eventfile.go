// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eventfile wraps a single kernel sampling file descriptor: its
// attr, its unique numeric id, an optional memory-mapped ring buffer
// shared with sibling files on the same CPU, and its registration with
// package reactor. Grounded on the teacher's Event type in event.go,
// generalized to the tid/cpu/group-leader open contract of
// event_fd.h.
package eventfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/reactor"
	"github.com/simpleperf-go/simpleperf/record"
	"github.com/simpleperf-go/simpleperf/ring"
)

// Special tid values for Open.
const (
	// CallingThread configures the event to measure the calling thread.
	CallingThread = 0

	// AllThreads configures the event to measure all threads on the
	// specified CPU.
	AllThreads = -1
)

// AnyCPU configures the specified thread to be measured on any CPU.
const AnyCPU = -1

// OpenFlag is a set of flags for Open. Values are or-ed together.
type OpenFlag int

// Flags for Open.
const (
	// NoGroup configures the event to ignore the groupLeader parameter
	// except for FDOutput routing.
	NoGroup OpenFlag = unix.PERF_FLAG_FD_NO_GROUP

	// FDOutput re-routes the event's sampled output into the ring
	// buffer of groupLeader instead of mapping its own.
	FDOutput OpenFlag = unix.PERF_FLAG_FD_OUTPUT

	// PidCGroup activates per-container monitoring; tid must then be a
	// file descriptor opened on /dev/group/<x>.
	PidCGroup OpenFlag = unix.PERF_FLAG_PID_CGROUP

	cloexec OpenFlag = unix.PERF_FLAG_FD_CLOEXEC
)

// EventFile is one kernel sampling file descriptor.
type EventFile struct {
	fd   int
	attr *attr.EventAttr
	tid  int
	cpu  int

	closed bool

	ring      *ring.Ring
	ringOwned bool // true if this file created the mapping rather than sharing a sibling's

	poll *reactor.Registration
}

// Open opens the sampling file configured by a, bound to tid and cpu.
// groupLeader, if non-nil, makes the returned EventFile part of
// groupLeader's event group; groupLeader must itself have been opened
// with a nil groupLeader. See perf_event_open(2) for the tid/cpu
// combinations this accepts.
func Open(a *attr.EventAttr, tid, cpu int, groupLeader *EventFile, flags OpenFlag) (*EventFile, error) {
	groupfd := -1
	if groupLeader != nil {
		if groupLeader.closed {
			return nil, os.ErrClosed
		}
		groupfd = groupLeader.fd
	}
	flags |= cloexec
	fd, err := unix.PerfEventOpen(a.SysAttr(), tid, cpu, groupfd, int(flags))
	if err != nil {
		return nil, os.NewSyscallError("perf_event_open", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}
	return &EventFile{
		fd:   fd,
		attr: a.Clone(),
		tid:  tid,
		cpu:  cpu,
	}, nil
}

// FD returns the underlying kernel file descriptor.
func (f *EventFile) FD() int { return f.fd }

// Attr returns the attr the file was opened with.
func (f *EventFile) Attr() *attr.EventAttr { return f.attr }

// Tid returns the tid the file is bound to, or AllThreads.
func (f *EventFile) Tid() int { return f.tid }

// CPU returns the cpu the file is bound to, or AnyCPU.
func (f *EventFile) CPU() int { return f.cpu }

func (f *EventFile) ok() error {
	if f == nil || f.closed {
		return os.ErrClosed
	}
	return nil
}

// Enable enables the event.
func (f *EventFile) Enable() error {
	if err := f.ok(); err != nil {
		return err
	}
	return ioctlEnable(f.fd)
}

// Disable disables the event.
func (f *EventFile) Disable() error {
	if err := f.ok(); err != nil {
		return err
	}
	return ioctlDisable(f.fd)
}

// Reset resets the event's counter to zero.
func (f *EventFile) Reset() error {
	if err := f.ok(); err != nil {
		return err
	}
	return ioctlReset(f.fd)
}

// UpdatePeriod updates the overflow period for the event. On older
// kernels the new period only takes effect after the next overflow.
func (f *EventFile) UpdatePeriod(p uint64) error {
	if err := f.ok(); err != nil {
		return err
	}
	return ioctlPeriod(f.fd, &p)
}

// ID returns the kernel-assigned unique id for this file's event,
// suitable for correlating SampleId.ID trailers back to an attr.
func (f *EventFile) ID() (uint64, error) {
	if err := f.ok(); err != nil {
		return 0, err
	}
	return ioctlGetID(f.fd)
}

// ReadCounter reads this file's counter. f must not have been opened
// with attr.CountFormat.Group set; use ReadGroupCounter instead.
func (f *EventFile) ReadCounter() (record.Count, error) {
	if err := f.ok(); err != nil {
		return record.Count{}, err
	}
	if f.attr.CountFormat.Group {
		return record.Count{}, errors.New("eventfile: ReadCounter called on a group-format file")
	}
	buf := make([]byte, f.attr.CountFormat.ReadSize())
	if _, err := unix.Read(f.fd, buf); err != nil {
		return record.Count{}, os.NewSyscallError("read", err)
	}
	return record.DecodeCount(buf, f.attr), nil
}

// ReadGroupCounter reads the measurements for this file's entire group.
// f must be the group leader, opened with attr.CountFormat.Group set.
// nSiblings is the number of non-leader events in the group.
func (f *EventFile) ReadGroupCounter(nSiblings int) (record.GroupCount, error) {
	if err := f.ok(); err != nil {
		return record.GroupCount{}, err
	}
	if !f.attr.CountFormat.Group {
		return record.GroupCount{}, errors.New("eventfile: ReadGroupCounter called on a non-group-format file")
	}
	size := f.attr.CountFormat.GroupReadHeaderSize() + (1+nSiblings)*f.attr.CountFormat.GroupReadCountSize()
	buf := make([]byte, size)
	if _, err := unix.Read(f.fd, buf); err != nil {
		return record.GroupCount{}, os.NewSyscallError("read", err)
	}
	return record.DecodeGroupCount(buf, f.attr), nil
}

// CreateMappedBuffer maps a ring buffer of up to maxPages data pages for
// this file, halving the request until it succeeds or falls below
// minPages, at which point the last error is returned (typically EPERM
// or ENOMEM, per RLIMIT_MEMLOCK).
func (f *EventFile) CreateMappedBuffer(maxPages, minPages uint) error {
	if err := f.ok(); err != nil {
		return err
	}
	if f.ring != nil {
		return errors.New("eventfile: buffer already mapped")
	}
	pages := maxPages
	var lastErr error
	for pages >= minPages {
		sizeExp := log2(pages)
		r, err := ring.Map(f.fd, sizeExp)
		if err == nil {
			f.ring = r
			f.ringOwned = true
			return nil
		}
		lastErr = err
		if pages <= minPages {
			break
		}
		pages /= 2
	}
	if lastErr == nil {
		lastErr = errors.New("eventfile: minPages must be > 0")
	}
	return lastErr
}

// log2 returns floor(log2(n)) for n >= 1, clamped to 0 for n == 0.
func log2(n uint) uint {
	var e uint
	for n > 1 {
		n >>= 1
		e++
	}
	return e
}

// ShareBuffer installs other's ring buffer as f's output, via the
// kernel's buffer-attach ioctl. Only other retains ownership of the
// mapping: destroying f afterwards must not unmap it.
func (f *EventFile) ShareBuffer(other *EventFile) error {
	if err := f.ok(); err != nil {
		return err
	}
	if err := other.ok(); err != nil {
		return err
	}
	if err := ioctlSetOutput(f.fd, other.fd); err != nil {
		return err
	}
	f.ring = other.ring
	f.ringOwned = false
	return nil
}

// Available reports whether the ring buffer has unread data, without
// consuming it. It returns false if no buffer is mapped.
func (f *EventFile) Available() bool {
	return f.ring != nil && f.ring.Available()
}

// Drain reads every record currently buffered, without blocking. It
// returns nil if no buffer is mapped.
func (f *EventFile) Drain() []record.Raw {
	if f.ring == nil {
		return nil
	}
	return f.ring.Drain()
}

// StartPolling registers f's ring buffer fd with loop: whenever data
// becomes available, callback is invoked with every record drained in
// one pass (bounded, so one file cannot starve its siblings under the
// reactor's cooperative scheduling). callback's return value is passed
// through to the reactor exactly as any other Callback's.
func (f *EventFile) StartPolling(loop *reactor.Loop, callback func([]record.Raw) bool) error {
	if err := f.ok(); err != nil {
		return err
	}
	if f.ring == nil {
		return errors.New("eventfile: StartPolling requires a mapped buffer")
	}
	reg, err := loop.AddFdEvent(f.ring.FD(), func() bool {
		return callback(f.ring.Drain())
	})
	if err != nil {
		return err
	}
	f.poll = reg
	return nil
}

// StopPolling cancels this file's reactor registration, if any. It does
// not unmap the ring buffer; call DestroyMappedBuffer for that.
func (f *EventFile) StopPolling() {
	if f.poll != nil {
		f.poll.Cancel()
		f.poll = nil
	}
}

// DestroyMappedBuffer unmaps f's ring buffer, if f owns the mapping. It
// is a no-op if f shares another file's buffer (ShareBuffer) or has no
// buffer mapped.
func (f *EventFile) DestroyMappedBuffer() error {
	if f.ring == nil || !f.ringOwned {
		f.ring = nil
		return nil
	}
	err := f.ring.Close()
	f.ring = nil
	return err
}

// Close stops polling, destroys the mapped buffer if owned, and closes
// the underlying kernel file descriptor.
func (f *EventFile) Close() error {
	if f.closed {
		return nil
	}
	f.StopPolling()
	err := f.DestroyMappedBuffer()
	if cerr := unix.Close(f.fd); err == nil {
		err = cerr
	}
	f.closed = true
	return err
}
