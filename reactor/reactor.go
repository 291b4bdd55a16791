// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reactor implements a single-threaded, cooperative I/O event
// loop: one goroutine multiplexes file-descriptor readability, signals
// and periodic timers with unix.Ppoll, and dispatches to a callback per
// event. It is the Go-native counterpart of a libevent event_base: no
// callback runs concurrently with another, and any callback can stop
// the loop by returning false or by calling Loop.Exit.
package reactor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Callback reports whether the loop should keep running. Returning
// false stops RunLoop with a non-nil error, which distinguishes a
// callback-initiated failure from an explicit Exit (after which RunLoop
// returns nil).
type Callback func() bool

type source struct {
	fd        int
	events    int16
	callback  Callback
	close     func() error // closes any kernel resource backing fd (timerfd/signalfd)
	cancelled int32        // set via atomic; RunLoop reaps cancelled sources each iteration
}

// Registration is a handle to one event registered with a Loop. Cancel
// may be called from any goroutine, including from within a callback.
type Registration struct {
	src *source
}

// Cancel unregisters the event. RunLoop stops polling its fd and closes
// any kernel resource backing it no later than the next iteration.
func (r *Registration) Cancel() {
	atomic.StoreInt32(&r.src.cancelled, 1)
}

// Loop is a single-threaded I/O reactor. Create one with New; the zero
// value has no exit eventfd and is not usable.
type Loop struct {
	sources []*source
	exitfd  int
	exit    bool
	failed  bool
}

// New returns a Loop ready to register events on.
func New() (*Loop, error) {
	exitfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &Loop{exitfd: exitfd}, nil
}

// AddFdEvent registers callback to run whenever fd becomes readable.
// callback is invoked once per RunLoop iteration in which fd was ready,
// and may itself read from fd (AddFdEvent does not consume readiness).
func (l *Loop) AddFdEvent(fd int, callback Callback) (*Registration, error) {
	src := &source{fd: fd, events: unix.POLLIN, callback: callback}
	l.sources = append(l.sources, src)
	return &Registration{src: src}, nil
}

// AddSignalEvent registers callback to run whenever sig is delivered to
// the process. Mirrors IOEventLoop::AddSignalEvent.
func (l *Loop) AddSignalEvent(sig os.Signal, callback Callback) (*Registration, error) {
	return l.AddSignalEvents([]os.Signal{sig}, callback)
}

// AddSignalEvents is like AddSignalEvent, but reports any of sigs
// through the same callback. Delivery is bridged from Go's os/signal
// machinery onto an eventfd, so it multiplexes with the rest of the
// loop's sources under one ppoll(2) call, the way EV_SIGNAL does for
// the libevent-based original.
func (l *Loop) AddSignalEvents(sigs []os.Signal, callback Callback) (*Registration, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	var mu sync.Mutex
	pending := 0
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				mu.Lock()
				pending++
				mu.Unlock()
				eventfdAdd(fd, 1)
			case <-done:
				signal.Stop(ch)
				return
			}
		}
	}()

	wrapped := func() bool {
		mu.Lock()
		n := pending
		pending = 0
		mu.Unlock()
		var buf [8]byte
		unix.Read(fd, buf[:])
		for i := 0; i < n; i++ {
			if !callback() {
				return false
			}
		}
		return true
	}
	src := &source{
		fd:       fd,
		events:   unix.POLLIN,
		callback: wrapped,
		close: func() error {
			close(done)
			return unix.Close(fd)
		},
	}
	l.sources = append(l.sources, src)
	return &Registration{src: src}, nil
}

// eventfdAdd adds delta to the eventfd counter at fd.
func eventfdAdd(fd int, delta uint64) {
	buf := (*[8]byte)(unsafe.Pointer(&delta))[:]
	unix.Write(fd, buf)
}

// AddPeriodicEvent registers callback to run every interval. Mirrors
// IOEventLoop::AddTimeEvent.
func (l *Loop) AddPeriodicEvent(interval time.Duration, callback Callback) (*Registration, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("timerfd_settime", err)
	}
	wrapped := func() bool {
		var buf [8]byte
		unix.Read(fd, buf[:]) // drain the expiration count; value is irrelevant
		return callback()
	}
	src := &source{
		fd:       fd,
		events:   unix.POLLIN,
		callback: wrapped,
		close:    func() error { return unix.Close(fd) },
	}
	l.sources = append(l.sources, src)
	return &Registration{src: src}, nil
}

// Exit stops the loop after the current RunLoop iteration completes,
// without marking it as failed. Mirrors IOEventLoop::ExitLoop. Safe to
// call from any goroutine, as well as from within a callback.
func (l *Loop) Exit() {
	eventfdAdd(l.exitfd, 1)
}

// RunLoop dispatches events until Exit is called, a callback returns
// false, or ppoll(2) fails. It returns an error in the latter two cases.
func (l *Loop) RunLoop() error {
	defer l.closeSources()

	for {
		if l.exit {
			if l.failed {
				return errExitedWithError
			}
			return nil
		}
		l.reapCancelled()

		pollfds := make([]unix.PollFd, len(l.sources)+1)
		for i, s := range l.sources {
			pollfds[i] = unix.PollFd{Fd: int32(s.fd), Events: s.events}
		}
		pollfds[len(l.sources)] = unix.PollFd{Fd: int32(l.exitfd), Events: unix.POLLIN}

		_, err := unix.Ppoll(pollfds, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("ppoll", err)
		}

		if pollfds[len(l.sources)].Revents&unix.POLLIN != 0 {
			var buf [8]byte
			unix.Read(l.exitfd, buf[:])
			l.exit = true
			continue
		}

		for i, s := range l.sources {
			if pollfds[i].Revents&unix.POLLIN == 0 {
				continue
			}
			if !s.callback() {
				l.exit = true
				l.failed = true
				break
			}
		}
	}
}

// reapCancelled drops sources whose Registration.Cancel was called,
// closing any kernel resource backing them.
func (l *Loop) reapCancelled() {
	live := l.sources[:0]
	for _, s := range l.sources {
		if atomic.LoadInt32(&s.cancelled) != 0 {
			if s.close != nil {
				s.close()
			}
			continue
		}
		live = append(live, s)
	}
	l.sources = live
}

func (l *Loop) closeSources() {
	for _, s := range l.sources {
		if s.close != nil {
			s.close()
		}
	}
	unix.Close(l.exitfd)
}

var errExitedWithError = runError("reactor: a callback returned false")

type runError string

func (e runError) Error() string { return string(e) }
