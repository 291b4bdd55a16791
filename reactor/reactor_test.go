// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reactor_test

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/reactor"
)

func TestFdEventAndExit(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	defer unix.Close(fd)

	loop, err := reactor.New()
	if err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{}, 1)
	if _, err := loop.AddFdEvent(fd, func() bool {
		var buf [8]byte
		unix.Read(fd, buf[:])
		fired <- struct{}{}
		loop.Exit()
		return true
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.RunLoop() }()

	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(fd, buf); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("fd event never fired")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunLoop returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop never returned after Exit")
	}
}

func TestCallbackFailureStopsLoop(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	defer unix.Close(fd)

	loop, err := reactor.New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop.AddFdEvent(fd, func() bool {
		var buf [8]byte
		unix.Read(fd, buf[:])
		return false
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.RunLoop() }()

	var one uint64 = 1
	b := (*[8]byte)(unsafe.Pointer(&one))[:]
	unix.Write(fd, b)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("RunLoop returned nil, want an error from the failing callback")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop never returned after a failing callback")
	}
}

func TestRegistrationCancel(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	defer unix.Close(fd)

	loop, err := reactor.New()
	if err != nil {
		t.Fatal(err)
	}

	var fires int32
	reg, err := loop.AddFdEvent(fd, func() bool {
		var buf [8]byte
		unix.Read(fd, buf[:])
		atomic.AddInt32(&fires, 1)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	reg.Cancel()

	done := make(chan error, 1)
	go func() { done <- loop.RunLoop() }()

	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	unix.Write(fd, buf)

	time.Sleep(50 * time.Millisecond)
	loop.Exit()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunLoop returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop never returned after Exit")
	}
	if atomic.LoadInt32(&fires) != 0 {
		t.Fatal("cancelled callback fired")
	}
}
