// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventfile

import (
	"fmt"
	"unsafe"

	"acln.ro/ioctl"
)

// Perf event file descriptor ioctls, typed through acln.ro/ioctl rather
// than a hand-rolled unix.Syscall(SYS_IOCTL, ...) trio.
//
// Type/Nr/Size mirror the _IO/_IOW/_IOR definitions of
// PERF_EVENT_IOC_* in linux/perf_event.h (ioctl type '$').
const perfIoctlType = '$'

var (
	iocEnable    = ioctl.N{Type: perfIoctlType, Nr: 0}
	iocDisable   = ioctl.N{Type: perfIoctlType, Nr: 1}
	iocReset     = ioctl.N{Type: perfIoctlType, Nr: 3}
	iocPeriod    = ioctl.W{Type: perfIoctlType, Nr: 4, Size: 8}
	iocSetOutput = ioctl.N{Type: perfIoctlType, Nr: 5}
	iocID        = ioctl.R{Type: perfIoctlType, Nr: 7, Size: 8}
)

func ioctlEnable(fd int) error {
	_, err := iocEnable.Exec(fd)
	return wrapIoctlError("PERF_EVENT_IOC_ENABLE", err)
}

func ioctlDisable(fd int) error {
	_, err := iocDisable.Exec(fd)
	return wrapIoctlError("PERF_EVENT_IOC_DISABLE", err)
}

func ioctlReset(fd int) error {
	_, err := iocReset.Exec(fd)
	return wrapIoctlError("PERF_EVENT_IOC_RESET", err)
}

func ioctlPeriod(fd int, period *uint64) error {
	return wrapIoctlError("PERF_EVENT_IOC_PERIOD", iocPeriod.Write(fd, unsafe.Pointer(period)))
}

// ioctlSetOutput installs targetFD as the buffer that fd's samples are
// routed into. targetFD == -1 disables output for fd.
func ioctlSetOutput(fd, targetFD int) error {
	_, err := iocSetOutput.ExecInt(fd, uintptr(targetFD))
	return wrapIoctlError("PERF_EVENT_IOC_SET_OUTPUT", err)
}

func ioctlGetID(fd int) (uint64, error) {
	var id uint64
	err := iocID.Read(fd, unsafe.Pointer(&id))
	return id, wrapIoctlError("PERF_EVENT_IOC_ID", err)
}

func wrapIoctlError(name string, err error) error {
	if err == nil {
		return nil
	}
	return &ioctlError{ioctl: name, err: err}
}

type ioctlError struct {
	ioctl string
	err   error
}

func (e *ioctlError) Error() string { return fmt.Sprintf("eventfile: %s: %v", e.ioctl, e.err) }

func (e *ioctlError) Unwrap() error { return e.err }
