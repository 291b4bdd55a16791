// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"testing"

	"github.com/simpleperf-go/simpleperf/record"
)

func TestTreeAddThreadMapAndFindMap(t *testing.T) {
	tree := New()
	tree.AddThread(100, 100, "main")
	tree.AddThreadMap(100, 100, 0x1000, 0x1000, 0, 1, "/bin/app")

	th := tree.FindThreadOrNew(100, 100)
	m := tree.FindMap(th, 0x1500, false)
	if m == tree.UnknownMap() {
		t.Fatal("expected a real map, got UnknownMap")
	}
	if m.Dso.Path != "/bin/app" {
		t.Fatalf("m.Dso.Path = %q, want /bin/app", m.Dso.Path)
	}

	if m := tree.FindMap(th, 0x9000, false); m != tree.UnknownMap() {
		t.Fatalf("FindMap outside any map = %+v, want UnknownMap", m)
	}
}

func TestTreeForkThreadInheritsMaps(t *testing.T) {
	tree := New()
	tree.AddThread(100, 100, "main")
	tree.AddThreadMap(100, 100, 0x1000, 0x1000, 0, 1, "/bin/app")

	tree.ForkThread(100, 200, 100, 100)
	child := tree.FindThreadOrNew(100, 200)
	if child.Comm != "main" {
		t.Fatalf("child.Comm = %q, want main", child.Comm)
	}
	if m := tree.FindMap(child, 0x1500, false); m == tree.UnknownMap() {
		t.Fatal("child did not inherit parent's maps")
	}
}

func TestTreeAddKernelMapDropsZeroLength(t *testing.T) {
	tree := New()
	tree.AddKernelMap(0x8000, 0, 0, 1, kernelMmapName)
	if len(tree.kernelMaps.entries) != 0 {
		t.Fatalf("zero-length kernel map was installed: %+v", tree.kernelMaps.entries)
	}

	tree.AddKernelMap(0x8000, 0x1000, 0, 1, kernelMmapName)
	if len(tree.kernelMaps.entries) != 1 {
		t.Fatal("expected the non-zero-length kernel map to install")
	}
}

func TestTreeUpdateHandlesMmapCommFork(t *testing.T) {
	tree := New()

	comm := &record.Comm{Pid: 1, Tid: 1, NewName: "init"}
	tree.Update(comm)
	if got := tree.FindThreadOrNew(1, 1).Comm; got != "init" {
		t.Fatalf("comm = %q, want init", got)
	}

	mmap := &record.Mmap{
		Header:     record.Header{Misc: uint16(record.UserMode)},
		Pid:        1,
		Tid:        1,
		Addr:       0x400000,
		Len:        0x1000,
		PageOffset: 0,
		Filename:   "/bin/init",
	}
	tree.Update(mmap)
	th := tree.FindThreadOrNew(1, 1)
	if m := tree.FindMap(th, 0x400100, false); m.Dso.Path != "/bin/init" {
		t.Fatalf("m.Dso.Path = %q, want /bin/init", m.Dso.Path)
	}

	fork := &record.Fork{Pid: 1, Tid: 2, Ppid: 1, Ptid: 1}
	tree.Update(fork)
	child := tree.FindThreadOrNew(1, 2)
	if m := tree.FindMap(child, 0x400100, false); m == tree.UnknownMap() {
		t.Fatal("forked thread did not inherit parent's maps")
	}
}

func TestTreeUpdateKernelMmap(t *testing.T) {
	tree := New()
	mmap := &record.Mmap{
		Header:   record.Header{Misc: uint16(record.KernelMode)},
		Pid:      0,
		Tid:      0,
		Addr:     0xffffffff81000000,
		Len:      0x1000000,
		Filename: kernelMmapName,
	}
	tree.Update(mmap)
	if len(tree.kernelMaps.entries) != 1 {
		t.Fatalf("expected a kernel map to install, got %d", len(tree.kernelMaps.entries))
	}
}
