// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import "github.com/simpleperf-go/simpleperf/record"

// kernelMmapName is the synthetic filename the kernel reports for its
// own image in an MMAP/MMAP2 record's Filename field.
const kernelMmapName = "[kernel.kallsyms]_text"

// execnameForThreadMmap is the placeholder filename some kernels report
// for a thread's initial anonymous exec mapping before its real name is
// known.
const execnameForThreadMmap = "//anon"

// ThreadEntry is one monitored thread: its latest reported comm, and
// the memory maps installed in it (or inherited from its parent at
// fork).
type ThreadEntry struct {
	Pid  int
	Tid  int
	Comm string

	maps mapSet
}

// Tree resolves sample instruction pointers to (map, symbol) pairs by
// replaying the COMM/FORK/MMAP/MMAP2 records that describe a
// recording's address spaces as they occur, component F of the
// sampling pipeline.
type Tree struct {
	threads map[int]*ThreadEntry

	kernelMaps mapSet
	kernelDso  *Dso
	modules    map[string]*Dso
	userDsos   map[string]*Dso

	unknownDso *Dso
	unknownMap *MapEntry

	symFsDir string
	demangle bool
}

// New returns an empty Tree configured by opts. WithSymFsDir sets a
// directory prefixed onto every mapped file's path before it is opened,
// letting a report run against symbols captured from a different
// machine's root filesystem; WithDemangle controls C++ name demangling
// for user DSOs, which is on by default, matching DsoFactory::demangle's
// default.
func New(opts ...Option) *Tree {
	t := &Tree{
		threads:  make(map[int]*ThreadEntry),
		modules:  make(map[string]*Dso),
		userDsos: make(map[string]*Dso),
		demangle: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.unknownDso = newDso("unknown", KindElfFile, t.symFsDir, false)
	t.unknownMap = &MapEntry{StartAddr: 0, Len: ^uint64(0), Dso: t.unknownDso}
	return t
}

// AddThread records comm as the latest name of tid, a member of
// process pid, creating the thread if this is the first record seen
// for it.
func (t *Tree) AddThread(pid, tid int, comm string) {
	t.FindThreadOrNew(pid, tid).Comm = comm
}

// ForkThread records that tid (in process pid) was just created by
// ptid (in process ppid), inheriting its parent's comm and maps: a
// thread created by clone(2) without CLONE_VM still needs a correct
// address space until its own exec (or first mmap) replaces it.
func (t *Tree) ForkThread(pid, tid, ppid, ptid int) {
	parent := t.FindThreadOrNew(ppid, ptid)
	child := t.FindThreadOrNew(pid, tid)
	child.Comm = parent.Comm
	child.maps.entries = make([]*MapEntry, len(parent.maps.entries))
	for i, e := range parent.maps.entries {
		copied := *e
		child.maps.entries[i] = &copied
	}
}

// FindThreadOrNew returns tid's ThreadEntry, creating one named
// "unknown" if tid has not been seen yet (a sample can arrive for a
// thread whose COMM record was emitted before recording started).
func (t *Tree) FindThreadOrNew(pid, tid int) *ThreadEntry {
	if th, ok := t.threads[tid]; ok {
		return th
	}
	th := &ThreadEntry{Pid: pid, Tid: tid, Comm: "unknown"}
	t.threads[tid] = th
	return th
}

// AddKernelMap installs a kernel (or kernel module) mapping. A zero
// length is dropped: the kernel reports one when a record command ran
// without the privilege to read /proc/kallsyms addresses.
func (t *Tree) AddKernelMap(startAddr, length, pageOffset, time uint64, filename string) {
	if length == 0 {
		return
	}
	dso := t.findKernelDsoOrNew(filename)
	t.kernelMaps.insert(&MapEntry{
		StartAddr: startAddr, Len: length, PageOffset: pageOffset,
		Time: time, Dso: dso, InKernel: true,
	})
}

func (t *Tree) findKernelDsoOrNew(filename string) *Dso {
	if filename == kernelMmapName {
		if t.kernelDso == nil {
			t.kernelDso = newDso(kernelMmapName, KindKernel, t.symFsDir, false)
		}
		return t.kernelDso
	}
	if dso, ok := t.modules[filename]; ok {
		return dso
	}
	dso := newDso(filename, KindKernelModule, t.symFsDir, false)
	t.modules[filename] = dso
	return dso
}

// AddThreadMap installs a user mapping in tid's (process pid's)
// address space.
func (t *Tree) AddThreadMap(pid, tid int, startAddr, length, pageOffset, time uint64, filename string) {
	th := t.FindThreadOrNew(pid, tid)
	dso := t.findUserDsoOrNew(filename)
	th.maps.insert(&MapEntry{
		StartAddr: startAddr, Len: length, PageOffset: pageOffset,
		Time: time, Dso: dso,
	})
}

func (t *Tree) findUserDsoOrNew(filename string) *Dso {
	if dso, ok := t.userDsos[filename]; ok {
		return dso
	}
	dso := newDso(filename, KindElfFile, t.symFsDir, t.demangle)
	t.userDsos[filename] = dso
	return dso
}

// FindMap returns the map covering ip in thread's address space (the
// kernel's, if inKernel), or UnknownMap if none does.
func (t *Tree) FindMap(thread *ThreadEntry, ip uint64, inKernel bool) *MapEntry {
	var m *MapEntry
	if inKernel {
		m = t.kernelMaps.find(ip)
	} else {
		m = thread.maps.find(ip)
	}
	if m == nil {
		return t.unknownMap
	}
	return m
}

// FindMapUnknownMode is FindMap for a sample whose CPU mode could not
// be determined, trying the thread's own maps first and falling back
// to the kernel's, matching the original's two-argument FindMap
// overload.
func (t *Tree) FindMapUnknownMode(thread *ThreadEntry, ip uint64) *MapEntry {
	if m := thread.maps.find(ip); m != nil {
		return m
	}
	if m := t.kernelMaps.find(ip); m != nil {
		return m
	}
	return t.unknownMap
}

// UnknownMap returns the synthetic map used when no real mapping covers
// an address.
func (t *Tree) UnknownMap() *MapEntry { return t.unknownMap }

// FindSymbol returns the symbol covering ip within m, and the virtual
// address ip corresponds to within the mapped file (vaddrInFile),
// needed by callers that report file-relative addresses.
func (t *Tree) FindSymbol(m *MapEntry, ip uint64) (sym *Symbol, vaddrInFile uint64) {
	var offsetInFile uint64
	if m.Dso == t.kernelDso {
		offsetInFile = ip
	} else {
		offsetInFile = ip - m.StartAddr + m.PageOffset
	}
	return m.Dso.FindSymbol(offsetInFile), offsetInFile
}

// FindKernelSymbol is FindSymbol restricted to the kernel's own map,
// for callers (such as kernel callchain resolution) that never need a
// MapEntry.
func (t *Tree) FindKernelSymbol(ip uint64) *Symbol {
	m := t.kernelMaps.find(ip)
	if m == nil {
		return Unknown
	}
	sym, _ := t.FindSymbol(m, ip)
	return sym
}

// ClearThreadAndMap discards every thread and mapping, keeping loaded
// Dso symbol tables so a second pass over the same recording does not
// re-parse every ELF file.
func (t *Tree) ClearThreadAndMap() {
	t.threads = make(map[int]*ThreadEntry)
	t.kernelMaps = mapSet{}
}

// Update folds one record into the tree: MMAP/MMAP2 install a mapping,
// COMM records a name change, FORK propagates a parent's address space
// to its child. Every other record type is ignored.
func (t *Tree) Update(rec record.Record) {
	switch r := rec.(type) {
	case *record.Mmap:
		t.updateMmap(r.Header.CPUMode(), int(r.Pid), int(r.Tid), r.Addr, r.Len, r.PageOffset, r.ID.Time, r.Filename)
	case *record.Mmap2:
		filename := r.Filename
		if filename == execnameForThreadMmap {
			filename = "[unknown]"
		}
		t.updateMmap(r.Header.CPUMode(), int(r.Pid), int(r.Tid), r.Addr, r.Len, r.PageOffset, r.ID.Time, filename)
	case *record.Comm:
		t.AddThread(int(r.Pid), int(r.Tid), r.NewName)
	case *record.Fork:
		t.ForkThread(int(r.Pid), int(r.Tid), int(r.Ppid), int(r.Ptid))
	}
}

func (t *Tree) updateMmap(mode record.CPUMode, pid, tid int, addr, length, pageOffset, time uint64, filename string) {
	if mode == record.KernelMode {
		t.AddKernelMap(addr, length, pageOffset, time, filename)
		return
	}
	t.AddThreadMap(pid, tid, addr, length, pageOffset, time, filename)
}
