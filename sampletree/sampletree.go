// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sampletree aggregates resolved samples into one entry per
// distinct (thread, instruction pointer), accumulating period and
// sample count across repeats and merging each entry's call chains
// with package callchain, then exposes the result as a view sorted by
// period. Grounded on original_source/simpleperf/sample_tree.h/.cpp:
// SampleEntry, AddSample, AddBranchSample, AddCallChainSample and
// VisitAllSamples are transliterated from there, generalized to reuse
// this module's own package symbol for address resolution rather than
// reimplementing thread_tree's interval maps a second time, as the
// original's sample_tree.cpp does internally.
package sampletree

import (
	"sort"

	"github.com/simpleperf-go/simpleperf/callchain"
	"github.com/simpleperf-go/simpleperf/symbol"
)

// BranchFrom describes the source side of a branch-stack sample
// (AddBranchSample): the taken branch's origin, alongside the
// destination recorded as the Sample's own IP/Map/Symbol.
type BranchFrom struct {
	IP     uint64
	Map    *symbol.MapEntry
	Symbol *symbol.Symbol
	Flags  uint64
}

// Sample is one distinct (thread, instruction pointer) observed across
// a recording, with its resolved map and symbol, the period and sample
// count accumulated against it, and the merged tree of call chains
// that ended here.
type Sample struct {
	Thread            *symbol.ThreadEntry
	IP                uint64
	Time              uint64
	Period            uint64
	AccumulatedPeriod uint64
	SampleCount       uint64
	Map               *symbol.MapEntry
	Sym               *symbol.Symbol
	BranchFrom        *BranchFrom
	CallChain         callchain.Root
}

// ChainSymbolName implements callchain.Entry, so a Sample can appear as
// a frame inside another sample's merged call chain.
func (s *Sample) ChainSymbolName() string { return s.Sym.Name }

type sampleKey struct {
	tid int
	ip  uint64
}

// Tree aggregates Samples, resolving addresses through resolver,
// component H of the sampling pipeline.
type Tree struct {
	resolver *symbol.Tree

	samples map[sampleKey]*Sample
	sorted  []*Sample

	totalSamples uint64
	totalPeriod  uint64
}

// New returns an empty Tree backed by resolver for address resolution.
func New(resolver *symbol.Tree) *Tree {
	return &Tree{resolver: resolver, samples: make(map[sampleKey]*Sample)}
}

func (t *Tree) resolve(pid, tid int, ip uint64, inKernel bool) (*symbol.MapEntry, *symbol.Symbol) {
	thread := t.resolver.FindThreadOrNew(pid, tid)
	m := t.resolver.FindMap(thread, ip, inKernel)
	sym, _ := t.resolver.FindSymbol(m, ip)
	return m, sym
}

func (t *Tree) findOrAllocate(tid int, value *Sample) (*Sample, bool) {
	key := sampleKey{tid: tid, ip: value.IP}
	if existing, ok := t.samples[key]; ok {
		return existing, true
	}
	t.samples[key] = value
	t.sorted = nil
	return value, false
}

// AddSample resolves ip and records one ordinary (non-callchain) hit
// against it, merging with any existing entry at the same (tid, ip).
func (t *Tree) AddSample(pid, tid int, ip, time, period uint64, inKernel bool) *Sample {
	m, sym := t.resolve(pid, tid, ip, inKernel)
	value := &Sample{
		Thread: t.resolver.FindThreadOrNew(pid, tid),
		IP:     ip, Time: time, Period: period, SampleCount: 1,
		Map: m, Sym: sym,
	}
	return t.insert(tid, value)
}

// AddBranchSample resolves both ends of a taken branch and records the
// destination as the Sample proper, the source as its BranchFrom. A
// from-address that resolves to nothing in user space falls back to
// the kernel map, since a branch can cross the user/kernel boundary.
func (t *Tree) AddBranchSample(pid, tid int, fromIP, toIP, branchFlags, time, period uint64) {
	thread := t.resolver.FindThreadOrNew(pid, tid)

	fromMap := t.resolver.FindMap(thread, fromIP, false)
	if fromMap == t.resolver.UnknownMap() {
		fromMap = t.resolver.FindMap(thread, fromIP, true)
	}
	fromSym, _ := t.resolver.FindSymbol(fromMap, fromIP)

	toMap := t.resolver.FindMap(thread, toIP, false)
	if toMap == t.resolver.UnknownMap() {
		toMap = t.resolver.FindMap(thread, toIP, true)
	}
	toSym, _ := t.resolver.FindSymbol(toMap, toIP)

	value := &Sample{
		Thread: thread, IP: toIP, Time: time, Period: period, SampleCount: 1,
		Map: toMap, Sym: toSym,
		BranchFrom: &BranchFrom{IP: fromIP, Map: fromMap, Symbol: fromSym, Flags: branchFlags},
	}
	t.insert(tid, value)
}

// AddCallChainSample resolves ip and records it as one frame of a call
// chain rather than a standalone hit: period accumulates into
// AccumulatedPeriod instead of Period, and the sample is skipped if it
// already appears earlier in chain (a recursive call would otherwise
// double count the function it recurses through).
func (t *Tree) AddCallChainSample(pid, tid int, ip, time, period uint64, inKernel bool, chain []*Sample) *Sample {
	m, sym := t.resolve(pid, tid, ip, inKernel)
	key := sampleKey{tid: tid, ip: ip}
	if existing, ok := t.samples[key]; ok {
		for _, s := range chain {
			if s == existing {
				return existing
			}
		}
	}

	value := &Sample{
		Thread: t.resolver.FindThreadOrNew(pid, tid),
		IP:     ip, Time: time, AccumulatedPeriod: period,
		Map: m, Sym: sym,
	}
	return t.insert(tid, value)
}

func (t *Tree) insert(tid int, value *Sample) *Sample {
	result, existed := t.findOrAllocate(tid, value)
	if existed {
		result.Period += value.Period
		result.AccumulatedPeriod += value.AccumulatedPeriod
		result.SampleCount += value.SampleCount
	}
	t.totalSamples += value.SampleCount
	t.totalPeriod += value.Period
	return result
}

// InsertCallChainForSample merges chain, with period attributed to its
// terminal frame, into sample's own call chain tree.
func (t *Tree) InsertCallChainForSample(sample *Sample, chain []*Sample, period uint64) {
	if len(chain) == 0 {
		return
	}
	entries := make([]callchain.Entry, len(chain))
	for i, s := range chain {
		entries[i] = s
	}
	sample.CallChain.AddCallChain(entries, period)
}

// TotalSamples is the sample count accumulated across every AddSample/
// AddBranchSample call (AddCallChainSample does not contribute: it
// records chain frames, not independent hits).
func (t *Tree) TotalSamples() uint64 { return t.totalSamples }

// TotalPeriod is the period accumulated across every AddSample/
// AddBranchSample call.
func (t *Tree) TotalPeriod() uint64 { return t.totalPeriod }

// VisitAllSamples calls fn once per distinct sample, in the derived
// view sorted by period descending, (re)computing that view (and
// sorting each sample's own call chain the same way) only when new
// samples have been added since the last call.
func (t *Tree) VisitAllSamples(fn func(*Sample)) {
	if t.sorted == nil {
		t.sorted = make([]*Sample, 0, len(t.samples))
		for _, s := range t.samples {
			s.CallChain.SortByPeriod()
			t.sorted = append(t.sorted, s)
		}
		sort.SliceStable(t.sorted, func(i, j int) bool {
			a, b := t.sorted[i], t.sorted[j]
			if a.Period != b.Period {
				return a.Period > b.Period
			}
			if a.Thread.Tid != b.Thread.Tid {
				return a.Thread.Tid < b.Thread.Tid
			}
			return a.IP < b.IP
		})
	}
	for _, s := range t.sorted {
		fn(s)
	}
}
