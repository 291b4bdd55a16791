// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attr

import "golang.org/x/sys/unix"

// Counter is implemented by the well-known hardware, software and cache
// counters below. MarshalAttr returns an EventAttr with Type and Config
// set; Label returns the perf-stat-style name used by the "list" and
// "stat"/"record" -e parsers in package eventset.
type Counter interface {
	Label() string
	MarshalAttr() *EventAttr
}

// HardwareCounter is a hardware performance counter.
type HardwareCounter uint64

// Hardware performance counters.
const (
	CPUCycles             HardwareCounter = unix.PERF_COUNT_HW_CPU_CYCLES
	Instructions          HardwareCounter = unix.PERF_COUNT_HW_INSTRUCTIONS
	CacheReferences       HardwareCounter = unix.PERF_COUNT_HW_CACHE_REFERENCES
	CacheMisses           HardwareCounter = unix.PERF_COUNT_HW_CACHE_MISSES
	BranchInstructions    HardwareCounter = unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS
	BranchMisses          HardwareCounter = unix.PERF_COUNT_HW_BRANCH_MISSES
	BusCycles             HardwareCounter = unix.PERF_COUNT_HW_BUS_CYCLES
	StalledCyclesFrontend HardwareCounter = unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND
	StalledCyclesBackend  HardwareCounter = unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND
	RefCPUCycles          HardwareCounter = unix.PERF_COUNT_HW_REF_CPU_CYCLES
)

var hardwareCounterLabels = map[HardwareCounter]string{
	CPUCycles:             "cpu-cycles",
	Instructions:          "instructions",
	CacheReferences:       "cache-references",
	CacheMisses:           "cache-misses",
	BranchInstructions:    "branch-instructions",
	BranchMisses:          "branch-misses",
	BusCycles:             "bus-cycles",
	StalledCyclesFrontend: "stalled-cycles-frontend",
	StalledCyclesBackend:  "stalled-cycles-backend",
	RefCPUCycles:          "ref-cycles",
}

func (hwc HardwareCounter) Label() string { return hardwareCounterLabels[hwc] }

func (hwc HardwareCounter) MarshalAttr() *EventAttr {
	return &EventAttr{Label: hwc.Label(), Type: HardwareEvent, Config: uint64(hwc)}
}

// AllHardwareCounters returns every known hardware counter, in the order
// "perf list" conventionally prints them.
func AllHardwareCounters() []HardwareCounter {
	return []HardwareCounter{
		CPUCycles, Instructions, CacheReferences, CacheMisses,
		BranchInstructions, BranchMisses, BusCycles,
		StalledCyclesFrontend, StalledCyclesBackend, RefCPUCycles,
	}
}

// SoftwareCounter is a software performance counter.
type SoftwareCounter uint64

// Software performance counters.
const (
	CPUClock        SoftwareCounter = unix.PERF_COUNT_SW_CPU_CLOCK
	TaskClock       SoftwareCounter = unix.PERF_COUNT_SW_TASK_CLOCK
	PageFaults      SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS
	ContextSwitches SoftwareCounter = unix.PERF_COUNT_SW_CONTEXT_SWITCHES
	CPUMigrations   SoftwareCounter = unix.PERF_COUNT_SW_CPU_MIGRATIONS
	MinorPageFaults SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS_MIN
	MajorPageFaults SoftwareCounter = unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ
	AlignmentFaults SoftwareCounter = unix.PERF_COUNT_SW_ALIGNMENT_FAULTS
	EmulationFaults SoftwareCounter = unix.PERF_COUNT_SW_EMULATION_FAULTS
	Dummy           SoftwareCounter = unix.PERF_COUNT_SW_DUMMY
	BPFOutput       SoftwareCounter = unix.PERF_COUNT_SW_BPF_OUTPUT
)

var softwareCounterLabels = map[SoftwareCounter]string{
	CPUClock:        "cpu-clock",
	TaskClock:       "task-clock",
	PageFaults:      "page-faults",
	ContextSwitches: "context-switches",
	CPUMigrations:   "cpu-migrations",
	MinorPageFaults: "minor-faults",
	MajorPageFaults: "major-faults",
	AlignmentFaults: "alignment-faults",
	EmulationFaults: "emulation-faults",
	Dummy:           "dummy",
	BPFOutput:       "bpf-output",
}

func (swc SoftwareCounter) Label() string { return softwareCounterLabels[swc] }

func (swc SoftwareCounter) MarshalAttr() *EventAttr {
	return &EventAttr{Label: swc.Label(), Type: SoftwareEvent, Config: uint64(swc)}
}

// AllSoftwareCounters returns every known software counter.
func AllSoftwareCounters() []SoftwareCounter {
	return []SoftwareCounter{
		CPUClock, TaskClock, PageFaults, ContextSwitches, CPUMigrations,
		MinorPageFaults, MajorPageFaults, AlignmentFaults, EmulationFaults,
		Dummy, BPFOutput,
	}
}

// Cache identifies a cache.
type Cache uint64

// Caches.
const (
	L1D  Cache = unix.PERF_COUNT_HW_CACHE_L1D
	L1I  Cache = unix.PERF_COUNT_HW_CACHE_L1I
	LL   Cache = unix.PERF_COUNT_HW_CACHE_LL
	DTLB Cache = unix.PERF_COUNT_HW_CACHE_DTLB
	ITLB Cache = unix.PERF_COUNT_HW_CACHE_ITLB
	BPU  Cache = unix.PERF_COUNT_HW_CACHE_BPU
	NODE Cache = unix.PERF_COUNT_HW_CACHE_NODE
)

var cacheLabels = map[Cache]string{
	L1D: "L1-dcache", L1I: "L1-icache", LL: "LLC", DTLB: "dTLB",
	ITLB: "iTLB", BPU: "branch", NODE: "node",
}

// AllCaches returns every known cache.
func AllCaches() []Cache { return []Cache{L1D, L1I, LL, DTLB, ITLB, BPU, NODE} }

// CacheOp is a cache operation.
type CacheOp uint64

// Cache operations.
const (
	Read     CacheOp = unix.PERF_COUNT_HW_CACHE_OP_READ
	Write    CacheOp = unix.PERF_COUNT_HW_CACHE_OP_WRITE
	Prefetch CacheOp = unix.PERF_COUNT_HW_CACHE_OP_PREFETCH
)

var cacheOpLabels = map[CacheOp]string{Read: "loads", Write: "stores", Prefetch: "prefetches"}

// AllCacheOps returns every known cache operation.
func AllCacheOps() []CacheOp { return []CacheOp{Read, Write, Prefetch} }

// CacheOpResult is the result of a cache operation.
type CacheOpResult uint64

// Cache operation results.
const (
	Access CacheOpResult = unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS
	Miss   CacheOpResult = unix.PERF_COUNT_HW_CACHE_RESULT_MISS
)

var cacheOpResultLabels = map[CacheOpResult]string{Access: "", Miss: "misses"}

// AllCacheOpResults returns every known cache operation result.
func AllCacheOpResults() []CacheOpResult { return []CacheOpResult{Access, Miss} }

// HardwareCacheCounter groups a cache, a cache operation, and an
// operation result, the three components of a PERF_TYPE_HW_CACHE config.
type HardwareCacheCounter struct {
	Cache  Cache
	Op     CacheOp
	Result CacheOpResult
}

func (hwcc HardwareCacheCounter) Label() string {
	label := cacheLabels[hwcc.Cache] + "-" + cacheOpLabels[hwcc.Op]
	if r := cacheOpResultLabels[hwcc.Result]; r != "" {
		label += "-" + r
	}
	return label
}

func (hwcc HardwareCacheCounter) MarshalAttr() *EventAttr {
	config := uint64(hwcc.Cache) | uint64(hwcc.Op<<8) | uint64(hwcc.Result<<16)
	return &EventAttr{Label: hwcc.Label(), Type: HardwareCacheEvent, Config: config}
}

// HardwareCacheCounters returns cache counters covering the cartesian
// product of the specified caches, operations and results.
func HardwareCacheCounters(caches []Cache, ops []CacheOp, results []CacheOpResult) []HardwareCacheCounter {
	counters := make([]HardwareCacheCounter, 0, len(caches)*len(ops)*len(results))
	for _, cache := range caches {
		for _, op := range ops {
			for _, result := range results {
				counters = append(counters, HardwareCacheCounter{cache, op, result})
			}
		}
	}
	return counters
}

// AllCacheCounters returns the full cartesian product of known caches,
// operations and results, as "perf list cache" prints them.
func AllCacheCounters() []HardwareCacheCounter {
	return HardwareCacheCounters(AllCaches(), AllCacheOps(), AllCacheOpResults())
}
