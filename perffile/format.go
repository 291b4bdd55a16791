// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perffile reads and writes the PERFILE2 record-file container:
// the on-disk layout simpleperf (and, compatibly, upstream Linux perf)
// use for perf.data, a FileHeader followed by an attr section, a data
// section of concatenated encoded records, and a feature section of
// optional auxiliary data (build IDs, command line, file/symbol tables,
// and simpleperf's own private feature kinds).
package perffile

// Feature identifies one optional section of a recording file's feature
// section.
type Feature int

// Recognized feature ids. Values below featSimpleperfStart come from
// upstream Linux perf's PERF_HEADER_* enumeration; values at or above it
// are simpleperf-private.
const (
	FeatReserved Feature = iota
	FeatTracingData
	FeatBuildID
	FeatHostname
	FeatOSRelease
	FeatVersion
	FeatArch
	FeatNrCpus
	FeatCPUDesc
	FeatCPUID
	FeatTotalMem
	FeatCmdline
	FeatEventDesc
	FeatCPUTopology
	FeatNumaTopology
	FeatBranchStack
	FeatPMUMappings
	FeatGroupDesc
	FeatAuxTrace
	featLastFeature

	featSimpleperfStart Feature = 128

	FeatFile             = featSimpleperfStart
	FeatMetaInfo         = featSimpleperfStart + 1
	FeatDebugUnwind      = featSimpleperfStart + 2
	FeatDebugUnwindFile  = featSimpleperfStart + 3
	FeatFile2            = featSimpleperfStart + 4
	FeatETMBranchList    = featSimpleperfStart + 5
	FeatInitMap          = featSimpleperfStart + 6

	// featMaxNum bounds the feature bitset: 256 bits, 32 bytes.
	featMaxNum = 256
)

var featureNames = map[Feature]string{
	FeatTracingData:  "tracing_data",
	FeatBuildID:      "build_id",
	FeatHostname:     "hostname",
	FeatOSRelease:    "osrelease",
	FeatVersion:      "version",
	FeatArch:         "arch",
	FeatNrCpus:       "nrcpus",
	FeatCPUDesc:      "cpudesc",
	FeatCPUID:        "cpuid",
	FeatTotalMem:     "total_mem",
	FeatCmdline:      "cmdline",
	FeatEventDesc:    "event_desc",
	FeatCPUTopology:  "cpu_topology",
	FeatNumaTopology: "numa_topology",
	FeatBranchStack:  "branch_stack",
	FeatPMUMappings:  "pmu_mappings",
	FeatGroupDesc:    "group_desc",
	FeatAuxTrace:     "auxtrace",
	FeatFile:         "file",
	FeatMetaInfo:     "meta_info",
	FeatDebugUnwind:  "debug_unwind",
	FeatDebugUnwindFile: "debug_unwind_file",
	FeatFile2:         "file2",
	FeatETMBranchList: "etm_branch_list",
	FeatInitMap:       "init_map",
}

// Name returns the feature's canonical lowercase name, or "unknown" for
// an id this package doesn't recognize.
func (f Feature) Name() string {
	if s, ok := featureNames[f]; ok {
		return s
	}
	return "unknown"
}

// magic is the 8-byte value every recognized recording file starts with.
const magic = "PERFILE2"

// SectionDesc locates a section of the file by byte offset and length.
type SectionDesc struct {
	Offset uint64
	Size   uint64
}

// fileHeaderSize is sizeof(FileHeader) in the on-disk layout: 8-byte
// magic, two uint64 sizes, three SectionDescs (16 bytes each), and the
// 256-bit feature bitset.
const fileHeaderSize = 8 + 8 + 8 + 3*16 + featMaxNum/8

// fileHeader is the wire layout of the first fileHeaderSize bytes of
// every recording file.
type fileHeader struct {
	Magic      [8]byte
	HeaderSize uint64
	AttrSize   uint64
	Attrs      SectionDesc
	Data       SectionDesc
	EventTypes SectionDesc
	Features   [featMaxNum / 8]byte
}

func (h *fileHeader) setFeature(f Feature) {
	h.Features[int(f)/8] |= 1 << uint(int(f)%8)
}

func (h *fileHeader) hasFeature(f Feature) bool {
	return h.Features[int(f)/8]&(1<<uint(int(f)%8)) != 0
}

func (h *fileHeader) featureList() []Feature {
	var out []Feature
	for i := 0; i < featMaxNum; i++ {
		if h.hasFeature(Feature(i)) {
			out = append(out, Feature(i))
		}
	}
	return out
}

// align64 rounds n up to the next multiple of 64, the padding stride
// record_file_format.h's variable-length feature strings use.
func align64(n int) int {
	return (n + 63) &^ 63
}
