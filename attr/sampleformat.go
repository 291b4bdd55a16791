// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attr

// SampleFormat is the selector mask: the bitfield choosing which optional
// fields accompany overflow packets (and, when Options.SampleIDAll is
// set, the subset carried in every other record's trailing SampleId
// block). Field order when decoding is fixed; see record.Decode.
type SampleFormat struct {
	Identifier      bool
	IP              bool
	Tid             bool
	Time            bool
	Addr            bool
	ID              bool
	StreamID        bool
	CPU             bool
	Period          bool
	Count           bool // PERF_SAMPLE_READ
	Callchain       bool
	Raw             bool
	BranchStack     bool
	UserRegisters   bool
	UserStack       bool
	Weight          bool
	DataSource      bool
	Transaction     bool
	IntrRegisters   bool
	PhysicalAddress bool
}

// marshal packs the SampleFormat into a uint64, in PERF_SAMPLE_* bit
// order, as required by perf_event_attr.sample_type.
func (sf SampleFormat) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		sf.IP,
		sf.Tid,
		sf.Time,
		sf.Addr,
		sf.Count,
		sf.Callchain,
		sf.ID,
		sf.CPU,
		sf.Period,
		sf.StreamID,
		sf.Raw,
		sf.BranchStack,
		sf.UserRegisters,
		sf.UserStack,
		sf.Weight,
		sf.DataSource,
		sf.Identifier,
		sf.Transaction,
		sf.IntrRegisters,
		sf.PhysicalAddress,
	})
}

// unmarshalSampleFormat is the inverse of SampleFormat.marshal, used by
// FromSysAttr to reconstruct an EventAttr read back from a recording file.
func unmarshalSampleFormat(mask uint64) SampleFormat {
	return SampleFormat{
		IP:              bit(mask, 0),
		Tid:             bit(mask, 1),
		Time:            bit(mask, 2),
		Addr:            bit(mask, 3),
		Count:           bit(mask, 4),
		Callchain:       bit(mask, 5),
		ID:              bit(mask, 6),
		CPU:             bit(mask, 7),
		Period:          bit(mask, 8),
		StreamID:        bit(mask, 9),
		Raw:             bit(mask, 10),
		BranchStack:     bit(mask, 11),
		UserRegisters:   bit(mask, 12),
		UserStack:       bit(mask, 13),
		Weight:          bit(mask, 14),
		DataSource:      bit(mask, 15),
		Identifier:      bit(mask, 16),
		Transaction:     bit(mask, 17),
		IntrRegisters:   bit(mask, 18),
		PhysicalAddress: bit(mask, 19),
	}
}

// Union returns the field-wise OR of sf and other. eventset.Set calls
// this across every selection's SampleFormat so that the record codec
// sees one uniform field layout for the whole set (spec §4.E,
// "union_sample_type").
func (sf SampleFormat) Union(other SampleFormat) SampleFormat {
	return SampleFormat{
		Identifier:      sf.Identifier || other.Identifier,
		IP:              sf.IP || other.IP,
		Tid:             sf.Tid || other.Tid,
		Time:            sf.Time || other.Time,
		Addr:            sf.Addr || other.Addr,
		ID:              sf.ID || other.ID,
		StreamID:        sf.StreamID || other.StreamID,
		CPU:             sf.CPU || other.CPU,
		Period:          sf.Period || other.Period,
		Count:           sf.Count || other.Count,
		Callchain:       sf.Callchain || other.Callchain,
		Raw:             sf.Raw || other.Raw,
		BranchStack:     sf.BranchStack || other.BranchStack,
		UserRegisters:   sf.UserRegisters || other.UserRegisters,
		UserStack:       sf.UserStack || other.UserStack,
		Weight:          sf.Weight || other.Weight,
		DataSource:      sf.DataSource || other.DataSource,
		Transaction:     sf.Transaction || other.Transaction,
		IntrRegisters:   sf.IntrRegisters || other.IntrRegisters,
		PhysicalAddress: sf.PhysicalAddress || other.PhysicalAddress,
	}
}

// BranchSampleFormat specifies what branches to include in the branch
// record when SampleFormat.BranchStack is set.
type BranchSampleFormat struct {
	User    bool
	Kernel  bool
	Hv      bool
	Any     bool
	AnyCall bool
	AnyRet  bool
	IndCall bool
	AbortTx bool
	InTx    bool
	NoTx    bool
	Cond    bool
}

func (bf BranchSampleFormat) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		bf.User,
		bf.Kernel,
		bf.Hv,
		bf.Any,
		bf.AnyCall,
		bf.AnyRet,
		bf.IndCall,
		bf.AbortTx,
		bf.InTx,
		bf.NoTx,
		bf.Cond,
	})
}

// unmarshalBranchSampleFormat is the inverse of BranchSampleFormat.marshal.
func unmarshalBranchSampleFormat(mask uint64) BranchSampleFormat {
	return BranchSampleFormat{
		User:    bit(mask, 0),
		Kernel:  bit(mask, 1),
		Hv:      bit(mask, 2),
		Any:     bit(mask, 3),
		AnyCall: bit(mask, 4),
		AnyRet:  bit(mask, 5),
		IndCall: bit(mask, 6),
		AbortTx: bit(mask, 7),
		InTx:    bit(mask, 8),
		NoTx:    bit(mask, 9),
		Cond:    bit(mask, 10),
	}
}

// Skid is the requested precision for PreciseIP: how many instructions
// may separate the event of interest from the kernel's ability to stop
// and record it.
type Skid uint8

// Skid constraint levels, from PERF_EVENT_ATTR's precise_ip field.
const (
	SkidArbitrary   Skid = 0 // There may be arbitrary skid.
	SkidConstant    Skid = 1 // Requested to have constant skid.
	SkidRequestZero Skid = 2 // Requested to have 0 skid.
	SkidZero        Skid = 3 // Must have 0 skid.
)
