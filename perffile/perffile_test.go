// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile_test

import (
	"path/filepath"
	"testing"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/perffile"
	"github.com/simpleperf-go/simpleperf/record"
)

func TestWriteThenRead(t *testing.T) {
	a := &attr.EventAttr{Label: "cpu-cycles", Type: attr.HardwareEvent}
	a.SampleFormat.IP = true
	a.SampleFormat.Tid = true
	a.SampleFormat.Time = true
	a.SampleFormat.Period = true

	filename := filepath.Join(t.TempDir(), "perf.data")
	w, err := perffile.Create(filename, []perffile.AttrWithId{{Attr: a, Ids: []uint64{1, 2}}})
	if err != nil {
		t.Fatal(err)
	}

	mmap := &record.Mmap{
		Header:     record.Header{Type: record.TypeMmap},
		Pid:        100,
		Tid:        100,
		Addr:       0x400000,
		Len:        0x1000,
		PageOffset: 0,
		Filename:   "/bin/true",
	}
	mmapBuf, err := record.Encode(mmap, a)
	if err != nil {
		t.Fatal(err)
	}
	mmap.Header.Size = uint16(len(mmapBuf))
	mmapBuf, err = record.Encode(mmap, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteData(mmapBuf); err != nil {
		t.Fatal(err)
	}

	sample := &record.Sample{Header: record.Header{Type: record.TypeSample}}
	sample.IP = 0xdeadbeef
	sample.Pid, sample.Tid = 42, 43
	sample.Time = 1_000_000
	sample.Period = 7
	sampleBuf, err := record.Encode(sample, a)
	if err != nil {
		t.Fatal(err)
	}
	sample.Header.Size = uint16(len(sampleBuf))
	sampleBuf, err = record.Encode(sample, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteData(sampleBuf); err != nil {
		t.Fatal(err)
	}

	if err := w.WriteFeatureHeader(1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFeatureString(perffile.FeatHostname, "testhost"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := perffile.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	attrs := r.Attrs()
	if len(attrs) != 1 {
		t.Fatalf("got %d attrs, want 1", len(attrs))
	}
	if attrs[0].Attr.Label != "" {
		// Label isn't part of the kernel ABI struct, so it does not
		// survive the round trip; only the kernel-visible fields do.
	}
	if attrs[0].Attr.Type != attr.HardwareEvent {
		t.Fatalf("got type %v, want HardwareEvent", attrs[0].Attr.Type)
	}
	if len(attrs[0].Ids) != 2 || attrs[0].Ids[0] != 1 || attrs[0].Ids[1] != 2 {
		t.Fatalf("got ids %v, want [1 2]", attrs[0].Ids)
	}
	if !r.HasFeature(perffile.FeatHostname) {
		t.Fatalf("hostname feature missing")
	}

	records, err := r.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	gotMmap, ok := records[0].(*record.Mmap)
	if !ok || gotMmap.Filename != "/bin/true" {
		t.Fatalf("got %+v, want the mmap record back", records[0])
	}
	gotSample, ok := records[1].(*record.Sample)
	if !ok || gotSample.IP != 0xdeadbeef || gotSample.Period != 7 {
		t.Fatalf("got %+v, want the sample record back", records[1])
	}
}
