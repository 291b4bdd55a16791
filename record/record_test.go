// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/record"
)

func TestDecodeEncodeMmap(t *testing.T) {
	a := &attr.EventAttr{}

	want := &record.Mmap{
		Header:     record.Header{Type: record.TypeMmap},
		Pid:        100,
		Tid:        100,
		Addr:       0x400000,
		Len:        0x1000,
		PageOffset: 0,
		Filename:   "/bin/true",
	}
	encoded, err := record.Encode(want, a)
	if err != nil {
		t.Fatal(err)
	}
	want.Header.Size = uint16(len(encoded))

	got := decodeOne(t, encoded, a)
	mr, ok := got.(*record.Mmap)
	if !ok {
		t.Fatalf("got %T, want *record.Mmap", got)
	}
	if !reflect.DeepEqual(mr, want) {
		t.Fatalf("got %+v, want %+v", mr, want)
	}
}

func TestDecodeEncodeSample(t *testing.T) {
	a := &attr.EventAttr{
		SampleFormat: attr.SampleFormat{
			IP:        true,
			Tid:       true,
			Time:      true,
			Period:    true,
			Callchain: true,
		},
	}

	want := &record.Sample{Header: record.Header{Type: record.TypeSample}}
	want.IP = 0xdeadbeef
	want.Pid = 42
	want.Tid = 43
	want.Time = 123456789
	want.Period = 1000
	want.Callchain = []uint64{0x1, 0x2, 0x3}

	encoded, err := record.Encode(want, a)
	if err != nil {
		t.Fatal(err)
	}
	want.Header.Size = uint16(len(encoded))

	got := decodeOne(t, encoded, a)
	sr, ok := got.(*record.Sample)
	if !ok {
		t.Fatalf("got %T, want *record.Sample", got)
	}
	if !reflect.DeepEqual(sr, want) {
		t.Fatalf("got %+v, want %+v", sr, want)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	a := &attr.EventAttr{}
	raw := &record.Raw{
		Header: record.Header{Type: 0xffff, Size: 8},
	}
	got, err := record.Decode(raw, a)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*record.Unknown); !ok {
		t.Fatalf("got %T, want *record.Unknown", got)
	}
}

func TestDecodeTruncatedRecordErrors(t *testing.T) {
	a := &attr.EventAttr{}
	want := &record.Mmap{
		Header:   record.Header{Type: record.TypeMmap},
		Filename: "/bin/true",
	}
	encoded, err := record.Encode(want, a)
	if err != nil {
		t.Fatal(err)
	}
	// Declare the original, untruncated size but hand Decode a shorter
	// body than that implies.
	hdr := record.Header{Type: record.TypeMmap, Size: uint16(len(encoded))}
	raw := &record.Raw{Header: hdr, Data: encoded[8 : len(encoded)-4]}

	_, err = record.Decode(raw, a)
	if err == nil {
		t.Fatal("Decode of a truncated record succeeded, want a *record.FramingError")
	}
	if _, ok := err.(*record.FramingError); !ok {
		t.Fatalf("Decode error is %T, want *record.FramingError", err)
	}
}

func TestDecodeOversizedLengthPrefixErrors(t *testing.T) {
	a := &attr.EventAttr{SampleFormat: attr.SampleFormat{Callchain: true}}

	// The callchain length prefix claims 100 entries (800 bytes), but no
	// entries actually follow it.
	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, 100)
	raw := &record.Raw{
		Header: record.Header{Type: record.TypeSample, Size: uint16(8 + len(body))},
		Data:   body,
	}

	_, err := record.Decode(raw, a)
	if err == nil {
		t.Fatal("Decode with an oversized length prefix succeeded, want a *record.FramingError")
	}
	if _, ok := err.(*record.FramingError); !ok {
		t.Fatalf("Decode error is %T, want *record.FramingError", err)
	}
}

func TestDecodeTrailingGarbageErrors(t *testing.T) {
	a := &attr.EventAttr{}
	want := &record.Lost{Header: record.Header{Type: record.TypeLost}, LostID: 1, Lost: 2}
	encoded, err := record.Encode(want, a)
	if err != nil {
		t.Fatal(err)
	}
	// Append bytes beyond what Lost's fields consume, declaring them
	// part of the record.
	encoded = append(encoded, make([]byte, 8)...)
	hdr := record.Header{Type: record.TypeLost, Size: uint16(len(encoded))}
	raw := &record.Raw{Header: hdr, Data: encoded[8:]}

	_, err = record.Decode(raw, a)
	if err == nil {
		t.Fatal("Decode with trailing garbage succeeded, want a *record.FramingError")
	}
	if _, ok := err.(*record.FramingError); !ok {
		t.Fatalf("Decode error is %T, want *record.FramingError", err)
	}
}

func decodeOne(t *testing.T, buf []byte, a *attr.EventAttr) record.Record {
	t.Helper()
	raw := &record.Raw{
		Header: record.Header{
			Type: record.Type(le32(buf[0:4])),
			Misc: uint16(le16(buf[4:6])),
			Size: uint16(le16(buf[6:8])),
		},
		Data: buf[8:],
	}
	r, err := record.Decode(raw, a)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
