// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/record"
)

// Reader reads back a PERFILE2 recording file written by Writer: the
// read side of the "consumed, bit-exact" half of component A's
// contract (spec §6). Report-time processing drives this type the way
// record time drives package eventset: decode a record, hand it to
// package symbol to update thread/DSO state, then to callchain or
// sampletree for aggregation.
type Reader struct {
	f      *os.File
	header fileHeader
	attrs  []AttrWithId
}

// Open reads filename's header and attr section. It does not read the
// data section; call Records or ForEachRecord for that.
func Open(filename string) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("perffile: open %s: %w", filename, err)
	}
	r := &Reader{f: f}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.readAttrs(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("perffile: %w", err)
	}
	if err := binary.Read(r.f, binary.LittleEndian, &r.header); err != nil {
		return fmt.Errorf("perffile: reading file header: %w", err)
	}
	if string(r.header.Magic[:]) != magic {
		return fmt.Errorf("perffile: %s: bad magic %q, not a PERFILE2 recording", r.f.Name(), r.header.Magic)
	}
	return nil
}

func (r *Reader) readAttrs() error {
	if r.header.AttrSize == 0 || r.header.Attrs.Size == 0 {
		return nil
	}
	n := int(r.header.Attrs.Size / r.header.AttrSize)
	r.attrs = make([]AttrWithId, n)
	for i := 0; i < n; i++ {
		off := int64(r.header.Attrs.Offset) + int64(i)*int64(r.header.AttrSize)
		if _, err := r.f.Seek(off, io.SeekStart); err != nil {
			return fmt.Errorf("perffile: %w", err)
		}
		var sys unix.PerfEventAttr
		if err := binary.Read(r.f, binary.LittleEndian, &sys); err != nil {
			return fmt.Errorf("perffile: reading attr %d: %w", i, err)
		}
		var ids SectionDesc
		if err := binary.Read(r.f, binary.LittleEndian, &ids); err != nil {
			return fmt.Errorf("perffile: reading attr %d ids section: %w", i, err)
		}
		idList, err := r.readIds(ids)
		if err != nil {
			return err
		}
		r.attrs[i] = AttrWithId{Attr: attr.FromSysAttr(&sys), Ids: idList}
	}
	return nil
}

func (r *Reader) readIds(desc SectionDesc) ([]uint64, error) {
	n := int(desc.Size / 8)
	if n == 0 {
		return nil, nil
	}
	ids := make([]uint64, n)
	pos, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("perffile: %w", err)
	}
	if _, err := r.f.Seek(int64(desc.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("perffile: %w", err)
	}
	if err := binary.Read(r.f, binary.LittleEndian, ids); err != nil {
		return nil, fmt.Errorf("perffile: reading ids: %w", err)
	}
	if _, err := r.f.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("perffile: %w", err)
	}
	return ids, nil
}

// Attrs returns every attr recorded in the file's attr section, paired
// with the kernel event ids that were opened against it.
func (r *Reader) Attrs() []AttrWithId { return r.attrs }

// Features lists which optional feature sections are present.
func (r *Reader) Features() []Feature { return r.header.featureList() }

// HasFeature reports whether f's section is present.
func (r *Reader) HasFeature(f Feature) bool { return r.header.hasFeature(f) }

// recordHeaderSize is sizeof(record.Header): a 32-bit type, a 16-bit
// misc field and a 16-bit size field, unpadded.
const recordHeaderSize = int(unsafe.Sizeof(record.Header{}))

// defaultAttr is the attr every data-section record is decoded
// against. A Set's AddGroup unions every selection's SampleFormat
// before Open (spec §4.E, "union_sample_type"), so any one selection's
// attr yields the same field layout for every record on the wire; this
// mirrors eventset.StartDraining's own choice of its ring-owning
// file's attr to decode an entire CPU's shared buffer.
func (r *Reader) defaultAttr() *attr.EventAttr {
	if len(r.attrs) == 0 {
		return &attr.EventAttr{}
	}
	return r.attrs[0].Attr
}

// ForEachRecord reads the data section front to back, decoding each
// record against defaultAttr, and calls fn with the result in file
// order. It stops and returns fn's first error.
func (r *Reader) ForEachRecord(fn func(record.Record) error) error {
	if _, err := r.f.Seek(int64(r.header.Data.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("perffile: %w", err)
	}
	a := r.defaultAttr()
	remaining := int64(r.header.Data.Size)
	var hdrBuf [8]byte
	for remaining > 0 {
		if _, err := io.ReadFull(r.f, hdrBuf[:recordHeaderSize]); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("perffile: reading record header: %w", err)
		}
		hdr := *(*record.Header)(unsafe.Pointer(&hdrBuf[0]))
		if int(hdr.Size) < recordHeaderSize {
			return fmt.Errorf("perffile: record header reports size %d, smaller than the header itself", hdr.Size)
		}
		payload := make([]byte, int(hdr.Size)-recordHeaderSize)
		if len(payload) > 0 {
			if _, err := io.ReadFull(r.f, payload); err != nil {
				return fmt.Errorf("perffile: reading record payload: %w", err)
			}
		}
		raw := record.Raw{Header: hdr, Data: payload}
		rec, err := record.Decode(&raw, a)
		if err != nil {
			return fmt.Errorf("perffile: decoding record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
		remaining -= int64(hdr.Size)
	}
	return nil
}

// Records reads and decodes every record in the data section.
func (r *Reader) Records() ([]record.Record, error) {
	var out []record.Record
	err := r.ForEachRecord(func(rec record.Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
