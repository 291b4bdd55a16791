// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/simpleperf-go/simpleperf/attr"
	"github.com/simpleperf-go/simpleperf/record"
)

var fileAttrSize = int(unsafe.Sizeof(unix.PerfEventAttr{})) + 16

// AttrWithId pairs an attr with the kernel-assigned event ids of every
// EventFile opened against it, the attr section's unit of storage.
type AttrWithId struct {
	Attr *attr.EventAttr
	Ids  []uint64
}

// WriterOption configures a Writer at creation time.
type WriterOption func(*Writer)

// WithFeatureBudget reserves room in the feature header for n features,
// overriding the featureCount later passed to WriteFeatureHeader.
func WithFeatureBudget(n int) WriterOption {
	return func(w *Writer) { w.featureBudget = n }
}

// Writer writes a PERFILE2 recording file: an attr section (written once,
// up front), a data section (appended to with WriteData as records are
// produced), and a feature section (written after recording stops, since
// only then is information like the hit module list available).
type Writer struct {
	f        *os.File
	filename string

	attrSectionOffset uint64
	attrSectionSize   uint64
	dataSectionOffset uint64
	dataSectionSize   uint64

	featureBudget       int
	featureCount        int
	currentFeatureIndex int
	features            []Feature
}

// Create opens filename for writing (truncating any existing file) and
// writes its attr section. attrs must be non-empty.
func Create(filename string, attrs []AttrWithId, opts ...WriterOption) (*Writer, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("perffile: create %s: no attrs given", filename)
	}
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("perffile: create %s: %w", filename, err)
	}
	w := &Writer{f: f, filename: filename}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.writeAttrSection(attrs); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeAttrSection(attrs []AttrWithId) error {
	if _, err := w.f.Seek(fileHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}

	idSections := make([]SectionDesc, len(attrs))
	for i, a := range attrs {
		offset, err := w.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("perffile: %s: %w", w.filename, err)
		}
		if err := binary.Write(w.f, binary.LittleEndian, a.Ids); err != nil {
			return fmt.Errorf("perffile: %s: writing ids: %w", w.filename, err)
		}
		idSections[i] = SectionDesc{Offset: uint64(offset), Size: uint64(len(a.Ids)) * 8}
	}

	attrSectionOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	for i, a := range attrs {
		if err := binary.Write(w.f, binary.LittleEndian, a.Attr.SysAttr()); err != nil {
			return fmt.Errorf("perffile: %s: writing attr: %w", w.filename, err)
		}
		if err := binary.Write(w.f, binary.LittleEndian, idSections[i]); err != nil {
			return fmt.Errorf("perffile: %s: writing attr ids section: %w", w.filename, err)
		}
	}

	dataSectionOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}

	w.attrSectionOffset = uint64(attrSectionOffset)
	w.attrSectionSize = uint64(len(attrs) * fileAttrSize)
	w.dataSectionOffset = uint64(dataSectionOffset)
	return nil
}

// WriteData appends buf to the data section.
func (w *Writer) WriteData(buf []byte) error {
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("perffile: %s: writing data: %w", w.filename, err)
	}
	w.dataSectionSize += uint64(len(buf))
	return nil
}

func (w *Writer) seekEnd() (uint64, error) {
	offset, err := w.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	return uint64(offset), nil
}

// WriteFeatureHeader reserves space for featureCount feature section
// descriptors. Call once, after the last WriteData, before any
// WriteXxxFeature call.
func (w *Writer) WriteFeatureHeader(featureCount int) error {
	if w.featureBudget > 0 {
		featureCount = w.featureBudget
	}
	w.featureCount = featureCount
	w.currentFeatureIndex = 0
	if _, err := w.f.Seek(int64(w.dataSectionOffset+w.dataSectionSize), io.SeekStart); err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	zero := make([]byte, featureCount*16)
	if _, err := w.f.Write(zero); err != nil {
		return fmt.Errorf("perffile: %s: writing feature header: %w", w.filename, err)
	}
	return nil
}

func (w *Writer) beginFeature() (uint64, error) {
	if w.currentFeatureIndex >= w.featureCount {
		return 0, fmt.Errorf("perffile: %s: more features written than reserved by WriteFeatureHeader", w.filename)
	}
	return w.seekEnd()
}

func (w *Writer) endFeature(feat Feature, startOffset uint64) error {
	endOffset, err := w.seekEnd()
	if err != nil {
		return err
	}
	desc := SectionDesc{Offset: startOffset, Size: endOffset - startOffset}
	descOffset := int64(w.dataSectionOffset+w.dataSectionSize) + int64(w.currentFeatureIndex)*16
	if _, err := w.f.Seek(descOffset, io.SeekStart); err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, desc); err != nil {
		return fmt.Errorf("perffile: %s: writing feature descriptor: %w", w.filename, err)
	}
	w.currentFeatureIndex++
	w.features = append(w.features, feat)
	return nil
}

// WriteBuildIdFeature writes the FEAT_BUILD_ID feature, one encoded
// BuildId record per entry.
func (w *Writer) WriteBuildIdFeature(records []*record.BuildId, a *attr.EventAttr) error {
	start, err := w.beginFeature()
	if err != nil {
		return err
	}
	for _, r := range records {
		buf, err := record.Encode(r, a)
		if err != nil {
			return fmt.Errorf("perffile: %s: encoding build id record: %w", w.filename, err)
		}
		if _, err := w.f.Write(buf); err != nil {
			return fmt.Errorf("perffile: %s: writing build id feature: %w", w.filename, err)
		}
	}
	return w.endFeature(FeatBuildID, start)
}

// WriteFeatureString writes feat's payload as a single length-prefixed,
// NUL-terminated, 64-byte-aligned string, the layout FEAT_HOSTNAME,
// FEAT_OSRELEASE, FEAT_VERSION, FEAT_ARCH and similar single-string
// features share.
func (w *Writer) WriteFeatureString(feat Feature, s string) error {
	start, err := w.beginFeature()
	if err != nil {
		return err
	}
	if err := writePaddedString(w.f, s); err != nil {
		return fmt.Errorf("perffile: %s: writing feature string: %w", w.filename, err)
	}
	return w.endFeature(feat, start)
}

func writePaddedString(w io.Writer, s string) error {
	length := uint32(align64(len(s) + 1))
	if err := binary.Write(w, binary.LittleEndian, length); err != nil {
		return err
	}
	buf := make([]byte, length)
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}

// WriteCmdlineFeature writes the FEAT_CMDLINE feature: an argument count
// followed by each argument as a length-prefixed padded string.
func (w *Writer) WriteCmdlineFeature(cmdline []string) error {
	start, err := w.beginFeature()
	if err != nil {
		return err
	}
	if err := binary.Write(w.f, binary.LittleEndian, uint32(len(cmdline))); err != nil {
		return fmt.Errorf("perffile: %s: writing cmdline feature: %w", w.filename, err)
	}
	for _, arg := range cmdline {
		if err := writePaddedString(w.f, arg); err != nil {
			return fmt.Errorf("perffile: %s: writing cmdline feature: %w", w.filename, err)
		}
	}
	return w.endFeature(FeatCmdline, start)
}

// FileSymbol is one entry of a FileFeatureEntry's symbol table.
type FileSymbol struct {
	StartVaddr uint64
	Len        uint32
	Name       string
}

// FileFeatureEntry describes one mapped binary for the FEAT_FILE feature:
// its path, kind, and (for a binary that was actually sampled) its
// resolved symbol table.
type FileFeatureEntry struct {
	Path string
	Type record.DsoType
	MinVaddr uint64
	Symbols  []FileSymbol

	// DexFileOffsets applies only when Type == record.DsoDexFile.
	DexFileOffsets []uint64
	// FileOffsetOfMinVaddr applies only when Type == record.DsoElfFile.
	FileOffsetOfMinVaddr uint64
	// MemoryOffsetOfMinVaddr applies only when Type == record.DsoKernelModule.
	MemoryOffsetOfMinVaddr uint64
}

// WriteFileFeature writes the FEAT_FILE feature: a size-prefixed entry
// per mapped binary, record_file_format.h's file_struct layout.
func (w *Writer) WriteFileFeature(entries []FileFeatureEntry) error {
	start, err := w.beginFeature()
	if err != nil {
		return err
	}
	for _, e := range entries {
		var body bytes.Buffer
		body.WriteString(e.Path)
		body.WriteByte(0)
		binary.Write(&body, binary.LittleEndian, uint32(e.Type))
		binary.Write(&body, binary.LittleEndian, e.MinVaddr)
		binary.Write(&body, binary.LittleEndian, uint32(len(e.Symbols)))
		for _, s := range e.Symbols {
			binary.Write(&body, binary.LittleEndian, s.StartVaddr)
			binary.Write(&body, binary.LittleEndian, s.Len)
			body.WriteString(s.Name)
			body.WriteByte(0)
		}
		switch e.Type {
		case record.DsoDexFile:
			binary.Write(&body, binary.LittleEndian, uint32(len(e.DexFileOffsets)))
			binary.Write(&body, binary.LittleEndian, e.DexFileOffsets)
		case record.DsoElfFile:
			binary.Write(&body, binary.LittleEndian, e.FileOffsetOfMinVaddr)
		case record.DsoKernelModule:
			binary.Write(&body, binary.LittleEndian, e.MemoryOffsetOfMinVaddr)
		}
		if err := binary.Write(w.f, binary.LittleEndian, uint32(body.Len())); err != nil {
			return fmt.Errorf("perffile: %s: writing file feature: %w", w.filename, err)
		}
		if _, err := w.f.Write(body.Bytes()); err != nil {
			return fmt.Errorf("perffile: %s: writing file feature: %w", w.filename, err)
		}
	}
	return w.endFeature(FeatFile, start)
}

// WriteMetaInfoFeature writes the FEAT_META_INFO feature: a flat list of
// NUL-terminated key/value pairs, in the order given by keys (a slice so
// callers control field order, e.g. always emitting "simpleperf_version"
// first).
func (w *Writer) WriteMetaInfoFeature(keys []string, info map[string]string) error {
	start, err := w.beginFeature()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := w.f.Write(append([]byte(k), 0)); err != nil {
			return fmt.Errorf("perffile: %s: writing meta_info feature: %w", w.filename, err)
		}
		if _, err := w.f.Write(append([]byte(info[k]), 0)); err != nil {
			return fmt.Errorf("perffile: %s: writing meta_info feature: %w", w.filename, err)
		}
	}
	return w.endFeature(FeatMetaInfo, start)
}

// Close finalizes the file header (which needs section sizes only known
// after the data and feature sections have been written) and closes the
// underlying file. Close must be called exactly once; a Writer that is
// abandoned without calling Close leaves a file with a zeroed header.
func (w *Writer) Close() error {
	var hdr fileHeader
	copy(hdr.Magic[:], magic)
	hdr.HeaderSize = fileHeaderSize
	hdr.AttrSize = uint64(fileAttrSize)
	hdr.Attrs = SectionDesc{Offset: w.attrSectionOffset, Size: w.attrSectionSize}
	hdr.Data = SectionDesc{Offset: w.dataSectionOffset, Size: w.dataSectionSize}
	for _, f := range w.features {
		hdr.setFeature(f)
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, &hdr); err != nil {
		w.f.Close()
		return fmt.Errorf("perffile: %s: writing file header: %w", w.filename, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("perffile: %s: %w", w.filename, err)
	}
	return nil
}
