// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import "sort"

// MapEntry is one mapped region of a thread's (or the kernel's) address
// space: a contiguous range backed by a Dso at a given file offset,
// installed at Time (the record that reported the mapping's time_data,
// used only to break ties between entries with identical start/len).
type MapEntry struct {
	StartAddr  uint64
	Len        uint64
	PageOffset uint64
	Time       uint64
	Dso        *Dso
	InKernel   bool
}

// EndAddr returns the address just past the mapping.
func (m *MapEntry) EndAddr() uint64 { return m.StartAddr + m.Len }

func (m *MapEntry) contains(addr uint64) bool {
	return addr >= m.StartAddr && addr < m.EndAddr()
}

// mapSet holds a thread's (or the kernel's) MapEntries sorted by
// StartAddr, with overlapping regions removed on insert. It is the Go
// equivalent of the original's std::set<MapEntry*, MapComparator>: a
// plain sorted slice plus binary search stands in for the ordered set,
// since this module's dependency pack carries no ordered-container
// library and a handful of maps per thread makes an O(n) insert
// negligible.
type mapSet struct {
	entries []*MapEntry
}

func (s *mapSet) less(a, b *MapEntry) bool {
	if a.StartAddr != b.StartAddr {
		return a.StartAddr < b.StartAddr
	}
	if a.Len != b.Len {
		return a.Len < b.Len
	}
	return a.Time < b.Time
}

// insert adds m, trimming or removing every existing entry m overlaps
// so m wins on its own range, the rest of an overlapped entry surviving
// on either side: a later mmap at an address already covered by an
// earlier one supersedes it there, exactly as the kernel's own address
// space does, but does not disturb the earlier mapping outside m's
// range.
func (s *mapSet) insert(m *MapEntry) {
	// Built into a fresh slice rather than s.entries[:0]: the split case
	// below can emit two survivors for one input, so writing in place
	// over the same backing array could clobber an entry this range
	// loop has not visited yet.
	kept := make([]*MapEntry, 0, len(s.entries)+1)
	for _, e := range s.entries {
		if e.EndAddr() <= m.StartAddr || e.StartAddr >= m.EndAddr() {
			kept = append(kept, e)
			continue
		}
		hasLeft := e.StartAddr < m.StartAddr
		hasRight := e.EndAddr() > m.EndAddr()
		switch {
		case hasLeft && hasRight:
			// m falls strictly inside e: e survives as two fragments,
			// one on either side of m's range.
			right := &MapEntry{
				StartAddr:  m.EndAddr(),
				Len:        e.EndAddr() - m.EndAddr(),
				PageOffset: e.PageOffset + (m.EndAddr() - e.StartAddr),
				Time:       e.Time,
				Dso:        e.Dso,
				InKernel:   e.InKernel,
			}
			e.Len = m.StartAddr - e.StartAddr
			kept = append(kept, e, right)
		case hasLeft:
			// e overlaps m's head: trim e's tail to end where m begins.
			e.Len = m.StartAddr - e.StartAddr
			kept = append(kept, e)
		case hasRight:
			// e overlaps m's tail: trim e's head to start where m ends,
			// advancing PageOffset by the trimmed length so e still
			// names the same file range for the addresses it keeps.
			trimmed := e.EndAddr() - m.EndAddr()
			e.PageOffset += e.Len - trimmed
			e.StartAddr = m.EndAddr()
			e.Len = trimmed
			kept = append(kept, e)
		default:
			// e falls entirely inside m: wholly superseded.
		}
	}
	s.entries = kept

	i := sort.Search(len(s.entries), func(i int) bool { return s.less(m, s.entries[i]) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = m
}

// find returns the entry covering addr, or nil.
func (s *mapSet) find(addr uint64) *MapEntry {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].StartAddr > addr })
	if i == 0 {
		return nil
	}
	if e := s.entries[i-1]; e.contains(addr) {
		return e
	}
	return nil
}
