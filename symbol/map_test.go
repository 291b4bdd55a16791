// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import "testing"

func TestMapSetFind(t *testing.T) {
	var s mapSet
	s.insert(&MapEntry{StartAddr: 0x1000, Len: 0x1000})
	s.insert(&MapEntry{StartAddr: 0x3000, Len: 0x1000})

	if m := s.find(0x1500); m == nil || m.StartAddr != 0x1000 {
		t.Fatalf("find(0x1500) = %+v, want the 0x1000 map", m)
	}
	if m := s.find(0x2500); m != nil {
		t.Fatalf("find(0x2500) = %+v, want nil", m)
	}
	if m := s.find(0x3fff); m == nil || m.StartAddr != 0x3000 {
		t.Fatalf("find(0x3fff) = %+v, want the 0x3000 map", m)
	}
	if m := s.find(0x4000); m != nil {
		t.Fatalf("find(0x4000) = %+v, want nil (end-exclusive)", m)
	}
}

func TestMapSetInsertTrimsOverlap(t *testing.T) {
	// spec §8 "Map overlap": Mmap{0x1000,len=0x2000} then
	// Mmap{0x2000,len=0x1000} leaves [0x1000,0x2000) from the first map,
	// trimmed, and [0x2000,0x3000) from the second. Both survive.
	var s mapSet
	s.insert(&MapEntry{StartAddr: 0x1000, Len: 0x2000, Time: 1})
	s.insert(&MapEntry{StartAddr: 0x2000, Len: 0x1000, Time: 2})

	if len(s.entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 after overlap trim", len(s.entries))
	}
	if got, want := s.entries[0].StartAddr, uint64(0x1000); got != want {
		t.Fatalf("first entry starts at %#x, want %#x", got, want)
	}
	if got, want := s.entries[0].EndAddr(), uint64(0x2000); got != want {
		t.Fatalf("first entry ends at %#x, want %#x (trimmed)", got, want)
	}
	if got, want := s.entries[1].StartAddr, uint64(0x2000); got != want {
		t.Fatalf("second entry starts at %#x, want %#x", got, want)
	}
	if got, want := s.entries[1].EndAddr(), uint64(0x3000); got != want {
		t.Fatalf("second entry ends at %#x, want %#x", got, want)
	}
}

func TestMapSetInsertSplitsContainingMap(t *testing.T) {
	// A new map strictly inside an existing one splits the existing map
	// into a head and a tail fragment instead of evicting it outright.
	var s mapSet
	s.insert(&MapEntry{StartAddr: 0x1000, Len: 0x2000, PageOffset: 0x100, Time: 1})
	s.insert(&MapEntry{StartAddr: 0x1800, Len: 0x1000, Time: 2})

	if len(s.entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3 (head, middle, tail)", len(s.entries))
	}
	if got, want := s.entries[0].StartAddr, uint64(0x1000); got != want {
		t.Fatalf("head entry starts at %#x, want %#x", got, want)
	}
	if got, want := s.entries[0].EndAddr(), uint64(0x1800); got != want {
		t.Fatalf("head entry ends at %#x, want %#x", got, want)
	}
	if got, want := s.entries[1].StartAddr, uint64(0x1800); got != want {
		t.Fatalf("middle entry starts at %#x, want %#x", got, want)
	}
	if got, want := s.entries[2].StartAddr, uint64(0x2800); got != want {
		t.Fatalf("tail entry starts at %#x, want %#x", got, want)
	}
	if got, want := s.entries[2].EndAddr(), uint64(0x3000); got != want {
		t.Fatalf("tail entry ends at %#x, want %#x", got, want)
	}
	if got, want := s.entries[2].PageOffset, uint64(0x100+0x1800); got != want {
		t.Fatalf("tail entry page offset = %#x, want %#x", got, want)
	}
}

func TestMapSetInsertKeepsDisjointRegions(t *testing.T) {
	var s mapSet
	s.insert(&MapEntry{StartAddr: 0x2000, Len: 0x1000})
	s.insert(&MapEntry{StartAddr: 0x1000, Len: 0x1000})
	s.insert(&MapEntry{StartAddr: 0x3000, Len: 0x1000})

	if len(s.entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(s.entries))
	}
	for i := 0; i+1 < len(s.entries); i++ {
		if s.entries[i].StartAddr >= s.entries[i+1].StartAddr {
			t.Fatalf("entries not sorted: %+v", s.entries)
		}
	}
}
