// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbol resolves instruction pointers captured in samples back
// to a process's mapped binaries and the function names within them. It
// tracks per-thread memory maps, loads symbol tables from ELF files and
// /proc/kallsyms lazily, and keeps a synthetic mapping for addresses
// that resolve to nothing. Grounded on
// original_source/simpleperf/thread_tree.h/.cpp and dso.h/.cpp, which
// this package's types and method names mirror; the teacher repo has no
// symbolization layer to generalize from.
package symbol

import "sort"

// Symbol is one named address range within a Dso's symbol table.
type Symbol struct {
	Name string
	Addr uint64
	Len  uint64
}

// Unknown is returned by lookups that find no covering symbol.
var Unknown = &Symbol{Name: "unknown"}

// Contains reports whether offset falls within s's address range.
func (s *Symbol) Contains(offset uint64) bool {
	return offset >= s.Addr && offset < s.Addr+s.Len
}

// sortSymbols orders syms by address and fixes up zero-length entries
// (as produced by parsers that only know a symbol's start, such as
// /proc/kallsyms) to span the gap up to the next symbol. The last
// symbol's length is left however the caller set it; kallsyms parsing
// extends it to the top of the address space.
func sortSymbols(syms []*Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })
	for i := 0; i+1 < len(syms); i++ {
		if syms[i].Len == 0 {
			syms[i].Len = syms[i+1].Addr - syms[i].Addr
		}
	}
}

// findSymbol returns the symbol covering offset within the sorted table
// syms, or nil if none does. Equivalent to the original's
// std::set::upper_bound followed by a step back and a range check.
func findSymbol(syms []*Symbol, offset uint64) *Symbol {
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Addr > offset })
	if i == 0 {
		return nil
	}
	s := syms[i-1]
	if s.Contains(offset) {
		return s
	}
	return nil
}
