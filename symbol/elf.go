// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"debug/elf"
	"errors"

	"github.com/ianlancetaylor/demangle"
	pkgerrors "github.com/pkg/errors"
)

// symbolFilter decides whether an ELF symbol belongs in a Dso's table,
// given its ELF type and whether its section is executable.
type symbolFilter func(typ elf.SymType, inTextSection bool) bool

// elfDefaultFilter keeps function symbols, plus unlabeled (STT_NOTYPE)
// symbols inside an executable section, matching the original's
// SymbolFilterForDso: some toolchains (notably ARM thumb) emit function
// entry points with no type at all.
func elfDefaultFilter(typ elf.SymType, inTextSection bool) bool {
	return typ == elf.STT_FUNC || (typ == elf.STT_NOTYPE && inTextSection)
}

// elfModuleFilter keeps only function symbols in an executable section,
// matching the original's SymbolFilterForKernelModule.
func elfModuleFilter(typ elf.SymType, inTextSection bool) bool {
	return typ == elf.STT_FUNC && inTextSection
}

// loadElfSymbols reads path's symbol table (falling back to the dynamic
// symbol table for stripped shared objects) and returns the symbols
// filter accepts, demangling C++ names if demangleNames is set.
func loadElfSymbols(path string, filter symbolFilter, demangleNames bool) ([]*Symbol, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "symbol: opening %s", path)
	}
	defer f.Close()

	textSections := make(map[int]bool)
	for i, sec := range f.Sections {
		if sec.Flags&elf.SHF_EXECINSTR != 0 {
			textSections[i] = true
		}
	}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, pkgerrors.Wrapf(err, "symbol: reading symtab of %s", path)
	}
	if len(syms) == 0 {
		syms, err = f.DynamicSymbols()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return nil, pkgerrors.Wrapf(err, "symbol: reading dynsym of %s", path)
		}
	}

	out := make([]*Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" || s.Size == 0 {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		if !filter(typ, textSections[int(s.Section)]) {
			continue
		}
		name := s.Name
		if demangleNames {
			name = demangle.Filter(name)
		}
		out = append(out, &Symbol{Name: name, Addr: s.Value, Len: s.Size})
	}
	return out, nil
}
