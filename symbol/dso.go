// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Kind distinguishes the kind of binary a Dso describes, mirroring
// record.DsoType so a Dso can be re-exported into a recording file's
// feature section without a lossy conversion.
type Kind int

// Known Dso kinds.
const (
	KindElfFile Kind = iota
	KindKernel
	KindKernelModule
	KindDexFile
)

// symbolCacheSize bounds the per-Dso lookup cache added over the
// original's plain binary search, amortizing repeated resolution of the
// same hot instruction pointers across many samples (maxgio92/utrace's
// symtable.ELFSymTab takes the same cache-or-scan shape, backed there
// by its own symcache package; golang-lru is this module's equivalent).
const symbolCacheSize = 4096

// Dso is one mapped binary: a kernel image, a kernel module, an ELF
// executable or shared object, or an Android dex file. Its symbol table
// is loaded lazily, the first time a lookup needs it, since most of a
// process's mapped libraries are never sampled.
type Dso struct {
	Path string
	Kind Kind

	loadOnce sync.Once
	loadErr  error
	symbols  []*Symbol
	cache    *lru.Cache

	symFsDir string
	demangle bool
}

func newDso(path string, kind Kind, symFsDir string, demangle bool) *Dso {
	cache, _ := lru.New(symbolCacheSize)
	return &Dso{Path: path, Kind: kind, symFsDir: symFsDir, demangle: demangle, cache: cache}
}

func (d *Dso) load() {
	switch d.Kind {
	case KindKernel:
		d.symbols, d.loadErr = loadKernelSymbols(kallsymsPath)
	case KindKernelModule:
		d.symbols, d.loadErr = loadElfSymbols(d.symFsDir+d.Path, elfModuleFilter, false)
	case KindDexFile:
		// Dex symbolization requires an APK/dex parser this module does
		// not have; leave the table empty so lookups fall through to
		// Unknown rather than erroring.
	default:
		d.symbols, d.loadErr = loadElfSymbols(d.symFsDir+d.Path, elfDefaultFilter, d.demangle)
	}
	if d.loadErr != nil {
		return
	}
	sortSymbols(d.symbols)
	if d.Kind == KindKernel && len(d.symbols) > 0 {
		last := d.symbols[len(d.symbols)-1]
		last.Len = math.MaxUint64 - last.Addr
	}
}

// FindSymbol returns the symbol covering offsetInDso, or Unknown if the
// table has none, the binary failed to load, or (for a kernel Dso) no
// /proc/kallsyms entry covers the address.
func (d *Dso) FindSymbol(offsetInDso uint64) *Symbol {
	if d.cache != nil {
		if v, ok := d.cache.Get(offsetInDso); ok {
			return v.(*Symbol)
		}
	}
	d.loadOnce.Do(d.load)

	sym := findSymbol(d.symbols, offsetInDso)
	if sym == nil {
		sym = Unknown
	}
	if d.cache != nil {
		d.cache.Add(offsetInDso, sym)
	}
	return sym
}
