// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import "testing"

func TestSortSymbolsFixesUpZeroLength(t *testing.T) {
	syms := []*Symbol{
		{Name: "c", Addr: 0x300},
		{Name: "a", Addr: 0x100},
		{Name: "b", Addr: 0x200},
	}
	sortSymbols(syms)

	if syms[0].Name != "a" || syms[0].Len != 0x100 {
		t.Fatalf("syms[0] = %+v", syms[0])
	}
	if syms[1].Name != "b" || syms[1].Len != 0x100 {
		t.Fatalf("syms[1] = %+v", syms[1])
	}
	if syms[2].Name != "c" || syms[2].Len != 0 {
		t.Fatalf("syms[2] = %+v, want untouched Len", syms[2])
	}
}

func TestFindSymbol(t *testing.T) {
	syms := []*Symbol{
		{Name: "a", Addr: 0x100, Len: 0x100},
		{Name: "b", Addr: 0x200, Len: 0x100},
	}
	if s := findSymbol(syms, 0x150); s == nil || s.Name != "a" {
		t.Fatalf("findSymbol(0x150) = %v, want a", s)
	}
	if s := findSymbol(syms, 0x300); s != nil {
		t.Fatalf("findSymbol(0x300) = %v, want nil", s)
	}
	if s := findSymbol(syms, 0x50); s != nil {
		t.Fatalf("findSymbol(0x50) = %v, want nil (before first symbol)", s)
	}
}
