// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadKernelSymbols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kallsyms")
	content := "0000000000000000 T _text\n" +
		"0000000000001000 t do_something\n" +
		"0000000000002000 d some_data\n" +
		"0000000000003000 W weak_func\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	syms, err := loadKernelSymbols(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 3 {
		t.Fatalf("len(syms) = %d, want 3 (the 'd' entry should be dropped): %+v", len(syms), syms)
	}
	names := map[string]bool{}
	for _, s := range syms {
		names[s.Name] = true
	}
	for _, want := range []string{"_text", "do_something", "weak_func"} {
		if !names[want] {
			t.Fatalf("missing symbol %q in %+v", want, syms)
		}
	}
}

func TestDsoFindSymbolFromRunningTestBinary(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("ELF only makes sense on linux")
	}
	path, err := os.Executable()
	if err != nil {
		t.Skip("no executable path available")
	}

	d := newDso(path, KindElfFile, "", false)
	syms, loadErr := loadElfSymbols(path, elfDefaultFilter, false)
	if loadErr != nil {
		t.Skipf("could not read symbol table of test binary: %v", loadErr)
	}
	if len(syms) == 0 {
		t.Skip("test binary has no symbol table (stripped)")
	}
	sortSymbols(syms)
	d.symbols = syms
	d.loadOnce.Do(func() {})

	mid := syms[len(syms)/2]
	got := d.FindSymbol(mid.Addr)
	if got.Name != mid.Name {
		t.Fatalf("FindSymbol(%#x) = %q, want %q", mid.Addr, got.Name, mid.Name)
	}
}
