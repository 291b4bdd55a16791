// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// kallsymsPath is where the running kernel publishes its symbol table.
// A variable, not a constant, so tests can point it at a fixture.
var kallsymsPath = "/proc/kallsyms"

// loadKernelSymbols parses a /proc/kallsyms-formatted file, keeping only
// the function symbol types ('T', 't', 'W', 'w') the original's
// IsKernelFunctionSymbol accepts. Every symbol's length is left at
// zero; sortSymbols fixes each up to the gap before the next symbol
// once the whole table is sorted by address, and the caller extends
// the final, highest-addressed symbol to the top of the address space,
// since /proc/kallsyms never states a symbol's extent directly.
func loadKernelSymbols(path string) ([]*Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "symbol: opening %s", path)
	}
	defer f.Close()

	var syms []*Symbol
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 3 {
			continue
		}
		if !isKernelFunctionType(fields[1]) {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		syms = append(syms, &Symbol{Name: fields[2], Addr: addr})
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "symbol: reading %s", path)
	}
	return syms, nil
}

func isKernelFunctionType(typ string) bool {
	return typ == "T" || typ == "t" || typ == "W" || typ == "w"
}
