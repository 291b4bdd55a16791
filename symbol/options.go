// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbol

// Option configures a Tree at construction time, following the
// functional-options pattern used throughout this module (see
// eventset.Option).
type Option func(*Tree)

// WithSymFsDir prefixes dir onto every mapped file's path before
// opening it, matching DsoFactory::SetSymFsDir: a report can then
// resolve symbols from a copy of the recorded machine's root
// filesystem instead of the reporting machine's own.
func WithSymFsDir(dir string) Option {
	if dir != "" && dir[len(dir)-1] != '/' {
		dir += "/"
	}
	return func(t *Tree) { t.symFsDir = dir }
}

// WithDemangle sets whether user DSO C++ symbol names are demangled.
// Matches DsoFactory::demangle, which defaults to true.
func WithDemangle(demangle bool) Option {
	return func(t *Tree) { t.demangle = demangle }
}
