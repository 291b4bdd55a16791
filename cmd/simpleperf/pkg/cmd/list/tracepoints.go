// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package list

import (
	"os"
	"path/filepath"
)

// readTracepoints walks dir (normally
// /sys/kernel/debug/tracing/events) and returns every "category:event"
// pair it finds, the same two-level layout
// eventset.parseEvent/attr.NewTracepoint expect on the other end. A
// missing or unreadable tracing debugfs mount (no CAP_SYS_ADMIN, or a
// kernel with tracefs elsewhere) yields an empty list rather than an
// error: tracepoints are one of several event categories list prints,
// not the only one.
func readTracepoints(dir string) []string {
	categories, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, cat := range categories {
		if !cat.IsDir() {
			continue
		}
		events, err := os.ReadDir(filepath.Join(dir, cat.Name()))
		if err != nil {
			continue
		}
		for _, ev := range events {
			if !ev.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, cat.Name(), ev.Name(), "id")); err != nil {
				continue
			}
			out = append(out, cat.Name()+":"+ev.Name())
		}
	}
	return out
}
