// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import "github.com/simpleperf-go/simpleperf/attr"

// Count is a single event's measurement, as carried in a Read record or
// decoded from an eventfile read(2).
type Count struct {
	Value       uint64
	TimeEnabled uint64 // nanoseconds
	TimeRunning uint64 // nanoseconds
	ID          uint64
}

// GroupCountEntry is one event's contribution to a GroupCount.
type GroupCountEntry struct {
	Value uint64
	ID    uint64
}

// GroupCount is a group's measurement, as carried in a ReadGroup record.
type GroupCount struct {
	TimeEnabled uint64
	TimeRunning uint64
	Counts      []GroupCountEntry
}

// DecodeCount decodes a single-event counter read(2) buffer, formatted
// according to a.CountFormat. Used by package eventfile to decode the
// result of reading a non-group EventFile's fd directly.
func DecodeCount(buf []byte, a *attr.EventAttr) Count {
	var c Count
	f := fields{b: buf}
	f.count(&c, a)
	return c
}

// DecodeGroupCount decodes a group counter read(2) buffer, formatted
// according to a.CountFormat.
func DecodeGroupCount(buf []byte, a *attr.EventAttr) GroupCount {
	var gc GroupCount
	f := fields{b: buf}
	f.groupCount(&gc, a)
	return gc
}
