// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recordcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleperf-go/simpleperf/record"
	"github.com/simpleperf-go/simpleperf/recordcache"
)

// fakeRecord lets the test drive the cache with records that carry an
// explicit timestamp and sample-ness, without needing a real attr.
type fakeRecord struct {
	record.Record
	label    string
	time     uint64
	isSample bool
}

func timestampOf(r record.Record) (uint64, bool) {
	fr := r.(*fakeRecord)
	return fr.time, fr.isSample
}

func labels(t *testing.T, rs []record.Record) []string {
	t.Helper()
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.(*fakeRecord).label
	}
	return out
}

func TestWatermarkOrdering(t *testing.T) {
	c := recordcache.New(timestampOf, true, 2, 50)

	c.Push(&fakeRecord{label: "Mmap@100", time: 100, isSample: false})
	c.Push(&fakeRecord{label: "Sample@100", time: 100, isSample: true})
	c.Push(&fakeRecord{label: "Comm@100", time: 100, isSample: false})
	c.Push(&fakeRecord{label: "Sample@150", time: 150, isSample: true})

	var popped []record.Record
	for {
		r, ok := c.Pop()
		if !ok {
			break
		}
		popped = append(popped, r)
	}
	popped = append(popped, c.Drain()...)

	assert.Equal(t, []string{"Mmap@100", "Comm@100", "Sample@100", "Sample@150"}, labels(t, popped))
}

func TestPassthroughFIFOWithoutTimestamp(t *testing.T) {
	c := recordcache.New(nil, false, 2, 50)

	c.Push(&fakeRecord{label: "a"})
	c.Push(&fakeRecord{label: "b"})
	c.Push(&fakeRecord{label: "c"})

	require.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"a", "b", "c"}, labels(t, c.Drain()))
}

func TestPopWithholdsBelowMinCacheSize(t *testing.T) {
	c := recordcache.New(timestampOf, true, 3, 0)

	c.Push(&fakeRecord{label: "a", time: 1})
	c.Push(&fakeRecord{label: "b", time: 2})

	_, ok := c.Pop()
	assert.False(t, ok, "Pop should withhold below minCacheSize")

	c.Push(&fakeRecord{label: "c", time: 3})
	_, ok = c.Pop()
	assert.True(t, ok, "Pop should release once minCacheSize is reached")
}
