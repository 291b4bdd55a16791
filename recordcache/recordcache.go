// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recordcache time-orders records arriving from one or more
// kernel ring buffers. Per-CPU buffers may be drained in an order that
// does not match global timestamp order; Cache buffers just enough
// records to restore order within a bounded skew, trading latency for
// correctness.
package recordcache

import (
	"container/heap"

	"github.com/simpleperf-go/simpleperf/record"
)

// TimestampFunc extracts the ordering timestamp from a record. Records
// with no defined timestamp (e.g. because the owning attr does not
// request Time in its sample format) should return 0; Cache with
// HasTimestamp false never calls it.
type TimestampFunc func(record.Record) (timestamp uint64, isSample bool)

// Cache buffers and time-orders records. The zero value is not usable;
// construct with New.
type Cache struct {
	timestampOf   TimestampFunc
	hasTimestamp  bool
	minCacheSize  int
	minTimeDiffNs uint64

	queue    entryHeap
	fifo     []record.Record
	seq      uint64
	maxTime  uint64
}

// New returns a Cache with the given parameters.
//
// minCacheSize is the hysteresis floor: Pop refuses to return a record
// while the cache holds fewer than minCacheSize entries, so that a late
// arrival still has a chance to sort ahead of what's already buffered.
//
// minTimeDiffNs is the watermark: Pop further refuses to return a
// record whose timestamp is within minTimeDiffNs of the highest
// timestamp seen so far, since a slower CPU's buffer may yet deliver
// something earlier.
//
// hasTimestamp, when false, turns the cache into plain passthrough FIFO:
// timestampOf is never called and order is arrival order.
func New(timestampOf TimestampFunc, hasTimestamp bool, minCacheSize int, minTimeDiffNs uint64) *Cache {
	c := &Cache{
		timestampOf:   timestampOf,
		hasTimestamp:  hasTimestamp,
		minCacheSize:  minCacheSize,
		minTimeDiffNs: minTimeDiffNs,
	}
	heap.Init(&c.queue)
	return c
}

type entry struct {
	r        record.Record
	time     uint64
	isSample bool
	seq      uint64
}

// Push adds r to the cache, in arrival order.
func (c *Cache) Push(r record.Record) {
	if !c.hasTimestamp {
		c.fifo = append(c.fifo, r)
		return
	}
	t, isSample := c.timestampOf(r)
	if t > c.maxTime {
		c.maxTime = t
	}
	heap.Push(&c.queue, entry{r: r, time: t, isSample: isSample, seq: c.seq})
	c.seq++
}

// Pop returns the next record in time order, and true, if one is ready
// to be released under the depth and watermark constraints. Otherwise
// it returns nil, false, and the caller should supply more input (or
// call Drain if no more input is coming).
func (c *Cache) Pop() (record.Record, bool) {
	if !c.hasTimestamp {
		if len(c.fifo) == 0 {
			return nil, false
		}
		r := c.fifo[0]
		c.fifo = c.fifo[1:]
		return r, true
	}
	if c.queue.Len() < c.minCacheSize {
		return nil, false
	}
	top := c.queue[0]
	if c.maxTime < c.minTimeDiffNs || top.time > c.maxTime-c.minTimeDiffNs {
		return nil, false
	}
	e := heap.Pop(&c.queue).(entry)
	return e.r, true
}

// Drain returns every record remaining in the cache, in time order,
// ignoring the depth and watermark constraints. Call Drain once input
// has ended (end of a recording file, or ring buffer shutdown).
func (c *Cache) Drain() []record.Record {
	if !c.hasTimestamp {
		out := c.fifo
		c.fifo = nil
		return out
	}
	out := make([]record.Record, 0, c.queue.Len())
	for c.queue.Len() > 0 {
		out = append(out, heap.Pop(&c.queue).(entry).r)
	}
	return out
}

// Len returns the number of records currently buffered.
func (c *Cache) Len() int {
	if !c.hasTimestamp {
		return len(c.fifo)
	}
	return c.queue.Len()
}

// entryHeap implements container/heap.Interface, ordering by lower
// timestamp first; at equal timestamps, a
// non-sample before a sample; otherwise arrival order.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.time != b.time {
		return a.time < b.time
	}
	if a.isSample != b.isSample {
		return !a.isSample // non-sample sorts first
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
