// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testasm provides small, deterministic workloads used to trigger
// tracepoints and counters in tests.
package testasm

// SumN computes the sum of integers from 1 to N. It is used as a trigger
// workload for counting tests: the number of loop iterations is exact and
// reproducible, which lets tests assert on exact event counts.
func SumN(N uint64) uint64 {
	var sum uint64
	for i := uint64(1); i <= N; i++ {
		sum += i
	}
	return sum
}
