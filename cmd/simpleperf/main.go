// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command simpleperf is the embedding harness for the sampling
// pipeline in the sibling packages: event selection/acquisition
// (eventset, eventfile, ring, reactor), record decoding and ordering
// (record, recordcache), thread/DSO state and aggregation (symbol,
// callchain, sampletree), and the PERFILE2 container format
// (perffile). See spec.md §6 for the subcommands this binary exposes.
package main

import "github.com/simpleperf-go/simpleperf/cmd/simpleperf/pkg/cmd"

func main() {
	cmd.Execute()
}
