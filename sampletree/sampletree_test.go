// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampletree_test

import (
	"testing"

	"github.com/simpleperf-go/simpleperf/sampletree"
	"github.com/simpleperf-go/simpleperf/symbol"
)

func newTestTree() (*symbol.Tree, *sampletree.Tree) {
	resolver := symbol.New()
	resolver.AddThread(100, 100, "app")
	resolver.AddThreadMap(100, 100, 0x1000, 0x1000, 0, 1, "/bin/app")
	return resolver, sampletree.New(resolver)
}

func TestAddSampleAccumulates(t *testing.T) {
	_, tree := newTestTree()

	tree.AddSample(100, 100, 0x1050, 1, 10, false)
	tree.AddSample(100, 100, 0x1050, 2, 20, false)

	if tree.TotalSamples() != 2 {
		t.Fatalf("TotalSamples() = %d, want 2", tree.TotalSamples())
	}
	if tree.TotalPeriod() != 30 {
		t.Fatalf("TotalPeriod() = %d, want 30", tree.TotalPeriod())
	}

	var seen int
	tree.VisitAllSamples(func(s *sampletree.Sample) {
		seen++
		if s.Period != 30 {
			t.Fatalf("s.Period = %d, want 30 (two samples at the same ip merged)", s.Period)
		}
		if s.SampleCount != 2 {
			t.Fatalf("s.SampleCount = %d, want 2", s.SampleCount)
		}
	})
	if seen != 1 {
		t.Fatalf("VisitAllSamples visited %d samples, want 1 (distinct ip merged)", seen)
	}
}

func TestAddSampleDistinctIPsDoNotMerge(t *testing.T) {
	_, tree := newTestTree()

	tree.AddSample(100, 100, 0x1010, 1, 10, false)
	tree.AddSample(100, 100, 0x1020, 1, 10, false)

	var seen int
	tree.VisitAllSamples(func(s *sampletree.Sample) { seen++ })
	if seen != 2 {
		t.Fatalf("VisitAllSamples visited %d samples, want 2", seen)
	}
}

func TestVisitAllSamplesSortedByPeriodDescending(t *testing.T) {
	_, tree := newTestTree()

	tree.AddSample(100, 100, 0x1010, 1, 5, false)
	tree.AddSample(100, 100, 0x1020, 1, 50, false)

	var periods []uint64
	tree.VisitAllSamples(func(s *sampletree.Sample) { periods = append(periods, s.Period) })
	if len(periods) != 2 || periods[0] != 50 || periods[1] != 5 {
		t.Fatalf("periods = %v, want [50 5]", periods)
	}
}

func TestAddCallChainSampleSkipsRecursion(t *testing.T) {
	_, tree := newTestTree()

	leaf := tree.AddSample(100, 100, 0x1010, 1, 10, false)
	recursive := tree.AddCallChainSample(100, 100, 0x1010, 1, 3, false, nil)

	chain := []*sampletree.Sample{recursive}
	again := tree.AddCallChainSample(100, 100, 0x1010, 1, 3, false, chain)
	if again != recursive {
		t.Fatal("expected the recursive call to return the same sample already in chain")
	}
	if recursive != leaf {
		t.Fatal("AddCallChainSample should resolve to the same (tid, ip) entry as AddSample")
	}
}

func TestInsertCallChainForSampleMergesIntoSampleTree(t *testing.T) {
	_, tree := newTestTree()

	leaf := tree.AddSample(100, 100, 0x1010, 1, 10, false)
	caller := tree.AddCallChainSample(100, 100, 0x1020, 1, 10, false, nil)

	tree.InsertCallChainForSample(leaf, []*sampletree.Sample{leaf, caller}, 10)

	if len(leaf.CallChain.Children) != 1 {
		t.Fatalf("len(leaf.CallChain.Children) = %d, want 1", len(leaf.CallChain.Children))
	}
}
