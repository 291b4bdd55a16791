// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package callchain merges per-sample call chains into a prefix tree,
// so a report can show one call graph instead of repeating the same
// ancestry under every leaf sample that shares it. Grounded on
// original_source/simpleperf/callchain.cpp, which this package's
// AddCallChain and SortByPeriod directly transliterate; the teacher
// repo has no tree-merge analogue to generalize from.
package callchain

import "sort"

// Entry is one frame a Node's Chain can hold. Package callchain never
// looks at anything but the name two frames are merged by, so it takes
// an interface rather than importing package sampletree's concrete
// sample type (which itself embeds a Root per leaf sample, and would
// otherwise import callchain right back).
type Entry interface {
	// ChainSymbolName identifies the frame for merge matching: two
	// frames merge when they report the same name.
	ChainSymbolName() string
}

func sameFrame(a, b Entry) bool { return a.ChainSymbolName() == b.ChainSymbolName() }

// Node is one node of the merged call chain tree: a run of frames
// shared by every chain that passed through it (Chain), the period
// attributed to samples that stopped exactly here (Period), and the
// period attributed to samples that continued into Children
// (ChildrenPeriod).
type Node struct {
	Chain          []Entry
	Period         uint64
	ChildrenPeriod uint64
	Children       []*Node
}

// Root is the merge point for every call chain recorded against one
// leaf sample (or, for a flat view with no per-sample grouping, every
// call chain in a report).
type Root struct {
	Children       []*Node
	ChildrenPeriod uint64
}

func matchSamples(a, b []Entry, bStart int) int {
	i, j := 0, bStart
	for i < len(a) && j < len(b) && sameFrame(a[i], b[j]) {
		i++
		j++
	}
	return i
}

func selectMatchingNode(nodes []*Node, frame Entry) *Node {
	for _, n := range nodes {
		if sameFrame(n.Chain[0], frame) {
			return n
		}
	}
	return nil
}

func allocateNode(chain []Entry, start int, period, childrenPeriod uint64) *Node {
	n := &Node{Period: period, ChildrenPeriod: childrenPeriod}
	n.Chain = append(n.Chain, chain[start:]...)
	return n
}

// splitNode breaks parent at parentLength frames into parent, whose
// Chain is truncated to the shared prefix, and a single new child
// carrying the remainder of the original chain together with whatever
// children parent already had.
func splitNode(parent *Node, parentLength int) {
	child := allocateNode(parent.Chain, parentLength, parent.Period, parent.ChildrenPeriod)
	child.Children = parent.Children
	parent.Period = 0
	parent.ChildrenPeriod = child.Period + child.ChildrenPeriod
	parent.Chain = parent.Chain[:parentLength]
	parent.Children = []*Node{child}
}

// AddCallChain merges chain into the tree, attributing period to the
// node it terminates at (splitting an existing node if chain diverges
// partway through it). chain must be non-empty, innermost frame first.
func (r *Root) AddCallChain(chain []Entry, period uint64) {
	r.ChildrenPeriod += period
	p := selectMatchingNode(r.Children, chain[0])
	if p == nil {
		r.Children = append(r.Children, allocateNode(chain, 0, period, 0))
		return
	}

	pos := 0
	for {
		matched := matchSamples(p.Chain, chain, pos)
		if matched == 0 {
			panic("callchain: matching node shares no frame with its selector")
		}
		pos += matched
		findChild := true
		if matched < len(p.Chain) {
			splitNode(p, matched)
			findChild = false
		}
		if pos == len(chain) {
			p.Period += period
			return
		}
		p.ChildrenPeriod += period
		if findChild {
			if np := selectMatchingNode(p.Children, chain[pos]); np != nil {
				p = np
				continue
			}
		}
		p.Children = append(p.Children, allocateNode(chain, pos, period, 0))
		return
	}
}

// SortByPeriod orders every node's Children, at every depth, by total
// period (own plus descendants') descending, so a report can walk the
// tree and print the hottest paths first.
func (r *Root) SortByPeriod() {
	queue := [][]*Node{r.Children}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		sort.SliceStable(v, func(i, j int) bool { return totalPeriod(v[i]) > totalPeriod(v[j]) })
		for _, n := range v {
			if len(n.Children) > 0 {
				queue = append(queue, n.Children)
			}
		}
	}
}

func totalPeriod(n *Node) uint64 { return n.Period + n.ChildrenPeriod }
