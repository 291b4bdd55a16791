// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package common holds the flag-parsing helpers shared by stat, record
// and report: comma-separated pid/tid/cpu lists and "-e" event-group
// arguments, the same shapes perf(1)/simpleperf's own command lines
// accept.
package common

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/simpleperf-go/simpleperf/eventset"
)

// ParseIntList splits a comma-separated list of integers (pids, tids,
// or cpu numbers). An empty string yields a nil slice and no error.
func ParseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q as an integer list", s)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseEventGroups turns a repeated "-e" flag's values into
// eventset.Set groups: each flag occurrence is one comma-separated
// event-name list, becoming one AddGroup call, matching how perf(1)
// and simpleperf read "-e a,b,c -e d" as two groups.
func ParseEventGroups(set *eventset.Set, events []string) error {
	if len(events) == 0 {
		return errors.New("at least one -e/--event is required")
	}
	for _, group := range events {
		names := strings.Split(group, ",")
		if err := set.AddGroup(names); err != nil {
			return errors.Wrapf(err, "adding event group %q", group)
		}
	}
	return nil
}

// BuildTarget resolves -p/-t/-a into an eventset.Target. With neither
// -p nor -t given, it falls back to the calling process: eventset.Set
// requires at least one thread (it has no kernel tid==-1 "any thread"
// system-wide mode to fall back to instead), so that is the one target
// -a alone can widen to every CPU for. -a itself only ever widens the
// CPU list; it does not by itself make -p/-t optional in any other
// sense.
func BuildTarget(pids, tids []int, allCPUs bool, cpus []int) eventset.Target {
	t := eventset.Target{Processes: pids, Threads: tids}
	if len(t.Processes) == 0 && len(t.Threads) == 0 {
		t.Threads = []int{os.Getpid()}
	}
	if allCPUs || len(cpus) == 0 {
		t.CPUs = []int{eventset.AllCPUs}
	} else {
		t.CPUs = cpus
	}
	return t
}
