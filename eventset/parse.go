// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import (
	"fmt"
	"strings"

	"github.com/simpleperf-go/simpleperf/attr"
)

// counterTable maps every well-known counter's "perf list" label back to
// the Counter that produces it, built once from the hardware, software
// and cache counter tables in package attr.
var counterTable = buildCounterTable()

func buildCounterTable() map[string]attr.Counter {
	table := make(map[string]attr.Counter)
	for _, c := range attr.AllHardwareCounters() {
		table[c.Label()] = c
	}
	for _, c := range attr.AllSoftwareCounters() {
		table[c.Label()] = c
	}
	for _, c := range attr.AllCacheCounters() {
		table[c.Label()] = c
	}
	return table
}

// parseEvent resolves one "event[:modifier...]" name into an EventAttr,
// along with the raw modifier suffix (for AddGroup's stat-mode check).
// A name with a single trailing colon segment made up only of 'u', 'k'
// and 'h' characters is treated as modifiers; otherwise the whole name
// (colons and all) is looked up as-is, which lets tracepoint names of
// the form "category:event" resolve without their colon being mistaken
// for a modifier separator.
func parseEvent(name string) (a *attr.EventAttr, modifiers string, err error) {
	base, modifiers := splitModifiers(name)

	a, err = resolveBase(base)
	if err != nil {
		return nil, "", err
	}
	if err := applyModifiers(a, modifiers); err != nil {
		return nil, "", err
	}
	a.Label = name
	return a, modifiers, nil
}

func splitModifiers(name string) (base, modifiers string) {
	i := strings.LastIndexByte(name, ':')
	if i < 0 {
		return name, ""
	}
	suffix := name[i+1:]
	if suffix == "" || !isModifierString(suffix) {
		return name, ""
	}
	return name[:i], suffix
}

func isModifierString(s string) bool {
	for _, c := range s {
		if c != 'u' && c != 'k' && c != 'h' {
			return false
		}
	}
	return true
}

// isClockCounter reports whether a measures cpu-clock or task-clock,
// the two software counters whose kernel implementation does not
// reliably honor exclude_user/exclude_kernel (spec §4.E).
func isClockCounter(a *attr.EventAttr) bool {
	if a.Type != attr.SoftwareEvent {
		return false
	}
	return attr.SoftwareCounter(a.Config) == attr.CPUClock || attr.SoftwareCounter(a.Config) == attr.TaskClock
}

// userSpaceSamplers names events backed by an in-process sampler rather
// than a kernel PMU: ARM CoreSight instruction tracing, decoded into
// synthetic samples entirely in user space.
var userSpaceSamplers = map[string]bool{
	"cs-etm": true,
}

func resolveBase(base string) (*attr.EventAttr, error) {
	if userSpaceSamplers[base] {
		return &attr.EventAttr{Label: base, Type: attr.UserSpaceSamplerEvent}, nil
	}
	if c, ok := counterTable[base]; ok {
		return c.MarshalAttr(), nil
	}
	if i := strings.IndexByte(base, ':'); i >= 0 {
		return attr.NewTracepoint(base[:i], base[i+1:])
	}
	return nil, fmt.Errorf("eventset: unknown event %q", base)
}

// applyModifiers narrows a's privilege exclusions to exactly the levels
// named in modifiers ("u" user, "k" kernel, "h" hypervisor). An empty
// modifiers string leaves a measuring at every level, the default.
func applyModifiers(a *attr.EventAttr, modifiers string) error {
	if modifiers == "" {
		return nil
	}
	a.Options.ExcludeUser = true
	a.Options.ExcludeKernel = true
	a.Options.ExcludeHypervisor = true
	for _, m := range modifiers {
		switch m {
		case 'u':
			a.Options.ExcludeUser = false
		case 'k':
			a.Options.ExcludeKernel = false
		case 'h':
			a.Options.ExcludeHypervisor = false
		default:
			return fmt.Errorf("eventset: invalid modifier %q in event %q", m, a.Label)
		}
	}
	return nil
}
