// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import "github.com/simpleperf-go/simpleperf/record"

// CounterSample is one measurement returned by ReadCounters: a
// selection's count for one thread, either read live from a still-open
// EventFile (CPU >= 0) or accumulated from files closed at CPU offline
// (CPU == -1, spec §4.E "hotplugged_counters").
type CounterSample struct {
	Selection *EventSelection
	Tid       int
	CPU       int
	Count     record.Count
}

// ReadCounters snapshots every open EventFile's counter, plus every
// accumulated counter from files closed at CPU offline. Intended for
// stat-mode sets, where sampling is off and counts are read directly
// rather than derived from Sample records.
func (s *Set) ReadCounters() ([]CounterSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []CounterSample
	attrIndex := 0
	flat := s.flatSelections()
	for _, g := range s.groups {
		for si := range g.Selections {
			for _, inst := range g.instances {
				c, err := inst.files[si].ReadCounter()
				if err != nil {
					return nil, err
				}
				out = append(out, CounterSample{
					Selection: flat[attrIndex],
					Tid:       inst.tid,
					CPU:       inst.cpu,
					Count:     c,
				})
			}
			attrIndex++
		}
	}
	for k, c := range s.hotplugCounters {
		out = append(out, CounterSample{
			Selection: flat[k.attrIndex],
			Tid:       k.tid,
			CPU:       -1,
			Count:     c,
		})
	}
	return out, nil
}

// addHotplugCounter accumulates c into the running total recorded for
// (attrIndex, tid), merged across however many CPUs have gone offline
// carrying that selection's counter with them.
func (s *Set) addHotplugCounter(attrIndex, tid int, c record.Count) {
	if s.hotplugCounters == nil {
		s.hotplugCounters = make(map[hotplugKey]record.Count)
	}
	k := hotplugKey{attrIndex: attrIndex, tid: tid}
	prev := s.hotplugCounters[k]
	prev.Value += c.Value
	prev.TimeEnabled += c.TimeEnabled
	prev.TimeRunning += c.TimeRunning
	s.hotplugCounters[k] = prev
}
