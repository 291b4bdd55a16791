// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import (
	"github.com/simpleperf-go/simpleperf/reactor"
	"github.com/simpleperf-go/simpleperf/record"
)

// StartHotplug registers a periodic task on loop that recomputes the
// online CPU set every check interval (see WithCheckInterval) and
// reacts to changes (spec §4.E, "Hotplug"). It requires StartDraining
// (sampling mode) or Open (stat mode) to have already run. callback
// receives decoded records the same way StartDraining's does, plus an
// EventId record whenever new files are opened on a newly onlined CPU.
func (s *Set) StartHotplug(loop *reactor.Loop, callback func(cpu int, rec record.Record, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkInterval <= 0 {
		return nil
	}
	if s.loop == nil {
		s.loop = loop
	}
	reg, err := loop.AddPeriodicEvent(s.checkInterval, func() bool {
		s.reconcileCPUs(callback)
		return true
	})
	if err != nil {
		return err
	}
	s.hotplugReg = reg
	return nil
}

func (s *Set) monitored(cpu int) bool {
	if s.monitoredCPUs == nil {
		return true
	}
	return s.monitoredCPUs[cpu]
}

func (s *Set) reconcileCPUs(callback func(cpu int, rec record.Record, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	online, err := onlineCPUs()
	if err != nil {
		s.logWarn().Err(err).Msg("eventset: hotplug: failed to read online cpus")
		return
	}
	onlineSet := make(map[int]bool, len(online))
	for _, cpu := range online {
		onlineSet[cpu] = true
	}
	prevSet := make(map[int]bool, len(s.cpus))
	for _, cpu := range s.cpus {
		prevSet[cpu] = true
	}

	for _, cpu := range s.cpus {
		if !s.monitored(cpu) || onlineSet[cpu] {
			continue
		}
		s.handleOffline(cpu)
	}
	for _, cpu := range online {
		if !s.monitored(cpu) || prevSet[cpu] {
			continue
		}
		s.handleOnline(cpu, callback)
	}
	s.cpus = online
}

// handleOffline closes every instance on cpu, draining or snapshotting
// each selection's counter first depending on mode.
func (s *Set) handleOffline(cpu int) {
	for _, g := range s.groups {
		attrBase := s.attrIndexOf(g)
		kept := g.instances[:0]
		for _, inst := range g.instances {
			if inst.cpu != cpu {
				kept = append(kept, inst)
				continue
			}
			for si, f := range inst.files {
				if s.statMode {
					if c, err := f.ReadCounter(); err == nil {
						s.addHotplugCounter(attrBase+si, inst.tid, c)
					} else {
						s.logWarn().Err(err).Int("cpu", cpu).Msg("eventset: hotplug offline: failed to snapshot counter")
					}
				} else {
					f.Drain()
					f.StopPolling()
				}
				f.Close()
			}
		}
		g.instances = kept
	}
	delete(s.ringOwner, cpu)
}

// attrIndexOf returns the flattened attr index of g's first selection.
func (s *Set) attrIndexOf(g *Group) int {
	base := 0
	for _, other := range s.groups {
		if other == g {
			return base
		}
		base += len(other.Selections)
	}
	return base
}

// handleOnline reopens every group for every target tid on the newly
// onlined cpu, with enable-on-exec turned off (the targets already
// exec'd, so it is enabled explicitly instead), and emits a fresh
// EventId record for the new files.
func (s *Set) handleOnline(cpu int, callback func(cpu int, rec record.Record, err error)) {
	tids, err := s.resolveThreads()
	if err != nil {
		s.logWarn().Err(err).Msg("eventset: hotplug online: failed to resolve targets")
		return
	}

	for _, g := range s.groups {
		for _, tid := range tids {
			inst, err := s.openOnlineInstance(g, tid, cpu)
			if err != nil {
				s.logWarn().Err(err).Int("cpu", cpu).Int("tid", tid).Msg("eventset: hotplug online: reopen failed")
				continue
			}
			g.instances = append(g.instances, inst)
			if err := inst.files[0].Enable(); err != nil {
				s.logWarn().Err(err).Int("cpu", cpu).Msg("eventset: hotplug online: enable failed")
			}
		}
	}

	// Register polling once per cpu, after every group/tid has opened its
	// instance: attachBuffer sets s.ringOwner[cpu] on the first file opened
	// for this cpu, so registering inside the loop above would hand the
	// reactor one source per (group, tid) instead of one per ring.
	if !s.statMode && s.loop != nil {
		if owner, ok := s.ringOwner[cpu]; ok {
			cpu := cpu
			if err := owner.StartPolling(s.loop, func(raws []record.Raw) bool {
				for i := range raws {
					rec, err := record.Decode(&raws[i], owner.Attr())
					callback(cpu, rec, err)
				}
				return true
			}); err != nil {
				s.logWarn().Err(err).Int("cpu", cpu).Msg("eventset: hotplug online: poll registration failed")
			}
		}
	}

	if idRec, err := s.eventIdRecord(); err == nil {
		callback(cpu, idRec, nil)
	}
}

func (s *Set) openOnlineInstance(g *Group, tid, cpu int) (*groupInstance, error) {
	originals := make([]bool, len(g.Selections))
	for i, sel := range g.Selections {
		originals[i] = sel.Attr.Options.EnableOnExec
		sel.Attr.Options.EnableOnExec = false
		sel.Attr.Options.Disabled = false
	}
	inst, err := s.openInstance(g, tid, cpu)
	for i, sel := range g.Selections {
		sel.Attr.Options.EnableOnExec = originals[i]
	}
	return inst, err
}
