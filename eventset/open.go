// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import (
	"fmt"

	"github.com/simpleperf-go/simpleperf/eventfile"
	"github.com/simpleperf-go/simpleperf/reactor"
	"github.com/simpleperf-go/simpleperf/record"
)

// Open resolves the configured Target and opens every Group for every
// (thread, cpu) pair. Opening a (group, tid, cpu) slot is all-or-
// nothing: if any selection in the group fails to open on that slot,
// the partial files are closed and the slot is skipped. A (group, tid)
// is successful as long as at least one cpu opened; otherwise Open
// fails and everything opened so far is closed (spec §4.E).
func (s *Set) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("eventset: already open")
	}
	if len(s.groups) == 0 {
		return fmt.Errorf("eventset: no groups added")
	}

	tids, err := s.resolveThreads()
	if err != nil {
		return err
	}
	cpus, err := s.resolveCPUs()
	if err != nil {
		return err
	}
	s.cpus = cpus

	for gi, g := range s.groups {
		for _, tid := range tids {
			opened := 0
			for _, cpu := range cpus {
				inst, err := s.openInstance(g, tid, cpu)
				if err != nil {
					s.logWarn().Err(err).Int("cpu", cpu).Int("tid", tid).Msg("eventset: slot failed to open")
					continue
				}
				g.instances = append(g.instances, inst)
				opened++
			}
			if opened == 0 {
				s.closeAllLocked()
				return fmt.Errorf("eventset: group %d: tid %d opened on no cpu", gi, tid)
			}
		}
	}
	s.opened = true
	return nil
}

// openInstance opens one (tid, cpu) instance of g: the group leader
// first with no group leader of its own, then the remaining selections
// as its siblings.
func (s *Set) openInstance(g *Group, tid, cpu int) (*groupInstance, error) {
	files := make([]*eventfile.EventFile, 0, len(g.Selections))
	rollback := func() {
		for _, f := range files {
			f.Close()
		}
	}

	var leader *eventfile.EventFile
	for i, sel := range g.Selections {
		var groupLeader *eventfile.EventFile
		if i > 0 {
			groupLeader = leader
		}
		f, err := eventfile.Open(sel.Attr, tid, cpu, groupLeader, 0)
		if err != nil {
			rollback()
			return nil, err
		}
		if i == 0 {
			leader = f
		}
		files = append(files, f)
	}

	if !s.statMode {
		if err := s.attachBuffer(files, cpu); err != nil {
			rollback()
			return nil, err
		}
	}

	return &groupInstance{tid: tid, cpu: cpu, files: files}, nil
}

// attachBuffer routes files' sampled output into cpu's shared ring
// buffer, mapping a fresh one if this is the first file opened on cpu
// (spec §4.E, "one buffer per CPU").
func (s *Set) attachBuffer(files []*eventfile.EventFile, cpu int) error {
	owner, ok := s.ringOwner[cpu]
	if !ok {
		if err := files[0].CreateMappedBuffer(s.maxPages, s.minPages); err != nil {
			return err
		}
		owner = files[0]
		s.ringOwner[cpu] = owner
		files = files[1:]
	}
	for _, f := range files {
		if f == owner {
			continue
		}
		if err := f.ShareBuffer(owner); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) closeAllLocked() {
	if s.hotplugReg != nil {
		s.hotplugReg.Cancel()
		s.hotplugReg = nil
	}
	for _, g := range s.groups {
		for _, inst := range g.instances {
			for _, f := range inst.files {
				f.Close()
			}
		}
		g.instances = nil
	}
	s.ringOwner = make(map[int]*eventfile.EventFile)
	s.opened = false
}

// Close stops hotplug reconciliation and draining, and closes every
// open EventFile.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAllLocked()
	return nil
}

// EnableAll enables every open group. Enabling the group leader is
// sufficient: the kernel schedules a group's members together.
func (s *Set) EnableAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		for _, inst := range g.instances {
			if err := inst.files[0].Enable(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisableAll disables every open group.
func (s *Set) DisableAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		for _, inst := range g.instances {
			if err := inst.files[0].Disable(); err != nil {
				return err
			}
		}
	}
	return nil
}

// eventIdRecord builds an EventId record mapping every currently open
// file's kernel id to its flattened attr index, so a sink decoding
// interleaved samples from many EventFiles can tell which selection
// produced a given Sample.
func (s *Set) eventIdRecord() (*record.EventId, error) {
	var entries []record.EventIdEntry
	attrIndex := 0
	for _, g := range s.groups {
		for si := range g.Selections {
			for _, inst := range g.instances {
				id, err := inst.files[si].ID()
				if err != nil {
					return nil, err
				}
				entries = append(entries, record.EventIdEntry{
					AttrIndex: uint64(attrIndex),
					ID:        id,
				})
			}
			attrIndex++
		}
	}
	return &record.EventId{Entries: entries}, nil
}

// StartDraining registers every CPU's ring-buffer-owning file with
// loop: whenever data becomes available, it is drained to exhaustion,
// decoded, and delivered to callback. callback also receives, once
// immediately, a synthetic EventId record (cpu -1) correlating every
// open file's id to its attr index.
func (s *Set) StartDraining(loop *reactor.Loop, callback func(cpu int, rec record.Record, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loop = loop

	idRec, err := s.eventIdRecord()
	if err != nil {
		return err
	}
	callback(-1, idRec, nil)

	for cpu, owner := range s.ringOwner {
		cpu, owner := cpu, owner
		err := owner.StartPolling(loop, func(raws []record.Raw) bool {
			for i := range raws {
				rec, err := record.Decode(&raws[i], owner.Attr())
				callback(cpu, rec, err)
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}
