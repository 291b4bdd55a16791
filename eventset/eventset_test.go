// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleperf-go/simpleperf/eventset"
	"github.com/simpleperf-go/simpleperf/internal/testasm"
)

func TestAddGroupRejectsDuplicateNames(t *testing.T) {
	s := eventset.New()
	require.NoError(t, s.AddGroup([]string{"cpu-cycles"}))
	err := s.AddGroup([]string{"cpu-cycles"})
	assert.Error(t, err)
}

func TestAddGroupRejectsMixedUserSpaceSampler(t *testing.T) {
	s := eventset.New()
	err := s.AddGroup([]string{"cpu-cycles", "cs-etm"})
	assert.Error(t, err)

	s2 := eventset.New()
	assert.NoError(t, s2.AddGroup([]string{"cs-etm"}))
}

func TestAddGroupRejectsClockModifiersUnderStat(t *testing.T) {
	s := eventset.New(eventset.WithStatMode())
	err := s.AddGroup([]string{"task-clock:u"})
	assert.Error(t, err)

	err = s.AddGroup([]string{"cpu-cycles:u"})
	assert.NoError(t, err)
}

func TestOpenEnableReadCountersStat(t *testing.T) {
	s := eventset.New(eventset.WithStatMode())
	require.NoError(t, s.AddGroup([]string{"task-clock"}))
	s.SetTarget(eventset.Target{
		Threads: []int{0},
		CPUs:    []int{eventset.AllCPUs},
	})

	if err := s.Open(); err != nil {
		t.Skipf("perf_event_open unavailable: %v", err)
	}
	defer s.Close()

	if err := s.EnableAll(); err != nil {
		t.Fatalf("EnableAll: %v", err)
	}
	defer s.DisableAll()

	testasm.SumN(1 << 24) // deterministic CPU-bound workload, so task-clock has something to count

	samples, err := s.ReadCounters()
	require.NoError(t, err)
	if len(samples) == 0 {
		t.Fatal("expected at least one counter sample")
	}
	for _, sample := range samples {
		assert.Equal(t, "task-clock", sample.Selection.Name)
	}
}

func TestTargetRequiresAThreadOrProcess(t *testing.T) {
	s := eventset.New(eventset.WithStatMode())
	require.NoError(t, s.AddGroup([]string{"task-clock"}))
	s.SetTarget(eventset.Target{CPUs: []int{eventset.AllCPUs}})

	err := s.Open()
	assert.Error(t, err)
}

func TestOpenForCallingProcess(t *testing.T) {
	s := eventset.New(eventset.WithStatMode())
	require.NoError(t, s.AddGroup([]string{"task-clock"}))
	s.SetTarget(eventset.Target{
		Processes: []int{os.Getpid()},
		CPUs:      []int{eventset.AllCPUs},
	})

	if err := s.Open(); err != nil {
		t.Skipf("perf_event_open unavailable: %v", err)
	}
	defer s.Close()
}
