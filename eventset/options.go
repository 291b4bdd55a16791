// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Set at construction time, following the
// functional-options shape used throughout this module's command layer.
type Option func(*Set)

// WithMaxPages sets the largest ring buffer size, in data pages, Open
// will attempt per CPU. Default 128.
func WithMaxPages(pages uint) Option {
	return func(s *Set) { s.maxPages = pages }
}

// WithMinPages sets the floor Open's halving retry will not go below
// before giving up on mapping a CPU's ring buffer. Default 1.
func WithMinPages(pages uint) Option {
	return func(s *Set) { s.minPages = pages }
}

// WithStatMode configures the set for counting rather than sampling:
// Open skips ring buffer mapping entirely, AddGroup rejects "u"/"k"
// modifiers on cpu-clock/task-clock (spec §4.E), and ReadCounters
// becomes the intended way to retrieve measurements instead of Drain
// callbacks.
func WithStatMode() Option {
	return func(s *Set) { s.statMode = true }
}

// WithCheckInterval sets how often StartHotplug reconciles the online
// CPU set. Default 2s. A zero interval disables hotplug polling.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Set) { s.checkInterval = d }
}

// WithMonitoredCPUs restricts hotplug reactions to the specified CPUs;
// transitions on any other CPU are ignored. The default, no call to
// WithMonitoredCPUs, reacts to every CPU.
func WithMonitoredCPUs(cpus []int) Option {
	return func(s *Set) {
		s.monitoredCPUs = make(map[int]bool, len(cpus))
		for _, c := range cpus {
			s.monitoredCPUs[c] = true
		}
	}
}

// WithLogger installs a logger for non-fatal warnings: CPUs that go
// offline mid-open, and hotplug reopen failures (spec §7, both
// documented as "warned, not fatal"). A nil logger, the default,
// disables these warnings.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Set) { s.logger = logger }
}

func (s *Set) logWarn() *zerolog.Event {
	if s.logger == nil {
		return nil
	}
	return s.logger.Warn()
}
