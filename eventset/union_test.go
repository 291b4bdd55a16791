// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventset

import "testing"

func TestUnionSampleTypeMergesAcrossGroups(t *testing.T) {
	s := New()
	if err := s.AddGroup([]string{"cpu-cycles"}); err != nil {
		t.Fatal(err)
	}
	s.groups[0].Selections[0].Attr.SampleFormat.IP = true

	if err := s.AddGroup([]string{"instructions"}); err != nil {
		t.Fatal(err)
	}
	s.groups[1].Selections[0].Attr.SampleFormat.Tid = true
	s.unionSampleType()

	for _, g := range s.groups {
		for _, sel := range g.Selections {
			if !sel.Attr.SampleFormat.IP || !sel.Attr.SampleFormat.Tid {
				t.Fatalf("selection %q did not receive the union: %+v", sel.Name, sel.Attr.SampleFormat)
			}
		}
	}
}

func TestParseEventModifiers(t *testing.T) {
	a, mods, err := parseEvent("cpu-cycles:u")
	if err != nil {
		t.Fatal(err)
	}
	if mods != "u" {
		t.Fatalf("modifiers = %q, want \"u\"", mods)
	}
	if !a.Options.ExcludeKernel || a.Options.ExcludeUser {
		t.Fatalf("unexpected exclusions: %+v", a.Options)
	}

	a, mods, err = parseEvent("cpu-cycles")
	if err != nil {
		t.Fatal(err)
	}
	if mods != "" {
		t.Fatalf("modifiers = %q, want \"\"", mods)
	}
	if a.Options.ExcludeUser || a.Options.ExcludeKernel {
		t.Fatalf("unmodified event should exclude nothing: %+v", a.Options)
	}
}

func TestOnlineCPUsNonEmpty(t *testing.T) {
	cpus, err := onlineCPUs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cpus) == 0 {
		t.Fatal("expected at least one online cpu")
	}
}
