// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsEmptyState(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))
	st := s.Load()
	if len(st) != 0 {
		t.Fatalf("expected empty state, got %v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched_state.json")
	s := New(path)

	st := State{}
	last := 123.5
	st["a"] = &Script{LastFiredAt: &last, FiredTimes: []string{"09:00"}}

	if err := s.Save(st); err != nil {
		t.Fatal(err)
	}

	reloaded := s.Load()
	if reloaded["a"] == nil || *reloaded["a"].LastFiredAt != 123.5 {
		t.Fatalf("unexpected reloaded state: %+v", reloaded)
	}
}

func TestLoadCorruptFileYieldsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched_state.json")
	s := New(path)
	_ = s.Save(State{"a": &Script{}})

	// Corrupt it.
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := s.Load()
	if len(st) != 0 {
		t.Fatalf("expected empty state for corrupt file, got %v", st)
	}
}

func TestPurgeRemovesUnknownIDs(t *testing.T) {
	st := State{"a": &Script{}, "b": &Script{}}
	mutated := st.Purge(map[string]bool{"a": true})
	if !mutated {
		t.Fatal("expected mutation")
	}
	if _, ok := st["b"]; ok {
		t.Fatal("expected 'b' to be purged")
	}
	if _, ok := st["a"]; !ok {
		t.Fatal("expected 'a' to remain")
	}
}
