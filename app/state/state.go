// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package state implements the Scheduler State Store (spec.md §4.4): the
// small, persisted bookkeeping map that keeps interval and time-of-day
// triggers from firing twice across a daemon restart.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Script is the per-script bookkeeping entry, per spec.md §3.
type Script struct {
	LastFiredAt    *float64 `json:"last_fired_at,omitempty"`
	LastFiredDay   string   `json:"last_fired_day,omitempty"`
	FiredTimes     []string `json:"fired_times,omitempty"`
	PendingTimeKey string   `json:"_pending_time_key,omitempty"`
	PendingDay     string   `json:"_pending_day,omitempty"`
}

// State is the full persisted map, script id -> bookkeeping entry.
type State map[string]*Script

// Store loads and saves State as one JSON file, write-temp-then-rename for
// atomicity, per spec.md §4.4.
type Store struct {
	path string
}

// New creates a Store backed by the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file. A missing or corrupt file yields empty state
// rather than an error, per spec.md §4.4/§7 ("State persistence failure:
// log the exception and continue with in-memory state").
//
// Returns:
//   - State: possibly empty map, never nil.
func (s *Store) Load() State {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return State{}
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}
	}
	if st == nil {
		st = State{}
	}
	return st
}

// Save atomically persists st to the state file.
//
// Parameters:
//   - st: in-memory state to serialize.
//
// Returns:
//   - error: I/O error; callers must log and continue rather than abort
//     the tick (spec.md §7).
func (s *Store) Save(st State) error {
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode scheduler state")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create state directory")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.Wrap(err, "write scheduler state")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "rename scheduler state")
	}

	return nil
}

// Purge drops entries whose ids are not present in keep, per spec.md
// §4.7 tick step 2 ("Purge entries from sched_state ... whose ids are not
// in that set").
//
// Returns:
//   - bool: true if any entry was removed (caller should persist).
func (st State) Purge(keep map[string]bool) bool {
	mutated := false
	for id := range st {
		if !keep[id] {
			delete(st, id)
			mutated = true
		}
	}
	return mutated
}

// Entry returns the bookkeeping entry for id, creating an empty one if
// absent. The returned pointer is the same one stored in the map, so
// mutations through it persist without a second assignment.
func (st State) Entry(id string) *Script {
	e, ok := st[id]
	if !ok {
		e = &Script{}
		st[id] = e
	}
	return e
}
