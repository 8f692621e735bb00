// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package registry implements the Manifest Registry (spec.md §4.1): it
// discovers per-script manifests from disk on demand and normalizes them
// into the closed Script/Schedule shape the trigger engine consumes. It is
// stateless across calls — the engine re-discovers every tick so that
// enable/disable and schedule edits take effect without a restart, the same
// way the teacher's scheduler re-evaluates jobs without reloading the
// process (app/pkg/schedule.Schedule.Start).
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const manifestFileName = "script.json"

// LockMode is the acquisition discipline a script's lock group uses.
type LockMode string

const (
	LockSkip LockMode = "skip"
	LockWait LockMode = "wait"
)

// Script is the normalized, reload-each-tick view of one script.json, per
// spec.md §3.
type Script struct {
	ID          string
	Name        string
	Enabled     bool
	Entrypoint  string
	Schedule    Schedule
	LockGroup   string
	LockMode    LockMode
	LockTimeout float64 // seconds; only meaningful for LockWait.
	Path        string
}

// manifest is the raw on-disk JSON shape of script.json.
type manifest struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Enabled            bool                   `json:"enabled"`
	Entrypoint         string                 `json:"entrypoint"`
	Schedule           map[string]interface{} `json:"schedule"`
	LockGroup          string                 `json:"lock_group"`
	LegacyLock         string                 `json:"lock"` // legacy alias, per spec.md §9 Open Question.
	LockMode           string                 `json:"lock_mode"`
	LockTimeoutSeconds float64                `json:"lock_timeout_seconds"`
}

// Registry discovers and normalizes scripts under one root directory.
type Registry struct {
	root string
}

// New creates a Registry rooted at the given scripts directory.
//
// Parameters:
//   - root: directory whose immediate subdirectories are script folders.
//
// Returns:
//   - *Registry: stateless registry ready for Discover/Update calls.
func New(root string) *Registry {
	return &Registry{root: root}
}

// Root returns the scripts directory this Registry is rooted at, used by
// cmd/triggerctl's install command to resolve a destination path.
func (r *Registry) Root() string {
	return r.root
}

// Discover enumerates immediate subdirectories of the scripts root and
// parses each one's script.json into a normalized Script, per spec.md
// §4.1's discover() contract.
//
// Returns:
//   - map[string]Script: id -> normalized script, for every directory with
//     a parseable manifest carrying non-blank id and entrypoint.
//   - error: only for unreadable root directories; individual malformed
//     manifests are skipped, never fatal (spec.md §7).
func (r *Registry) Discover() (map[string]Script, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Script{}, nil
		}
		return nil, errors.Wrap(err, "read scripts root")
	}

	scripts := make(map[string]Script, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		script, ok := r.loadOne(dir)
		if !ok {
			continue
		}

		scripts[script.ID] = script
	}

	return scripts, nil
}

// loadOne parses one script directory's manifest file, returning ok=false
// for anything malformed per spec.md §4.1 (missing file, bad JSON, blank
// id/entrypoint).
func (r *Registry) loadOne(dir string) (Script, bool) {
	path := filepath.Join(dir, manifestFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		return Script{}, false
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Script{}, false
	}

	if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Entrypoint) == "" {
		return Script{}, false
	}

	name := m.Name
	if name == "" {
		name = m.ID
	}

	return Script{
		ID:          m.ID,
		Name:        name,
		Enabled:     m.Enabled,
		Entrypoint:  m.Entrypoint,
		Schedule:    normalizeSchedule(m.Schedule),
		LockGroup:   normalizeLockGroup(m),
		LockMode:    normalizeLockMode(m.LockMode),
		LockTimeout: normalizeLockTimeout(m.LockTimeoutSeconds),
		Path:        dir,
	}, true
}

func normalizeLockGroup(m manifest) string {
	if m.LockGroup != "" {
		return m.LockGroup
	}
	return m.LegacyLock
}

func normalizeLockMode(raw string) LockMode {
	switch LockMode(raw) {
	case LockWait:
		return LockWait
	default:
		return LockSkip
	}
}

func normalizeLockTimeout(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	return raw
}

// Mutator transforms a manifest in place; used by Update.
type Mutator func(m map[string]interface{})

// Update loads a script's manifest file, applies a mutator to its raw JSON
// map, and rewrites it atomically (write-then-rename) with pretty JSON, per
// spec.md §4.1's "load -> apply pure transform -> atomic rewrite" contract
// (spec.md §9's "closure-based manifest mutation" note).
//
// Parameters:
//   - id: script id whose directory should equal id (spec.md §6).
//   - mutate: transform applied to the decoded manifest map.
//
// Returns:
//   - error: "not found" when no manifest exists for id, or an I/O error.
func (r *Registry) Update(id string, mutate Mutator) error {
	dir := filepath.Join(r.root, id)
	path := filepath.Join(dir, manifestFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("script %q not found", id)
		}
		return errors.Wrap(err, "read manifest")
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.Wrap(err, "parse manifest")
	}

	mutate(m)

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.Wrap(err, "write manifest")
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "rename manifest")
	}

	return nil
}

// remarshal round-trips v through JSON into out, used to decode the raw
// schedule map into the typed rawSchedule shape without hand-rolling a
// field-by-field switch.
func remarshal(v interface{}, out interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
