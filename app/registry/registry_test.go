// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root, id, body string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSkipsMalformedManifests(t *testing.T) {
	root := t.TempDir()

	writeManifest(t, root, "good", `{"id":"good","entrypoint":"m:f","enabled":true,"schedule":{"type":"interval","seconds":5}}`)
	writeManifest(t, root, "no-id", `{"entrypoint":"m:f"}`)
	writeManifest(t, root, "bad-json", `{not json`)
	writeManifest(t, root, "no-entrypoint", `{"id":"x"}`)

	scripts, err := New(root).Discover()
	if err != nil {
		t.Fatal(err)
	}

	if len(scripts) != 1 {
		t.Fatalf("expected exactly 1 discovered script, got %d: %v", len(scripts), scripts)
	}

	s, ok := scripts["good"]
	if !ok {
		t.Fatal("expected script 'good' to be discovered")
	}
	if s.Schedule.Kind != KindInterval || s.Schedule.Interval.Seconds != 5 {
		t.Fatalf("unexpected schedule: %+v", s.Schedule)
	}
}

func TestDiscoverDefaultsNameToID(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "s1", `{"id":"s1","entrypoint":"m:f"}`)

	scripts, err := New(root).Discover()
	if err != nil {
		t.Fatal(err)
	}
	if scripts["s1"].Name != "s1" {
		t.Fatalf("expected Name to default to id, got %q", scripts["s1"].Name)
	}
}

func TestDiscoverLegacyLockAlias(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "s1", `{"id":"s1","entrypoint":"m:f","lock":"net","lock_mode":"bogus","lock_timeout_seconds":-5}`)

	scripts, err := New(root).Discover()
	if err != nil {
		t.Fatal(err)
	}
	s := scripts["s1"]
	if s.LockGroup != "net" {
		t.Fatalf("expected legacy 'lock' to populate LockGroup, got %q", s.LockGroup)
	}
	if s.LockMode != LockSkip {
		t.Fatalf("expected invalid lock_mode to default to skip, got %q", s.LockMode)
	}
	if s.LockTimeout != 0 {
		t.Fatalf("expected negative timeout to clamp to 0, got %v", s.LockTimeout)
	}
}

func TestUpdateRewritesManifestAtomically(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "s1", `{"id":"s1","entrypoint":"m:f","enabled":false}`)

	reg := New(root)
	err := reg.Update("s1", func(m map[string]interface{}) {
		m["enabled"] = true
	})
	if err != nil {
		t.Fatal(err)
	}

	scripts, err := reg.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if !scripts["s1"].Enabled {
		t.Fatal("expected enabled to be true after update")
	}
}

func TestUpdateMissingScriptErrors(t *testing.T) {
	root := t.TempDir()
	err := New(root).Update("missing", func(map[string]interface{}) {})
	if err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestNormalizeScheduleTable(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
		want Kind
	}{
		{"interval zero seconds drops", map[string]interface{}{"type": "interval", "seconds": 0.0}, KindNone},
		{"interval valid", map[string]interface{}{"type": "interval", "seconds": 30.0}, KindInterval},
		{"time single string at", map[string]interface{}{"type": "time", "at": "09:00"}, KindTime},
		{"time empty at drops", map[string]interface{}{"type": "time", "at": []interface{}{}}, KindNone},
		{"time dom without months drops dom but keeps time", map[string]interface{}{"type": "time", "at": "09:00", "dom": []interface{}{1.0}}, KindTime},
		{"file_watch defaults poll", map[string]interface{}{"type": "file_watch", "path": "x.txt"}, KindFileWatch},
		{"file_watch missing path drops", map[string]interface{}{"type": "file_watch"}, KindNone},
		{"event idle without seconds drops", map[string]interface{}{"type": "event", "events": []interface{}{"idle"}}, KindNone},
		{"event idle with seconds", map[string]interface{}{"type": "event", "events": []interface{}{"idle"}, "idle_seconds": 60.0}, KindEvent},
		{"event legacy singular", map[string]interface{}{"type": "event", "event": "network_up"}, KindEvent},
		{"event unknown type drops", map[string]interface{}{"type": "event", "events": []interface{}{"bogus"}}, KindNone},
		{"on_failure default target", map[string]interface{}{"type": "on_failure"}, KindOnFailure},
		{"unknown type drops", map[string]interface{}{"type": "nonsense"}, KindNone},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := normalizeSchedule(c.raw)
			if got.Kind != c.want {
				t.Fatalf("normalizeSchedule(%v) kind = %v, want %v", c.raw, got.Kind, c.want)
			}
		})
	}
}

func TestNormalizeTimeDOMRequiresMonths(t *testing.T) {
	sched := normalizeSchedule(map[string]interface{}{
		"type":   "time",
		"at":     "09:00",
		"dom":    []interface{}{1.0, 15.0},
		"months": []interface{}{1.0, 6.0},
	})
	if sched.Kind != KindTime {
		t.Fatalf("expected KindTime, got %v", sched.Kind)
	}
	if len(sched.Time.DOM) != 2 {
		t.Fatalf("expected dom to be kept when months present, got %v", sched.Time.DOM)
	}

	sched2 := normalizeSchedule(map[string]interface{}{
		"type": "time",
		"at":   "09:00",
		"dom":  []interface{}{1.0},
	})
	if len(sched2.Time.DOM) != 0 {
		t.Fatalf("expected dom to be dropped without months, got %v", sched2.Time.DOM)
	}
}

func TestOnFailureDefaultTargetIsWildcard(t *testing.T) {
	sched := normalizeSchedule(map[string]interface{}{"type": "on_failure"})
	if sched.OnFail.Target != "*" {
		t.Fatalf("expected default target '*', got %q", sched.OnFail.Target)
	}
}
