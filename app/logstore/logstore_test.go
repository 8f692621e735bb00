// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package logstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendIterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	s := New(path)

	want := Event{RunID: "r1", ScriptID: "a", OK: true, StartedAt: 1, EndedAt: 2}
	if err := s.Append(want); err != nil {
		t.Fatal(err)
	}

	var got []Event
	err := s.Iter(func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RunID != "r1" || got[0].ScriptID != "a" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLastByScriptLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	s := New(path)

	if err := s.Append(Event{RunID: "r1", ScriptID: "a", EndedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Event{RunID: "r2", ScriptID: "a", EndedAt: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Event{RunID: "r3", ScriptID: "b", EndedAt: 1}); err != nil {
		t.Fatal(err)
	}

	last, err := s.LastByScript()
	if err != nil {
		t.Fatal(err)
	}
	if last["a"].RunID != "r2" {
		t.Fatalf("expected last write for 'a' to be r2, got %q", last["a"].RunID)
	}
	if last["b"].RunID != "r3" {
		t.Fatalf("expected last write for 'b' to be r3, got %q", last["b"].RunID)
	}
}

func TestIterSkipsBlankAndCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	content := "{\"run_id\":\"r1\",\"script_id\":\"a\"}\n\nnot json\n{\"run_id\":\"r2\",\"script_id\":\"b\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	var ids []string
	err := s.Iter(func(ev Event) error {
		ids = append(ids, ev.RunID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Fatalf("unexpected parsed ids: %v", ids)
	}
}

func TestTailSinceResetsOnRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	s := New(path)

	if err := s.Append(Event{RunID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Event{RunID: "r2"}); err != nil {
		t.Fatal(err)
	}

	data, offset, err := s.TailSince(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || offset == 0 {
		t.Fatalf("expected non-empty tail, got %q offset=%d", data, offset)
	}

	// Simulate rotation: truncate the file below the previous offset.
	if err := os.WriteFile(path, []byte("{\"run_id\":\"r3\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data2, offset2, err := s.TailSince(offset)
	if err != nil {
		t.Fatal(err)
	}
	if offset2 == 0 || string(data2) != "{\"run_id\":\"r3\"}\n" {
		t.Fatalf("expected reset-from-0 read after rotation, got %q offset=%d", data2, offset2)
	}
}

func TestTailSinceMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.jsonl"))
	data, offset, err := s.TailSince(0)
	if err != nil || data != nil || offset != 0 {
		t.Fatalf("expected (nil,0,nil) for missing file, got (%v,%d,%v)", data, offset, err)
	}
}
