// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/registry"
)

func newTestRunner(t *testing.T, command func(string) (*exec.Cmd, error)) (*Runner, *logstore.Store) {
	t.Helper()
	store := logstore.New(filepath.Join(t.TempDir(), "runs.jsonl"))
	return New(store, command), store
}

func TestRunSuccessRecordsOneEvent(t *testing.T) {
	r, store := newTestRunner(t, func(string) (*exec.Cmd, error) {
		return exec.Command("true"), nil
	})

	ok, runID := r.Run(context.Background(), registry.Script{ID: "s1", Entrypoint: "true:noop"}, 5, map[string]string{"k": "v"})
	if !ok {
		t.Fatalf("expected ok")
	}
	if runID == "" {
		t.Fatalf("expected non-empty run id")
	}

	events := collect(t, store)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].RunID != runID || events[0].ScriptID != "s1" || !events[0].OK {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].ExitCode == nil || *events[0].ExitCode != 0 {
		t.Fatalf("expected exit code 0")
	}
}

func TestRunNonZeroExitRecordsFailure(t *testing.T) {
	r, store := newTestRunner(t, func(string) (*exec.Cmd, error) {
		return exec.Command("false"), nil
	})

	ok, _ := r.Run(context.Background(), registry.Script{ID: "s2", Entrypoint: "false:noop"}, 5, nil)
	if ok {
		t.Fatalf("expected not ok")
	}

	events := collect(t, store)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].ExitCode == nil || *events[0].ExitCode == 0 {
		t.Fatalf("expected non-zero exit code, got %+v", events[0].ExitCode)
	}
	if events[0].Timeout {
		t.Fatalf("did not expect timeout")
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	r, store := newTestRunner(t, func(string) (*exec.Cmd, error) {
		return exec.Command("sleep", "5"), nil
	})

	start := time.Now()
	ok, _ := r.Run(context.Background(), registry.Script{ID: "s3", Entrypoint: "sleep:noop"}, 0.2, nil)
	elapsed := time.Since(start)

	if ok {
		t.Fatalf("expected timeout to be unsuccessful")
	}
	if elapsed > 3*time.Second {
		t.Fatalf("expected the process to be killed promptly, took %s", elapsed)
	}

	events := collect(t, store)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if !events[0].Timeout {
		t.Fatalf("expected timeout flag set")
	}
}

func TestRunSpawnFailureStillRecordsOneEvent(t *testing.T) {
	r, store := newTestRunner(t, func(string) (*exec.Cmd, error) {
		return nil, errInvalidEntrypoint("bad")
	})

	ok, _ := r.Run(context.Background(), registry.Script{ID: "s4", Entrypoint: "bad"}, 5, nil)
	if ok {
		t.Fatalf("expected not ok on spawn failure")
	}

	events := collect(t, store)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Error == "" {
		t.Fatalf("expected error message recorded")
	}
}

func TestDefaultCommandRejectsMissingColon(t *testing.T) {
	if _, err := DefaultCommand("no-colon-here"); err == nil {
		t.Fatalf("expected error for entrypoint without a colon")
	}
}

func TestDefaultTimeoutAppliedWhenUnset(t *testing.T) {
	r, store := newTestRunner(t, func(string) (*exec.Cmd, error) {
		return exec.Command("true"), nil
	})

	ok, _ := r.Run(context.Background(), registry.Script{ID: "s5", Entrypoint: "true:noop"}, 0, nil)
	if !ok {
		t.Fatalf("expected ok")
	}

	events := collect(t, store)
	if events[0].TimeoutSeconds != DefaultTimeoutSeconds {
		t.Fatalf("expected default timeout recorded, got %v", events[0].TimeoutSeconds)
	}
}

func collect(t *testing.T, store *logstore.Store) []logstore.Event {
	t.Helper()
	var events []logstore.Event
	if err := store.Iter(func(e logstore.Event) error {
		events = append(events, e)
		return nil
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	return events
}
