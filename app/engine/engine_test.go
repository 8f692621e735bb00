// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/seakee/triggerd/app/executor"
	"github.com/seakee/triggerd/app/lock"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/probe"
	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
)

func writeScript(t *testing.T, root, id string, manifest map[string]interface{}) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest["id"] = id
	if _, ok := manifest["entrypoint"]; !ok {
		manifest["entrypoint"] = "true:noop"
	}
	if _, ok := manifest["enabled"]; !ok {
		manifest["enabled"] = true
	}
	raw, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "script.json"), raw, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

type fakeAppsProbe struct{ apps map[string]bool }

func (f fakeAppsProbe) RunningApps(context.Context) map[string]bool { return f.apps }

type fakeIdleProbe struct {
	seconds float64
	ok      bool
}

func (f fakeIdleProbe) IdleSeconds(context.Context) (float64, bool) { return f.seconds, f.ok }

func newTestEngine(t *testing.T, root string) (*Engine, *logstore.Store) {
	t.Helper()
	dataDir := t.TempDir()
	logStore := logstore.New(filepath.Join(dataDir, "logs.jsonl"))
	stateStore := state.New(filepath.Join(dataDir, "sched_state.json"))
	reg := registry.New(root)
	runner := executor.New(logStore, func(string) (*exec.Cmd, error) {
		return exec.Command("true"), nil
	})

	e := New(Options{
		Registry: reg,
		LogStore: logStore,
		State:    stateStore,
		Runner:   runner,
	})
	return e, logStore
}

// runTickSync runs one tick and waits for every dispatch it launched to
// finish, so assertions right after it see a settled log store.
func runTickSync(e *Engine, ctx context.Context) {
	e.runTick(ctx)
	e.Wait()
}

func countEvents(t *testing.T, store *logstore.Store) int {
	t.Helper()
	n := 0
	if err := store.Iter(func(logstore.Event) error { n++; return nil }); err != nil {
		t.Fatalf("iter: %v", err)
	}
	return n
}

func TestTickDispatchesDueIntervalScript(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "s1", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "interval", "seconds": 2},
	})

	e, store := newTestEngine(t, root)
	ctx := context.Background()

	runTickSync(e, ctx)
	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected 1 event after first due tick, got %d", n)
	}

	runTickSync(e, ctx)
	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected no additional event immediately after firing, got %d", n)
	}
}

func TestDisabledScriptNeverDispatches(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "s1", map[string]interface{}{
		"enabled": false,
		"schedule": map[string]interface{}{"type": "interval", "seconds": 0.01},
	})

	e, store := newTestEngine(t, root)
	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 0 {
		t.Fatalf("expected disabled script to never dispatch, got %d events", n)
	}
}

func TestLockGroupSkipAllowsExactlyOneOfTwoDueScripts(t *testing.T) {
	root := t.TempDir()
	manifest := func() map[string]interface{} {
		return map[string]interface{}{
			"schedule":   map[string]interface{}{"type": "interval", "seconds": 0.001},
			"lock_group": "net",
			"lock_mode":  "skip",
		}
	}
	writeScript(t, root, "p", manifest())
	writeScript(t, root, "q", manifest())

	e, store := newTestEngine(t, root)

	lockDir := t.TempDir()
	e.lock = NewHostBroker(lock.New(lockDir))

	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected exactly one of the two lock-sharing scripts to run, got %d events", n)
	}
}

func TestFileWatchSuppressesFirstObservation(t *testing.T) {
	root := t.TempDir()
	watched := filepath.Join(t.TempDir(), "watchme.txt")
	if err := os.WriteFile(watched, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed watched file: %v", err)
	}

	writeScript(t, root, "f", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "file_watch", "path": watched, "poll_seconds": 0.001},
	})

	e, store := newTestEngine(t, root)
	ctx := context.Background()

	runTickSync(e, ctx) // first observation: must not fire.
	if n := countEvents(t, store); n != 0 {
		t.Fatalf("expected no event on first observation, got %d", n)
	}

	runTickSync(e, ctx) // mtime unchanged: must not fire.
	if n := countEvents(t, store); n != 0 {
		t.Fatalf("expected no event while mtime is unchanged, got %d", n)
	}

	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(watched, []byte("v2"), 0o644); err != nil {
		t.Fatalf("touch watched file: %v", err)
	}

	runTickSync(e, ctx)
	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected exactly one event after the watched file changed, got %d", n)
	}
}

func TestOnFailureDispatchesOnlyMatchingTarget(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "x", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "interval", "seconds": 999},
	})
	writeScript(t, root, "y", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "on_failure", "target": "x"},
	})
	writeScript(t, root, "w", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "on_failure", "target": "does-not-exist"},
	})

	e, store := newTestEngine(t, root)

	if err := store.Append(logstore.Event{RunID: "r1", ScriptID: "x", OK: false}); err != nil {
		t.Fatalf("seed failure event: %v", err)
	}

	runTickSync(e, context.Background())

	events := map[string]int{}
	if err := store.Iter(func(ev logstore.Event) error {
		events[ev.ScriptID]++
		return nil
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}

	if events["y"] != 1 {
		t.Fatalf("expected script y (target x) to fire once, got %d", events["y"])
	}
	if events["w"] != 0 {
		t.Fatalf("expected script w (target does-not-exist) to never fire, got %d", events["w"])
	}
}

func TestOnFailureSelfRecursionGuard(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "x", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "on_failure", "target": "*"},
	})

	e, store := newTestEngine(t, root)
	if err := store.Append(logstore.Event{RunID: "r1", ScriptID: "x", OK: false}); err != nil {
		t.Fatalf("seed failure event: %v", err)
	}

	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected no self-triggered recursive run, got %d total events", n)
	}
}

func TestIdleDispatchFiresOncePerContinuousIdlePeriod(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "i", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "event", "events": []string{"idle"}, "idle_seconds": 5},
	})

	e, store := newTestEngine(t, root)
	e.idleProbe = fakeIdleProbe{seconds: 10, ok: true}

	runTickSync(e, context.Background())
	runTickSync(e, context.Background())
	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected idle script to fire exactly once during a continuous idle period, got %d", n)
	}

	e.idleProbe = fakeIdleProbe{seconds: 1, ok: true} // below IDLE_RESET_SECONDS: re-arms.
	runTickSync(e, context.Background())

	e.idleProbe = fakeIdleProbe{seconds: 10, ok: true}
	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 2 {
		t.Fatalf("expected idle script to fire again after re-arming, got %d", n)
	}
}

func TestAppOpenDebounceFiresOnceWithinWindow(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "c", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "event", "events": []string{"app_open"}, "apps": []string{"Slack"}},
	})

	e, store := newTestEngine(t, root)

	e.appsProbe = fakeAppsProbe{apps: map[string]bool{"Safari": true}}
	runTickSync(e, context.Background())

	e.appsProbe = fakeAppsProbe{apps: map[string]bool{"Safari": true, "Slack": true}}
	runTickSync(e, context.Background())

	e.appsProbe = fakeAppsProbe{apps: map[string]bool{"Safari": true, "Slack": true}}
	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 1 {
		t.Fatalf("expected exactly one dispatch for Slack's app_open, got %d", n)
	}
}

func TestMalformedScheduleNeverFires(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "bad", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "not_a_real_kind"},
	})

	e, store := newTestEngine(t, root)
	runTickSync(e, context.Background())
	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 0 {
		t.Fatalf("expected malformed schedule to never fire, got %d events", n)
	}
}

type fakeNotifier struct{ messages []string }

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func TestOnFailureAlertFiresAfterTwoConsecutiveFailures(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "x", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "interval", "seconds": 999},
	})
	writeScript(t, root, "recover", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "on_failure", "target": "x"},
	})

	e, store := newTestEngine(t, root)
	e.runner = executor.New(store, func(string) (*exec.Cmd, error) {
		return exec.Command("false"), nil // recovery script itself always fails.
	})

	notifier := &fakeNotifier{}
	e.notifier = notifier

	if err := store.Append(logstore.Event{RunID: "r1", ScriptID: "x", OK: false}); err != nil {
		t.Fatalf("seed failure event: %v", err)
	}
	runTickSync(e, context.Background())

	if len(notifier.messages) != 0 {
		t.Fatalf("expected no alert after a single recovery failure, got %v", notifier.messages)
	}

	if err := store.Append(logstore.Event{RunID: "r2", ScriptID: "x", OK: false}); err != nil {
		t.Fatalf("seed second failure event: %v", err)
	}
	runTickSync(e, context.Background())

	if len(notifier.messages) != 1 {
		t.Fatalf("expected exactly one alert after two consecutive recovery failures, got %v", notifier.messages)
	}
}

func TestProbeUnavailableDoesNotPanicOrFire(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "i", map[string]interface{}{
		"schedule": map[string]interface{}{"type": "event", "events": []string{"idle"}, "idle_seconds": 1},
	})

	e, store := newTestEngine(t, root)
	e.idleProbe = probe.NoopIdleProbe{}

	runTickSync(e, context.Background())

	if n := countEvents(t, store); n != 0 {
		t.Fatalf("expected no dispatch when the idle probe is unavailable, got %d", n)
	}
}
