// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
)

// signal is one synthetic discrete event produced by the app-diff or
// network-diff pre-steps, per spec.md §4.7 steps 4-5.
type signal struct {
	Type registry.EventType
	App  string // set for app_open/app_close.
	IP   string // set for network_up.
}

// idlePreStep implements spec.md §4.7 step 3: re-arm idle triggers once
// the user is observed active again. The observed value is cached on the
// Engine for idleDispatch's use later in the same tick.
func (e *Engine) idlePreStep(ctx context.Context, now time.Time) {
	seconds, ok := e.idleProbe.IdleSeconds(ctx)
	e.idleSeconds = seconds
	e.idleSeenOK = ok

	if ok && seconds < idleResetSeconds {
		for id := range e.idleFired {
			delete(e.idleFired, id)
		}
	}
}

// appDiffPreStep implements spec.md §4.7 step 4.
func (e *Engine) appDiffPreStep(ctx context.Context, now time.Time) []signal {
	cur := e.appsProbe.RunningApps(ctx)

	var signals []signal
	for name := range cur {
		if !e.lastApps[name] {
			if e.debounceAllow("app_open:"+name, now) {
				signals = append(signals, signal{Type: registry.EventAppOpen, App: name})
			}
		}
	}
	for name := range e.lastApps {
		if !cur[name] {
			if e.debounceAllow("app_close:"+name, now) {
				signals = append(signals, signal{Type: registry.EventAppClose, App: name})
			}
		}
	}

	e.lastApps = cur
	return signals
}

func (e *Engine) debounceAllow(key string, now time.Time) bool {
	last, seen := e.lastEventAt[key]
	if seen && now.Sub(last).Seconds() < eventDebounceSeconds {
		return false
	}
	e.lastEventAt[key] = now
	return true
}

// networkDiffPreStep implements spec.md §4.7 step 5.
func (e *Engine) networkDiffPreStep(ctx context.Context, now time.Time) (*signal, string) {
	var ip string
	var ok bool
	if e.networkProbe != nil {
		ip, ok = e.networkProbe.LocalIP(ctx)
	}

	if ok == e.hadNetwork {
		e.lastNetworkIP = ip
		return nil, ip
	}

	if now.Sub(e.lastNetworkFlip).Seconds() < networkFlapDampSeconds && !e.lastNetworkFlip.IsZero() {
		return nil, e.lastNetworkIP
	}

	e.hadNetwork = ok
	e.lastNetworkIP = ip
	e.lastNetworkFlip = now

	if ok {
		return &signal{Type: registry.EventNetworkUp, IP: ip}, ip
	}
	return &signal{Type: registry.EventNetworkDown}, ip
}

// idleDispatch implements spec.md §4.7 step 6.
func (e *Engine) idleDispatch(ctx context.Context, scripts map[string]registry.Script, now time.Time) {
	if !e.idleSeenOK {
		return
	}

	for id, s := range scripts {
		if s.Schedule.Kind != registry.KindEvent || !s.Schedule.Event.HasEvent(registry.EventIdle) {
			continue
		}

		threshold := s.Schedule.Event.IdleSeconds
		if e.idleSeconds < threshold || e.idleFired[id] {
			continue
		}

		e.idleFired[id] = true
		e.spawn(ctx, s, now, map[string]interface{}{
			"event": map[string]interface{}{
				"type":         string(registry.EventIdle),
				"idle_seconds": e.idleSeconds,
			},
			"trigger": "event",
		})
	}
}

// discreteEventDispatch implements spec.md §4.7 step 7.
func (e *Engine) discreteEventDispatch(ctx context.Context, scripts map[string]registry.Script, now time.Time, appSignals []signal, netEvent *signal) {
	signals := append([]signal{}, appSignals...)
	if netEvent != nil {
		signals = append(signals, *netEvent)
	}

	for _, sig := range signals {
		for id, s := range scripts {
			if s.Schedule.Kind != registry.KindEvent || !s.Schedule.Event.HasEvent(sig.Type) {
				continue
			}

			if (sig.Type == registry.EventAppOpen || sig.Type == registry.EventAppClose) && len(s.Schedule.Event.Apps) > 0 {
				if !containsString(s.Schedule.Event.Apps, sig.App) {
					continue
				}
			}

			cooldownKey := id + ":" + string(sig.Type)
			if last, seen := e.cooldownAt[cooldownKey]; seen && now.Sub(last).Seconds() < eventScriptCooldownSeconds {
				continue
			}
			e.cooldownAt[cooldownKey] = now

			payload := map[string]interface{}{
				"event": map[string]interface{}{
					"type": string(sig.Type),
					"app":  sig.App,
					"ip":   sig.IP,
				},
				"trigger": "event",
			}
			e.spawn(ctx, s, now, payload)
		}
	}
}

// onFailureDispatch implements spec.md §4.7 step 8.
func (e *Engine) onFailureDispatch(ctx context.Context, scripts map[string]registry.Script) {
	data, newOffset, err := e.logStore.TailSince(e.onFailureOffset)
	e.onFailureOffset = newOffset
	if err != nil || len(data) == 0 {
		return
	}

	failures := parseFailedEvents(data)
	for _, failed := range failures {
		if failed.ScriptID == "" {
			continue
		}
		for id, s := range scripts {
			if s.Schedule.Kind != registry.KindOnFailure {
				continue
			}
			target := s.Schedule.OnFail.Target
			if id == failed.ScriptID {
				continue // self-recursion guard.
			}
			if target != "*" && target != failed.ScriptID {
				continue
			}

			e.spawn(ctx, s, time.Now(), map[string]interface{}{
				"failed_event": failed.raw,
				"trigger":      "on_failure",
			})
		}
	}
}

// scheduledDispatch implements spec.md §4.7 step 9, returning whether
// state was mutated.
func (e *Engine) scheduledDispatch(ctx context.Context, scripts map[string]registry.Script, st state.State, now time.Time) bool {
	mutated := false

	for id, s := range scripts {
		if s.Schedule.Kind != registry.KindInterval && s.Schedule.Kind != registry.KindTime {
			continue
		}

		entry := st.Entry(id)
		if !due(s, entry, now) {
			continue
		}

		markFired(s, entry, now)
		mutated = true

		trigger := "interval"
		if s.Schedule.Kind == registry.KindTime {
			trigger = "time"
		}
		e.spawn(ctx, s, now, map[string]interface{}{
			"scheduled": true,
			"trigger":   trigger,
		})
	}

	return mutated
}

// fileWatchDispatch implements spec.md §4.7 step 10.
func (e *Engine) fileWatchDispatch(ctx context.Context, scripts map[string]registry.Script, now time.Time) {
	for id, s := range scripts {
		if s.Schedule.Kind != registry.KindFileWatch {
			continue
		}

		if next, ok := e.nextPoll[id]; ok && now.Before(next) {
			continue
		}
		e.nextPoll[id] = now.Add(time.Duration(s.Schedule.File.PollSeconds * float64(time.Second)))

		mtime := statMtime(s.Schedule.File.Path)

		prev, observed := e.lastMtime[id]
		e.lastMtime[id] = mtime

		if !observed {
			continue // first observation never fires, per spec.md §4.7 step 10.
		}
		if mtime.Equal(prev) {
			continue
		}

		e.spawn(ctx, s, now, map[string]interface{}{
			"trigger": "file_watch",
			"path":    s.Schedule.File.Path,
		})
	}
}

// statMtime reads a file's modification time, returning the zero Time if
// the file is missing, per spec.md §4.7 step 10's "0.0 if missing".
func statMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// failedScriptEvent is the minimal shape the on_failure tailer needs out
// of a logstore.Event line, plus the raw decoded object for the payload.
type failedScriptEvent struct {
	ScriptID string
	raw      map[string]interface{}
}

// parseFailedEvents scans newly appended log bytes for ok=false records,
// per spec.md §4.7 step 8. Corrupt lines are skipped, matching the log
// store's own tolerance (spec.md §7).
func parseFailedEvents(data []byte) []failedScriptEvent {
	var out []failedScriptEvent

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}

		ok, _ := raw["ok"].(bool)
		if ok {
			continue
		}

		scriptID, _ := raw["script_id"].(string)
		out = append(out, failedScriptEvent{ScriptID: scriptID, raw: raw})
	}

	return out
}

// ErrScriptNotFound is returned by Trigger when no enabled script with
// the given id is currently discoverable.
var ErrScriptNotFound = errors.New("script not found")

// ErrScriptBusy is returned by Trigger when the script is already running
// and the in-process re-entry guard refuses a concurrent invocation.
var ErrScriptBusy = errors.New("script already running")

// Trigger runs one script on demand, outside the tick's own schedule
// decision, the primitive behind the admin HTTP surface's manual
// "run now" operation (spec.md §6). It goes
// through the same dispatch discipline as every other trigger family —
// the in-process re-entry guard and lock-group acquisition still apply —
// and blocks until the run completes, since an operator-initiated call
// expects a definite answer rather than a fire-and-forget dispatch.
func (e *Engine) Trigger(ctx context.Context, id string) (ok bool, runID string, err error) {
	scripts, err := e.registry.Discover()
	if err != nil {
		return false, "", err
	}

	s, found := scripts[id]
	if !found || !s.Enabled {
		return false, "", ErrScriptNotFound
	}

	return e.dispatchNow(ctx, s, time.Now(), map[string]interface{}{"trigger": "manual"})
}

// dispatchNow runs the shared dispatch discipline of spec.md §4.7.2
// synchronously and reports the outcome, the variant Trigger needs in
// place of spawn's fire-and-forget goroutine.
func (e *Engine) dispatchNow(ctx context.Context, s registry.Script, now time.Time, payload interface{}) (ok bool, runID string, err error) {
	if _, alreadyRunning := e.running.LoadOrStore(s.ID, struct{}{}); alreadyRunning {
		return false, "", ErrScriptBusy
	}
	defer e.running.Delete(s.ID)

	if s.LockGroup != "" && e.lock != nil {
		timeout := 0.0
		if s.LockMode == registry.LockWait {
			timeout = s.LockTimeout
		}

		acquired, release := e.lock.Acquire(s.LockGroup, timeout, 0)
		if !acquired {
			return false, "", fmt.Errorf("lock group %q busy", s.LockGroup)
		}
		defer release()
	}

	timeout := e.defaultTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	ok, runID = e.runner.Run(ctx, s, timeout, payload)

	if s.Schedule.Kind == registry.KindOnFailure {
		e.trackOnFailureOutcome(ctx, s, ok, runID)
	}

	return ok, runID, nil
}

// spawn launches one dispatch concurrently, per spec.md §5: "implementations
// in a threaded/async runtime are free to issue dispatches in parallel" —
// required here since a single script's run may take up to its 20-second
// default timeout while the tick cadence is 0.5s; running dispatches
// in-line would stall every other trigger family. e.inflight lets shutdown
// and tests wait for in-flight runs to settle deterministically.
func (e *Engine) spawn(ctx context.Context, s registry.Script, now time.Time, payload interface{}) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.dispatch(ctx, s, now, payload)
	}()
}

// Wait blocks until every in-flight dispatch launched so far has returned.
// Called by shutdown handling and by tests that need deterministic
// post-tick assertions.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// dispatch implements the common dispatch discipline of spec.md §4.7.2:
// the in-process re-entry guard, optional lock-group acquisition with
// guaranteed release, and the executor call itself.
func (e *Engine) dispatch(ctx context.Context, s registry.Script, now time.Time, payload interface{}) {
	if _, alreadyRunning := e.running.LoadOrStore(s.ID, struct{}{}); alreadyRunning {
		return
	}
	defer e.running.Delete(s.ID)

	if s.LockGroup != "" && e.lock != nil {
		timeout := 0.0
		if s.LockMode == registry.LockWait {
			timeout = s.LockTimeout
		}

		acquired, release := e.lock.Acquire(s.LockGroup, timeout, 0)
		if !acquired {
			if e.logger != nil {
				e.logger.Info(ctx, "lock group busy, dispatch skipped",
					zap.String("script_id", s.ID), zap.String("lock_group", s.LockGroup))
			}
			return // skip note only, no LogEvent, per spec.md §7.
		}
		defer release()
	}

	timeout := e.defaultTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	// The run is detached from ctx's cancellation so stopping the daemon
	// leaves the child bound only by its own wall-clock timeout.
	ok, runID := e.runner.Run(context.WithoutCancel(ctx), s, timeout, payload)

	if s.Schedule.Kind == registry.KindOnFailure {
		e.trackOnFailureOutcome(ctx, s, ok, runID)
	}
}

// onFailureNotifyThreshold is how many consecutive failures of an
// on_failure script itself triggers an alert: a recovery script that fails
// once may just be racing its target; failing twice in a row means the
// recovery path is itself broken and needs an operator's attention.
const onFailureNotifyThreshold = 2

// trackOnFailureOutcome implements the notify supplement named in
// SPEC_FULL.md: an on_failure script that fails onFailureNotifyThreshold
// times in a row raises an alert through the configured Notifier.
func (e *Engine) trackOnFailureOutcome(ctx context.Context, s registry.Script, ok bool, runID string) {
	e.onFailureMu.Lock()
	if ok {
		delete(e.onFailureStreak, s.ID)
		e.onFailureMu.Unlock()
		return
	}

	e.onFailureStreak[s.ID]++
	streak := e.onFailureStreak[s.ID]
	e.onFailureMu.Unlock()

	if streak < onFailureNotifyThreshold {
		return
	}

	text := fmt.Sprintf("triggerd: recovery script %q (target %q) has failed %d times in a row; run_id=%s",
		s.ID, s.Schedule.OnFail.Target, streak, runID)
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logWarn(ctx, "on_failure alert delivery failed", err)
	}
}
