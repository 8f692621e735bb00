// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package executor implements the Script Executor (spec.md §4.2): it runs
// one script once, in a separate OS process for fault isolation, enforcing
// a wall-clock timeout and capturing stdio, and writes exactly one
// logstore.Event regardless of outcome.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/registry"
)

const (
	// PayloadEnvVar is the environment variable the spawned process
	// receives its JSON-encoded payload through, per spec.md §6.
	PayloadEnvVar = "CONTROL_CORE_PAYLOAD"

	// DefaultTimeoutSeconds is applied when callers don't specify one,
	// per spec.md §4.2.
	DefaultTimeoutSeconds = 30.0
)

// Runner spawns scripts as child processes. The command func passed to New
// is the seam tests use to control what gets spawned; production code
// passes DefaultCommand (or nil), whose entrypoint-to-command mapping is the
// one platform-specific piece spec.md §4.2 calls out ("the spawn mechanism
// is platform-specific but must be process-level").
type Runner struct {
	logStore *logstore.Store
	command  func(entrypoint string) (*exec.Cmd, error)
}

// New creates a Runner that appends every outcome to logStore.
//
// Parameters:
//   - logStore: append-only log the executor writes exactly one event to
//     per run, regardless of outcome.
//   - command: builds the *exec.Cmd for a script's entrypoint string
//     (shape "module:symbol", spec.md §3/§6). Passing nil uses
//     DefaultCommand.
func New(logStore *logstore.Store, command func(entrypoint string) (*exec.Cmd, error)) *Runner {
	if command == nil {
		command = DefaultCommand
	}
	return &Runner{logStore: logStore, command: command}
}

// DefaultCommand maps a "module:symbol" entrypoint to a shell invocation of
// the module, passing the symbol as its sole argument. Real deployments
// typically point `module` at an interpreter wrapper script; this keeps
// the executor itself interpreter-agnostic, per spec.md §3's "opaque
// locator consumed only by the executor".
func DefaultCommand(entrypoint string) (*exec.Cmd, error) {
	module, symbol, ok := strings.Cut(entrypoint, ":")
	if !ok {
		return nil, errInvalidEntrypoint(entrypoint)
	}
	return exec.Command(module, symbol), nil
}

type errInvalidEntrypoint string

func (e errInvalidEntrypoint) Error() string {
	return "invalid entrypoint (want \"module:symbol\"): " + string(e)
}

// procAttrSetter puts a spawned process into its own process group so
// killProcessTree can terminate it and any children it spawned. Set by
// process_unix.go's init.
var procAttrSetter func(cmd *exec.Cmd)

// Run executes one run of script with payload, enforcing timeoutSeconds as
// a wall-clock deadline, per spec.md §4.2's contract. It never panics or
// returns an error to the caller: every outcome (success, non-zero exit,
// timeout, spawn failure) is captured as exactly one logstore.Event.
//
// Parameters:
//   - ctx: caller's context; cancellation also aborts the run.
//   - script: normalized script to execute.
//   - timeoutSeconds: wall-clock deadline; DefaultTimeoutSeconds when <= 0.
//   - payload: arbitrary JSON-able value passed via PayloadEnvVar.
//
// Returns:
//   - ok: whether the run is considered successful, per spec.md §3's
//     invariant (ok == exit 0 and no timeout and no spawn error).
//   - runID: the UUID minted for this run.
func (r *Runner) Run(ctx context.Context, script registry.Script, timeoutSeconds float64, payload interface{}) (ok bool, runID string) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}

	runID = uuid.NewString()
	started := time.Now()

	event := logstore.Event{
		RunID:          runID,
		ScriptID:       script.ID,
		ScriptName:     script.Name,
		StartedAt:      floatUnix(started),
		TimeoutSeconds: timeoutSeconds,
	}

	ok = r.execute(ctx, script, timeoutSeconds, payload, &event)

	event.EndedAt = floatUnix(time.Now())
	event.OK = ok

	// Regardless of outcome, append exactly one LogEvent (spec.md §4.2).
	// A log-store write failure must not propagate: it would otherwise
	// starve every other trigger family sharing this tick (spec.md §7).
	_ = r.logStore.Append(event)

	return ok, runID
}

// execute performs the actual spawn/wait/capture, filling in event's
// outcome fields, and returns whether the run succeeded.
func (r *Runner) execute(ctx context.Context, script registry.Script, timeoutSeconds float64, payload interface{}, event *logstore.Event) bool {
	cmd, err := r.command(script.Entrypoint)
	if err != nil {
		event.Error = err.Error()
		return false
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}
	cmd.Env = append(cmd.Environ(), PayloadEnvVar+"="+string(payloadJSON))
	if procAttrSetter != nil {
		procAttrSetter(cmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds*float64(time.Second)))
	defer cancel()

	if err := cmd.Start(); err != nil {
		event.Error = err.Error()
		event.Stdout = stdout.String()
		event.Stderr = stderr.String()
		return false
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		killProcessTree(cmd)
		<-done // reap the process so it doesn't remain a zombie.
		event.Timeout = true
		event.Stdout = stdout.String()
		event.Stderr = stderr.String()
		return false

	case err := <-done:
		event.Stdout = stdout.String()
		event.Stderr = stderr.String()

		if err == nil {
			code := 0
			event.ExitCode = &code
			return true
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			event.ExitCode = &code
			return false
		}

		event.Error = err.Error()
		return false
	}
}

func floatUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
