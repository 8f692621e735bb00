// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/seakee/triggerd/app/executor"
	"github.com/seakee/triggerd/app/lock"
	"github.com/seakee/triggerd/app/registry"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every discovered script with its schedule kind and enabled state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			scripts, err := e.registry.Discover()
			if err != nil {
				exitRuntime(err)
			}

			ids := sortedIDs(scripts)
			for _, id := range ids {
				s := scripts[id]
				state := "disabled"
				if s.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-10s %s\n", s.ID, state, s.Schedule.Kind, s.Name)
			}
			return nil
		},
	}
}

func sortedIDs(scripts map[string]registry.Script) []string {
	ids := make([]string, 0, len(scripts))
	for id := range scripts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// newRunCmd implements `run <id>`: a one-shot local execution that bypasses
// the engine's tick loop and re-entry guard entirely, acquiring the
// script's lock group directly, the CLI analogue of a manual invocation
// outside the supervisor (spec.md §6).
func newRunCmd() *cobra.Command {
	var timeoutSecs float64

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a script once locally, without going through a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			scripts, err := e.registry.Discover()
			if err != nil {
				exitRuntime(err)
			}

			s, ok := scripts[id]
			if !ok {
				exitRuntime(fmt.Errorf("script %q not found", id))
			}

			if s.LockGroup != "" {
				timeout := 0.0
				if s.LockMode == registry.LockWait {
					timeout = s.LockTimeout
				}
				result, handle := e.lockBroker().Acquire(s.LockGroup, timeout, 0)
				if !result.Acquired {
					exitRuntime(fmt.Errorf("lock group %q busy", s.LockGroup))
				}
				defer lock.Release(handle)
			}

			runner := executor.New(e.logStore, executor.DefaultCommand)
			timeout := timeoutSecs
			if timeout <= 0 {
				timeout = executor.DefaultTimeoutSeconds
			}

			ok, runID := runner.Run(context.Background(), s, timeout, map[string]interface{}{"trigger": "cli"})
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: ok=%v\n", runID, ok)
			if !ok {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&timeoutSecs, "timeout", 0, "wall-clock timeout in seconds (default: executor.DefaultTimeoutSeconds, 30)")
	return cmd
}

// newTriggerCmd implements `trigger <id>`: like `run`, it executes the
// script once locally through the executor under its lock group. It differs
// in refusing disabled scripts and in taking a --payload (default
// {"trigger":"manual"}). It writes nothing to the scheduler state and does
// not reach a running daemon, since the CLI has no RPC channel into a live
// daemon process (spec.md §6's CLI surface is file/log based, not a
// client of the admin HTTP API by design — operators reach for the admin
// HTTP surface's POST /scripts/:id/trigger when a live round trip is
// needed).
func newTriggerCmd() *cobra.Command {
	var payload string
	var timeoutSecs float64

	cmd := &cobra.Command{
		Use:   "trigger <id>",
		Short: "Alias for run, with an optional JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			scripts, err := e.registry.Discover()
			if err != nil {
				exitRuntime(err)
			}

			s, ok := scripts[id]
			if !ok || !s.Enabled {
				exitRuntime(fmt.Errorf("script %q not found or disabled", id))
			}

			if s.LockGroup != "" {
				timeout := 0.0
				if s.LockMode == registry.LockWait {
					timeout = s.LockTimeout
				}
				result, handle := e.lockBroker().Acquire(s.LockGroup, timeout, 0)
				if !result.Acquired {
					exitRuntime(fmt.Errorf("lock group %q busy", s.LockGroup))
				}
				defer lock.Release(handle)
			}

			var payloadValue interface{} = map[string]interface{}{"trigger": "manual"}
			if payload != "" {
				payloadValue = json.RawMessage(payload)
			}

			runner := executor.New(e.logStore, executor.DefaultCommand)
			timeout := timeoutSecs
			if timeout <= 0 {
				timeout = executor.DefaultTimeoutSeconds
			}

			ok2, runID := runner.Run(context.Background(), s, timeout, payloadValue)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: ok=%v\n", runID, ok2)
			if !ok2 {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&timeoutSecs, "timeout", 0, "wall-clock timeout in seconds")
	cmd.Flags().StringVar(&payload, "payload", "", "raw JSON payload forwarded via CONTROL_CORE_PAYLOAD")
	return cmd
}

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Set a script's enabled flag to true",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(args[0], true)
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Set a script's enabled flag to false",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(args[0], false)
		},
	}
}

func setEnabled(id string, enabled bool) error {
	e, err := loadEnv()
	if err != nil {
		exitRuntime(err)
	}
	if err := e.registry.Update(id, func(m map[string]interface{}) {
		m["enabled"] = enabled
	}); err != nil {
		exitRuntime(err)
	}
	return nil
}

// newInstallCmd implements `install <folder> [--force]`: copies a
// candidate script directory (containing a script.json manifest) into the
// scripts root, refusing to overwrite an existing script id unless --force
// is given, per spec.md §6.
func newInstallCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install <folder>",
		Short: "Copy a script folder into the scripts directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]

			id, _, err := validateManifest(filepath.Join(src, "script.json"))
			if err != nil {
				exitUsage(err.Error())
			}

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			dest := filepath.Join(e.registry.Root(), id)
			if _, statErr := os.Stat(dest); statErr == nil && !force {
				exitRuntime(fmt.Errorf("script %q already installed (use --force to overwrite)", id))
			}

			if err := copyDir(src, dest); err != nil {
				exitRuntime(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "installed %s -> %s\n", id, dest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an already-installed script id")
	return cmd
}

// newValidateCmd implements `validate <folder>`: parses the manifest
// without installing it, reporting whether it would normalize to a real
// schedule or collapse to KindNone (spec.md §4.1's "malformed schedules
// never fire" rule, surfaced to the operator before it bites them).
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <folder>",
		Short: "Parse a candidate script.json and report how it would normalize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, kind, err := validateManifest(filepath.Join(args[0], "script.json"))
			if err != nil {
				exitUsage(err.Error())
			}
			if kind == registry.KindNone {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid manifest, but schedule normalizes to none (script would never fire)\n", id)
				os.Exit(1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, schedule=%s\n", id, kind)
			return nil
		},
	}
}

// validateManifest loads one manifest through a throwaway single-entry
// registry rooted at its parent directory, reusing Registry.Discover's
// normalization rather than re-implementing it.
func validateManifest(path string) (id string, kind registry.Kind, err error) {
	dir := filepath.Dir(path)
	parent := filepath.Dir(dir)
	name := filepath.Base(dir)

	scripts, err := registry.New(parent).Discover()
	if err != nil {
		return "", registry.KindNone, err
	}
	for scriptID, s := range scripts {
		if s.Path == dir || filepath.Base(s.Path) == name {
			return scriptID, s.Schedule.Kind, nil
		}
	}
	return "", registry.KindNone, fmt.Errorf("no parseable script.json under %s", dir)
}

func copyDir(src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, destPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, destPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// newStatusCmd implements `status`: a one-line-per-script summary combining
// the manifest, the last execution log event, and lock state, the CLI's
// closest analogue to the admin HTTP surface's GET /scripts.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize every script's enabled state, schedule, and last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			scripts, err := e.registry.Discover()
			if err != nil {
				exitRuntime(err)
			}

			last, err := e.logStore.LastByScript()
			if err != nil {
				exitRuntime(err)
			}

			for _, id := range sortedIDs(scripts) {
				s := scripts[id]
				state := "disabled"
				if s.Enabled {
					state = "enabled"
				}

				line := fmt.Sprintf("%-24s %-10s %-10s", s.ID, state, s.Schedule.Kind)
				if ev, ok := last[id]; ok {
					ago := time.Since(time.Unix(int64(ev.StartedAt), 0)).Round(time.Second)
					line += fmt.Sprintf("  last_run=%v ago ok=%v", ago, ev.OK)
				} else {
					line += "  last_run=never"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// newScheduleCmd implements `schedule`: prints the normalized schedule
// detail for every script, the same normalization the engine's tick loop
// evaluates each cycle.
func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print every script's normalized schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			scripts, err := e.registry.Discover()
			if err != nil {
				exitRuntime(err)
			}

			for _, id := range sortedIDs(scripts) {
				s := scripts[id]
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", s.ID, describeSchedule(s.Schedule))
			}
			return nil
		},
	}
}

func describeSchedule(sched registry.Schedule) string {
	switch sched.Kind {
	case registry.KindInterval:
		return fmt.Sprintf("interval every %.0fs", sched.Interval.Seconds)
	case registry.KindTime:
		keys := make([]string, 0, len(sched.Time.Times))
		for _, t := range sched.Time.Times {
			keys = append(keys, t.Key)
		}
		return fmt.Sprintf("time %v tz=%s", keys, sched.Time.TZ)
	case registry.KindFileWatch:
		return fmt.Sprintf("file_watch %s poll=%.0fs", sched.File.Path, sched.File.PollSeconds)
	case registry.KindEvent:
		return fmt.Sprintf("event %v apps=%v idle=%.0fs", sched.Event.Events, sched.Event.Apps, sched.Event.IdleSeconds)
	case registry.KindOnFailure:
		return fmt.Sprintf("on_failure target=%s", sched.OnFail.Target)
	default:
		return "none (never fires)"
	}
}

func newLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List lock group files currently present under the locks directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			groups, err := lock.ListGroups(e.lockDir)
			if err != nil {
				exitRuntime(err)
			}
			sort.Strings(groups)
			for _, g := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}
