// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package main implements triggerctl, the thin local CLI over a triggerd
// deployment's on-disk state (spec.md §6): it reads and edits manifests,
// reads the execution log, and drives one-shot runs without needing a
// running daemon, the local-host counterpart to the admin HTTP surface.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seakee/triggerd/app"
	"github.com/seakee/triggerd/app/lock"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
)

// env bundles the on-disk stores every subcommand operates against,
// resolved once from the loaded configuration.
type env struct {
	registry *registry.Registry
	logStore *logstore.Store
	state    *state.Store
	lockDir  string
	dataDir  string
}

// loadEnv reads bin/configs/<RUN_ENV>.json and resolves the stores rooted
// at its Engine/Locks settings, per spec.md §6's external interfaces.
func loadEnv() (*env, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &env{
		registry: registry.New(cfg.Engine.ScriptsDir),
		logStore: logstore.New(filepath.Join(cfg.Engine.DataDir, "logs.jsonl")),
		state:    state.New(filepath.Join(cfg.Engine.DataDir, "sched_state.json")),
		lockDir:  cfg.Locks.Dir,
		dataDir:  cfg.Engine.DataDir,
	}, nil
}

func (e *env) lockBroker() *lock.Broker {
	return lock.New(e.lockDir)
}

// exitUsage reports a usage error and exits 2, per spec.md §6's exit code
// contract.
func exitUsage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

// exitRuntime reports a runtime error and exits 1, per spec.md §6's exit
// code contract.
func exitRuntime(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func main() {
	root := &cobra.Command{
		Use:           "triggerctl",
		Short:         "Operate a triggerd deployment's scripts, schedules, and logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListCmd(),
		newRunCmd(),
		newTriggerCmd(),
		newEnableCmd(),
		newDisableCmd(),
		newInstallCmd(),
		newValidateCmd(),
		newStatusCmd(),
		newScheduleCmd(),
		newLocksCmd(),
		newSetIntervalCmd(),
		newSetTimeCmd(),
		newSetIdleCmd(),
		newSetAppOpenCmd(),
		newSetAppCloseCmd(),
		newSetNetworkUpCmd(),
		newSetNetworkDownCmd(),
		newTailCmd(),
		newStatsCmd(),
		newHistoryCmd(),
		newRotateLogsCmd(),
		newExportCmd(),
		newReportCmd(),
		newDaemonStatusCmd(),
		newStopDaemonCmd(),
	)

	if err := root.Execute(); err != nil {
		exitRuntime(err)
	}
}
