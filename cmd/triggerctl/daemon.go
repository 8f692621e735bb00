// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seakee/triggerd/app/pkg/pidfile"
)

// newDaemonStatusCmd implements `daemon-status`: reports whether the pid
// recorded in data/daemon.pid still belongs to a live process, per
// spec.md §6's pid-file contract.
func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-status",
		Short: "Report whether the daemon recorded in daemon.pid is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			pid, running, err := daemonPID(e)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not running (no pid file)")
				os.Exit(1)
			}

			if !running {
				fmt.Fprintf(cmd.OutOrStdout(), "not running (stale pid %d)\n", pid)
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "running (pid %d)\n", pid)
			return nil
		},
	}
}

// newStopDaemonCmd implements `stop-daemon`: sends SIGTERM to the pid
// recorded in daemon.pid, letting main.go's signal handler drive a clean
// shutdown (spec.md §6).
func newStopDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-daemon",
		Short: "Send SIGTERM to the running daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			pid, running, err := daemonPID(e)
			if err != nil || !running {
				exitRuntime(fmt.Errorf("daemon not running"))
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				exitRuntime(fmt.Errorf("signal pid %d: %w", pid, err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to pid %d\n", pid)
			return nil
		},
	}
}

// daemonPID reads data/daemon.pid and checks process liveness with
// signal 0, the standard process-exists probe.
func daemonPID(e *env) (pid int, running bool, err error) {
	pid, err = pidfile.Read(filepath.Join(e.dataDir, "daemon.pid"))
	if err != nil {
		return 0, false, err
	}

	if err := syscall.Kill(pid, 0); err != nil {
		return pid, false, nil
	}
	return pid, true, nil
}
