// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seakee/triggerd/app/logstore"
)

// newTailCmd implements `tail [n]`: prints the last n log lines then
// follows new appends until interrupted, reusing logstore's own
// TailFollow primitive (spec.md §4.3/§6).
func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail [n]",
		Short: "Print the last n log lines and follow new ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := parseOptionalInt(args, 0, 20)

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			done := make(chan struct{})
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGTERM, os.Interrupt)
			go func() {
				<-sig
				close(done)
			}()

			if err := e.logStore.TailFollow(n, cmd.OutOrStdout(), done, 500*time.Millisecond); err != nil {
				exitRuntime(err)
			}
			return nil
		},
	}
}

// newStatsCmd implements `stats [n]`: summarizes ok/fail counts and mean
// duration across the last n run events, per spec.md §6.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [n]",
		Short: "Summarize ok/fail counts and durations across the last n runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := parseOptionalInt(args, 0, 200)

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			events, err := e.logStore.Recent(n)
			if err != nil {
				exitRuntime(err)
			}

			var ok, fail int
			var totalDuration float64
			for _, ev := range events {
				if ev.OK {
					ok++
				} else {
					fail++
				}
				totalDuration += ev.EndedAt - ev.StartedAt
			}

			avg := 0.0
			if len(events) > 0 {
				avg = totalDuration / float64(len(events))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "runs=%d ok=%d fail=%d avg_duration=%.2fs\n", len(events), ok, fail, avg)
			return nil
		},
	}
}

// newHistoryCmd implements `history <id> [n]`: the per-script equivalent
// of stats, listing individual run outcomes from the local log rather
// than the optional MySQL report sink (spec.md §6).
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id> [n]",
		Short: "List the last n run events for one script",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			n := parseOptionalInt(args[1:], 0, 20)

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			events, err := e.logStore.Recent(0)
			if err != nil {
				exitRuntime(err)
			}

			matched := filterByScript(events, id)
			if len(matched) > n {
				matched = matched[len(matched)-n:]
			}

			for _, ev := range matched {
				printEvent(cmd, ev)
			}
			return nil
		},
	}
}

// newReportCmd implements `report [n] [--script <id>] [--minutes <m>]
// [--fails-only]`: a filtered window over the local log, per spec.md §6.
func newReportCmd() *cobra.Command {
	var scriptID string
	var minutes int
	var failsOnly bool

	cmd := &cobra.Command{
		Use:   "report [n]",
		Short: "Print a filtered window of run events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := parseOptionalInt(args, 0, 100)

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			events, err := e.logStore.Recent(0)
			if err != nil {
				exitRuntime(err)
			}

			if scriptID != "" {
				events = filterByScript(events, scriptID)
			}
			if minutes > 0 {
				cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
				events = filterSince(events, cutoff)
			}
			if failsOnly {
				events = filterFailed(events)
			}
			if len(events) > n {
				events = events[len(events)-n:]
			}

			for _, ev := range events {
				printEvent(cmd, ev)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scriptID, "script", "", "restrict to one script id")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "restrict to events started within the last m minutes")
	cmd.Flags().BoolVar(&failsOnly, "fails-only", false, "restrict to failed runs")
	return cmd
}

// newExportCmd implements `export <csv> [max]`: writes up to max trailing
// run events to a CSV file, per spec.md §6.
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <csv> [max]",
		Short: "Export run events to a CSV file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			max := parseOptionalInt(args[1:], 0, 1000)

			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			events, err := e.logStore.Recent(max)
			if err != nil {
				exitRuntime(err)
			}

			f, err := os.Create(path)
			if err != nil {
				exitRuntime(err)
			}
			defer f.Close()

			w := csv.NewWriter(f)
			defer w.Flush()

			if err := w.Write([]string{"run_id", "script_id", "script_name", "started_at", "ended_at", "ok", "exit_code", "timeout", "error"}); err != nil {
				exitRuntime(err)
			}

			for _, ev := range events {
				exitCode := ""
				if ev.ExitCode != nil {
					exitCode = strconv.Itoa(*ev.ExitCode)
				}
				row := []string{
					ev.RunID, ev.ScriptID, ev.ScriptName,
					strconv.FormatFloat(ev.StartedAt, 'f', 3, 64),
					strconv.FormatFloat(ev.EndedAt, 'f', 3, 64),
					strconv.FormatBool(ev.OK), exitCode,
					strconv.FormatBool(ev.Timeout), ev.Error,
				}
				if err := w.Write(row); err != nil {
					exitRuntime(err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", len(events), path)
			return nil
		},
	}
}

// newRotateLogsCmd implements `rotate-logs`: moves the active log file
// aside with a timestamp suffix, letting the next Append start a fresh
// file, per spec.md §6 (the executor and engine only ever append, so
// rotation is an operator-driven action, not automatic).
func newRotateLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-logs",
		Short: "Rotate the active execution log file aside",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				exitRuntime(err)
			}

			active := filepath.Join(e.dataDir, "logs.jsonl")
			if _, err := os.Stat(active); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active log file to rotate")
				return nil
			}

			rotated := filepath.Join(e.dataDir, fmt.Sprintf("logs-%s.jsonl", time.Now().UTC().Format("20060102T150405Z")))
			if err := os.Rename(active, rotated); err != nil {
				exitRuntime(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "rotated %s -> %s\n", active, rotated)
			return nil
		},
	}
}

func filterByScript(events []logstore.Event, id string) []logstore.Event {
	out := make([]logstore.Event, 0, len(events))
	for _, ev := range events {
		if ev.ScriptID == id {
			out = append(out, ev)
		}
	}
	return out
}

func filterSince(events []logstore.Event, cutoff time.Time) []logstore.Event {
	threshold := float64(cutoff.Unix())
	out := make([]logstore.Event, 0, len(events))
	for _, ev := range events {
		if ev.StartedAt >= threshold {
			out = append(out, ev)
		}
	}
	return out
}

func filterFailed(events []logstore.Event) []logstore.Event {
	out := make([]logstore.Event, 0, len(events))
	for _, ev := range events {
		if !ev.OK {
			out = append(out, ev)
		}
	}
	return out
}

func printEvent(cmd *cobra.Command, ev logstore.Event) {
	when := time.Unix(int64(ev.StartedAt), 0).Format(time.RFC3339)
	fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-20s ok=%-5v %s\n", when, ev.ScriptID, ev.OK, ev.RunID)
}

// parseOptionalInt parses args[idx] as an int, falling back to def when
// the slice is too short or the value doesn't parse.
func parseOptionalInt(args []string, idx, def int) int {
	if idx >= len(args) {
		return def
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil || n <= 0 {
		return def
	}
	return n
}
