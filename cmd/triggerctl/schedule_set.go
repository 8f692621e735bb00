// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// newSetIntervalCmd implements `set-interval <id> <seconds>`, rewriting the
// manifest's schedule field to the interval shape (spec.md §4.1/§6).
func newSetIntervalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-interval <id> <seconds>",
		Short: "Rewrite a script's schedule to fire every N seconds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				exitUsage("seconds must be numeric: " + err.Error())
			}

			return updateSchedule(args[0], map[string]interface{}{
				"type":    "interval",
				"seconds": seconds,
			})
		},
	}
}

// newSetTimeCmd implements `set-time <id> HH:MM[,HH:MM...] [--tz] [--dow]
// [--month] [--dom]`, per spec.md §4.1/§6.
func newSetTimeCmd() *cobra.Command {
	var tz string
	var dow string
	var month string
	var dom string

	cmd := &cobra.Command{
		Use:   "set-time <id> HH:MM[,HH:MM...]",
		Short: "Rewrite a script's schedule to fire at one or more times of day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched := map[string]interface{}{
				"type": "time",
				"at":   splitCSV(args[1]),
			}
			if tz != "" {
				sched["tz"] = tz
			}
			if dow != "" {
				sched["days"] = splitCSVInts(dow)
			}
			if month != "" {
				sched["months"] = splitCSVInts(month)
			}
			if dom != "" {
				sched["dom"] = splitCSVInts(dom)
			}
			return updateSchedule(args[0], sched)
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone name (default America/New_York)")
	cmd.Flags().StringVar(&dow, "dow", "", "comma-separated days of week, 1=Monday..7=Sunday")
	cmd.Flags().StringVar(&month, "month", "", "comma-separated months, 1..12")
	cmd.Flags().StringVar(&dom, "dom", "", "comma-separated days of month, 1..31 (only meaningful with --month)")
	return cmd
}

// newSetIdleCmd implements `set-idle <id> <seconds>`: a convenience wrapper
// around the event schedule's idle_seconds field (spec.md §4.1).
func newSetIdleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-idle <id> <seconds>",
		Short: "Rewrite a script's schedule to fire after N seconds of idle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				exitUsage("seconds must be numeric: " + err.Error())
			}
			return updateSchedule(args[0], map[string]interface{}{
				"type":         "event",
				"events":       []string{"idle"},
				"idle_seconds": seconds,
			})
		},
	}
}

func newSetAppOpenCmd() *cobra.Command {
	return newAppEventCmd("set-app-open", "app_open", "Rewrite a script's schedule to fire when any of the given apps opens")
}

func newSetAppCloseCmd() *cobra.Command {
	return newAppEventCmd("set-app-close", "app_close", "Rewrite a script's schedule to fire when any of the given apps closes")
}

// newAppEventCmd backs set-app-open/set-app-close: `<cmd> <id> <apps|*>`,
// per spec.md §4.1's EventApp family ("apps" empty/absent means any name,
// "*" is the explicit spelling of that).
func newAppEventCmd(use, eventType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <apps|*>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched := map[string]interface{}{
				"type":   "event",
				"events": []string{eventType},
			}
			if args[1] != "*" {
				sched["apps"] = splitCSV(args[1])
			}
			return updateSchedule(args[0], sched)
		},
	}
}

func newSetNetworkUpCmd() *cobra.Command {
	return newNetworkEventCmd("set-network-up", "network_up", "Rewrite a script's schedule to fire when the network comes up")
}

func newSetNetworkDownCmd() *cobra.Command {
	return newNetworkEventCmd("set-network-down", "network_down", "Rewrite a script's schedule to fire when the network goes down")
}

func newNetworkEventCmd(use, eventType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSchedule(args[0], map[string]interface{}{
				"type":   "event",
				"events": []string{eventType},
			})
		},
	}
}

// updateSchedule replaces a script's manifest "schedule" field wholesale,
// the CLI's counterpart to registry.Update's closure-based mutation
// contract (spec.md §4.1/§9).
func updateSchedule(id string, schedule map[string]interface{}) error {
	e, err := loadEnv()
	if err != nil {
		exitRuntime(err)
	}
	if err := e.registry.Update(id, func(m map[string]interface{}) {
		m["schedule"] = schedule
	}); err != nil {
		exitRuntime(err)
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitCSVInts(raw string) []int {
	strs := splitCSV(raw)
	out := make([]int, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.Atoi(s)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}
