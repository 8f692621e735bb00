// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package probe implements the three read-only Event Probes of spec.md
// §4.6: idle_seconds, running_apps, and local_ip. Each is advisory and
// side-effect-free; a probe that cannot answer returns an "unknown" zero
// value rather than erroring, so a headless system never crashes the
// engine (spec.md §9's "Platform-specific probes" note).
package probe

import "context"

// IdleProbe reports seconds since last user input.
type IdleProbe interface {
	// IdleSeconds returns the idle duration, or ok=false when the platform
	// cannot answer (spec.md §4.6).
	IdleSeconds(ctx context.Context) (seconds float64, ok bool)
}

// AppsProbe reports the set of currently running "applications".
type AppsProbe interface {
	// RunningApps returns names of running applications; never errors —
	// an unavailable probe returns an empty set.
	RunningApps(ctx context.Context) map[string]bool
}

// NetworkProbe reports whether a default route is currently reachable.
type NetworkProbe interface {
	// LocalIP returns an IP associated with the default outbound route, or
	// ok=false when unreachable within a short timeout.
	LocalIP(ctx context.Context) (ip string, ok bool)
}

// NoopIdleProbe always reports "unknown", the safe default for headless
// systems with no idle-time source (spec.md §9).
type NoopIdleProbe struct{}

func (NoopIdleProbe) IdleSeconds(context.Context) (float64, bool) { return 0, false }

// NoopAppsProbe always reports an empty running-app set.
type NoopAppsProbe struct{}

func (NoopAppsProbe) RunningApps(context.Context) map[string]bool { return map[string]bool{} }
