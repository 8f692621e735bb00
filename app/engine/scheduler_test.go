// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package engine

import (
	"testing"
	"time"

	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
)

func TestDueIntervalFiresOnSchedule(t *testing.T) {
	script := registry.Script{Schedule: registry.Schedule{
		Kind:     registry.KindInterval,
		Interval: registry.IntervalSpec{Seconds: 2},
	}}
	entry := &state.Script{}

	t0 := time.Unix(0, 0)
	if !due(script, entry, t0) {
		t.Fatalf("expected due at t=0 with empty state")
	}
	markFired(script, entry, t0)

	if due(script, entry, t0.Add(1500*time.Millisecond)) {
		t.Fatalf("expected not due at t=1.5s")
	}
	if !due(script, entry, t0.Add(2100*time.Millisecond)) {
		t.Fatalf("expected due at t=2.1s")
	}
}

func TestDueTimeWeekdayRestriction(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	script := registry.Script{Schedule: registry.Schedule{
		Kind: registry.KindTime,
		Time: registry.TimeSpec{
			Times: []registry.TimeOfDay{{Hour: 9, Minute: 0, Key: "09:00"}},
			TZ:    "America/New_York",
			Days:  []int{1, 2, 3, 4, 5},
		},
	}}
	entry := &state.Script{}

	saturday905 := time.Date(2024, 1, 6, 9, 5, 0, 0, loc) // a Saturday.
	if due(script, entry, saturday905) {
		t.Fatalf("expected not due on Saturday")
	}

	monday0859 := time.Date(2024, 1, 8, 8, 59, 0, 0, loc)
	if due(script, entry, monday0859) {
		t.Fatalf("expected not due before 09:00 on Monday")
	}

	monday090001 := time.Date(2024, 1, 8, 9, 0, 1, 0, loc)
	if !due(script, entry, monday090001) {
		t.Fatalf("expected due just after 09:00 on Monday")
	}
	markFired(script, entry, monday090001)

	if entry.LastFiredDay != "2024-01-08" {
		t.Fatalf("expected last fired day recorded, got %q", entry.LastFiredDay)
	}
	if len(entry.FiredTimes) != 1 || entry.FiredTimes[0] != "09:00" {
		t.Fatalf("expected fired_times to record 09:00, got %v", entry.FiredTimes)
	}

	monday090002 := time.Date(2024, 1, 8, 9, 0, 2, 0, loc)
	if due(script, entry, monday090002) {
		t.Fatalf("expected not due again later the same Monday")
	}
}

func TestDueTimeResetsAcrossDays(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	script := registry.Script{Schedule: registry.Schedule{
		Kind: registry.KindTime,
		Time: registry.TimeSpec{
			Times: []registry.TimeOfDay{{Hour: 12, Minute: 0, Key: "12:00"}},
			TZ:    "UTC",
		},
	}}
	entry := &state.Script{}

	day1 := time.Date(2024, 1, 1, 12, 0, 1, 0, loc)
	if !due(script, entry, day1) {
		t.Fatalf("expected due on day 1")
	}
	markFired(script, entry, day1)

	day1later := time.Date(2024, 1, 1, 18, 0, 0, 0, loc)
	if due(script, entry, day1later) {
		t.Fatalf("expected not due again later on day 1")
	}

	day2 := time.Date(2024, 1, 2, 12, 0, 1, 0, loc)
	if !due(script, entry, day2) {
		t.Fatalf("expected due again on day 2")
	}
}

func TestDueUnmanagedKindsAlwaysFalse(t *testing.T) {
	entry := &state.Script{}
	for _, kind := range []registry.Kind{registry.KindNone, registry.KindFileWatch, registry.KindEvent, registry.KindOnFailure} {
		script := registry.Script{Schedule: registry.Schedule{Kind: kind}}
		if due(script, entry, time.Now()) {
			t.Fatalf("expected kind %v to never be due via the scheduler", kind)
		}
	}
}

func TestIsoWeekdayMapping(t *testing.T) {
	cases := map[time.Weekday]int{
		time.Monday:    1,
		time.Tuesday:   2,
		time.Wednesday: 3,
		time.Thursday:  4,
		time.Friday:    5,
		time.Saturday:  6,
		time.Sunday:    7,
	}
	for w, want := range cases {
		if got := isoWeekday(w); got != want {
			t.Fatalf("isoWeekday(%v) = %d, want %d", w, got, want)
		}
	}
}
