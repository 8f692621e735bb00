// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package engine

import (
	"time"

	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
)

// due implements the Scheduler decision procedure of spec.md §4.7.1 for
// Interval and Time schedules. All other kinds are not managed here and
// always report not-due.
//
// Returns:
//   - bool: whether the script is due to fire at now.
func due(script registry.Script, entry *state.Script, now time.Time) bool {
	switch script.Schedule.Kind {
	case registry.KindInterval:
		return dueInterval(script.Schedule.Interval, entry, now)
	case registry.KindTime:
		return dueTime(script.Schedule.Time, entry, now)
	default:
		return false
	}
}

func dueInterval(spec registry.IntervalSpec, entry *state.Script, now time.Time) bool {
	if entry.LastFiredAt == nil {
		return true
	}
	lastFired := time.Unix(0, int64(*entry.LastFiredAt*float64(time.Second)))
	return now.Sub(lastFired).Seconds() >= spec.Seconds
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// scheduleLocation resolves a Time schedule's tz field, falling back to
// America/New_York per spec.md §4.7.1 when tz is blank or unrecognized.
// dueTime and markFired must use the same fallback so they compute the same
// day key for a given script.
func scheduleLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, err = time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
	}
	return loc
}

func dueTime(spec registry.TimeSpec, entry *state.Script, now time.Time) bool {
	loc := scheduleLocation(spec.TZ)

	nowDT := now.In(loc)
	todayKey := nowDT.Format("2006-01-02")

	if len(spec.Days) > 0 && !containsInt(spec.Days, isoWeekday(nowDT.Weekday())) {
		return false
	}
	if len(spec.Months) > 0 && !containsInt(spec.Months, int(nowDT.Month())) {
		return false
	}
	if len(spec.DOM) > 0 && !containsInt(spec.DOM, nowDT.Day()) {
		return false
	}

	firedToday := map[string]bool{}
	if entry.LastFiredDay == todayKey {
		for _, k := range entry.FiredTimes {
			firedToday[k] = true
		}
	}

	for _, t := range spec.Times {
		firingPoint := time.Date(nowDT.Year(), nowDT.Month(), nowDT.Day(), t.Hour, t.Minute, 0, 0, loc)
		if nowDT.Before(firingPoint) {
			continue
		}
		if firedToday[t.Key] {
			continue
		}

		entry.PendingTimeKey = t.Key
		entry.PendingDay = todayKey
		return true
	}

	return false
}

// isoWeekday maps Go's time.Weekday (Sunday=0) onto spec.md's
// 1=Monday..7=Sunday convention.
func isoWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// markFired updates entry after a successful dispatch, per spec.md
// §4.7.1's mark_fired.
func markFired(script registry.Script, entry *state.Script, firedAt time.Time) {
	switch script.Schedule.Kind {
	case registry.KindInterval:
		v := epochSeconds(firedAt)
		entry.LastFiredAt = &v

	case registry.KindTime:
		loc := scheduleLocation(script.Schedule.Time.TZ)
		todayKey := firedAt.In(loc).Format("2006-01-02")

		if entry.LastFiredDay != todayKey {
			entry.LastFiredDay = todayKey
			entry.FiredTimes = nil
		}

		if entry.PendingTimeKey != "" {
			if !containsString(entry.FiredTimes, entry.PendingTimeKey) {
				entry.FiredTimes = append(entry.FiredTimes, entry.PendingTimeKey)
			}
			entry.PendingTimeKey = ""
		}
		entry.PendingDay = ""
	}
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
