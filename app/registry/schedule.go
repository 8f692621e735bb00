// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package registry

import (
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the normalized Schedule variant.
type Kind int

const (
	// KindNone is the empty schedule: the script carrying it never fires.
	KindNone Kind = iota
	KindInterval
	KindTime
	KindFileWatch
	KindEvent
	KindOnFailure
)

// String renders Kind the way manifests and the admin HTTP surface name
// these variants, so JSON responses and CLI output read as "interval" or
// "on_failure" instead of a bare iota.
func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindTime:
		return "time"
	case KindFileWatch:
		return "file_watch"
	case KindEvent:
		return "event"
	case KindOnFailure:
		return "on_failure"
	default:
		return "none"
	}
}

// MarshalJSON renders Kind as its string name in API/CLI JSON output.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// EventType enumerates the discrete or continuous system signals an Event
// schedule may subscribe to.
type EventType string

const (
	EventIdle       EventType = "idle"
	EventAppOpen    EventType = "app_open"
	EventAppClose   EventType = "app_close"
	EventNetworkUp  EventType = "network_up"
	EventNetworkDown EventType = "network_down"
)

// TimeOfDay is a normalized "HH:MM" trigger point.
type TimeOfDay struct {
	Hour   int
	Minute int
	Key    string // canonical "HH:MM" form, zero-padded.
}

// Schedule is the closed, tagged-variant normalization of a manifest's raw
// "schedule" JSON field, per spec.md §3/§4.1. Exactly one of the *Spec
// fields is meaningful, selected by Kind. A malformed or unrecognized raw
// schedule normalizes to Kind == KindNone, per spec.md: "Malformed schedules
// normalize to 'no schedule'; such scripts never fire."
type Schedule struct {
	Kind Kind

	Interval IntervalSpec
	Time     TimeSpec
	File     FileWatchSpec
	Event    EventSpec
	OnFail   OnFailureSpec
}

type IntervalSpec struct {
	Seconds float64
}

type TimeSpec struct {
	Times []TimeOfDay
	TZ    string
	Days  []int // 1=Monday..7=Sunday, sorted & deduped.
	Months []int // 1..12, sorted & deduped.
	DOM   []int // 1..31, sorted & deduped; only meaningful together with Months.
}

type FileWatchSpec struct {
	Path        string
	PollSeconds float64
}

type EventSpec struct {
	Events []EventType
	IdleSeconds float64 // required iff EventIdle present.
	Apps        []string // empty/absent ⇒ any app name.
}

type OnFailureSpec struct {
	Target string // script id, or "*" for any.
}

// HasEvent reports whether this EventSpec subscribes to the given event type.
func (es EventSpec) HasEvent(t EventType) bool {
	for _, e := range es.Events {
		if e == t {
			return true
		}
	}
	return false
}

// rawSchedule is the untyped JSON shape a script.json's "schedule" field
// is decoded into before normalization, matching spec.md §9's note that the
// source keeps schedules as dynamic maps with a type discriminator.
type rawSchedule struct {
	Type string `json:"type"`

	// Interval
	Seconds float64 `json:"seconds"`

	// Time
	At     interface{} `json:"at"`
	TZ     string      `json:"tz"`
	Days   interface{} `json:"days"`
	Months interface{} `json:"months"`
	DOM    interface{} `json:"dom"`

	// FileWatch
	Path        string  `json:"path"`
	PollSeconds float64 `json:"poll_seconds"`

	// Event
	Events      interface{} `json:"events"`
	LegacyEvent interface{} `json:"event"` // legacy alias, per spec.md §9 Open Question.
	IdleSeconds float64     `json:"idle_seconds"`
	Apps        interface{} `json:"apps"`

	// OnFailure
	Target string `json:"target"`
}

const defaultTZ = "America/New_York"

var allowedEvents = map[string]EventType{
	"idle":         EventIdle,
	"app_open":     EventAppOpen,
	"app_close":    EventAppClose,
	"network_up":   EventNetworkUp,
	"network_down": EventNetworkDown,
}

// normalizeSchedule converts a raw, untyped "schedule" field into the closed
// Schedule variant, per spec.md §4.1's per-type normalization rules. Any
// structural problem collapses the result to KindNone rather than erroring,
// matching the "never fatal to the engine" error-handling stance of §7.
func normalizeSchedule(raw map[string]interface{}) Schedule {
	if raw == nil {
		return Schedule{Kind: KindNone}
	}

	var r rawSchedule
	if err := remarshal(raw, &r); err != nil {
		return Schedule{Kind: KindNone}
	}

	switch r.Type {
	case "interval":
		return normalizeInterval(r)
	case "time":
		return normalizeTime(r)
	case "file_watch", "filewatch":
		return normalizeFileWatch(r)
	case "event":
		return normalizeEvent(r)
	case "on_failure", "onfailure":
		return normalizeOnFailure(r)
	default:
		return Schedule{Kind: KindNone}
	}
}

func normalizeInterval(r rawSchedule) Schedule {
	if r.Seconds <= 0 {
		return Schedule{Kind: KindNone}
	}
	return Schedule{Kind: KindInterval, Interval: IntervalSpec{Seconds: r.Seconds}}
}

func normalizeTime(r rawSchedule) Schedule {
	times := normalizeTimesOfDay(stringOrList(r.At))
	if len(times) == 0 {
		return Schedule{Kind: KindNone}
	}

	tz := r.TZ
	if tz == "" {
		tz = defaultTZ
	}

	days := normalizeIntList(r.Days, 1, 7)
	months := normalizeIntList(r.Months, 1, 12)
	var dom []int
	if len(months) > 0 {
		dom = normalizeIntList(r.DOM, 1, 31)
	}

	return Schedule{
		Kind: KindTime,
		Time: TimeSpec{
			Times:  times,
			TZ:     tz,
			Days:   days,
			Months: months,
			DOM:    dom,
		},
	}
}

func normalizeFileWatch(r rawSchedule) Schedule {
	if r.Path == "" {
		return Schedule{Kind: KindNone}
	}

	poll := r.PollSeconds
	if poll <= 0 {
		poll = 1.0
	}

	return Schedule{Kind: KindFileWatch, File: FileWatchSpec{Path: r.Path, PollSeconds: poll}}
}

func normalizeEvent(r rawSchedule) Schedule {
	raw := r.Events
	if raw == nil {
		raw = r.LegacyEvent // legacy "event" key, per spec.md §9 Open Question.
	}

	names := stringOrList(raw)
	var events []EventType
	seen := map[EventType]bool{}
	for _, n := range names {
		if ev, ok := allowedEvents[strings.ToLower(strings.TrimSpace(n))]; ok && !seen[ev] {
			events = append(events, ev)
			seen[ev] = true
		}
	}
	if len(events) == 0 {
		return Schedule{Kind: KindNone}
	}

	needsIdle := seen[EventIdle]
	if needsIdle && r.IdleSeconds <= 0 {
		return Schedule{Kind: KindNone}
	}

	return Schedule{
		Kind: KindEvent,
		Event: EventSpec{
			Events:      events,
			IdleSeconds: r.IdleSeconds,
			Apps:        stringOrList(r.Apps),
		},
	}
}

func normalizeOnFailure(r rawSchedule) Schedule {
	target := r.Target
	if target == "" {
		target = "*"
	}
	return Schedule{Kind: KindOnFailure, OnFail: OnFailureSpec{Target: target}}
}

// normalizeTimesOfDay parses "HH:MM" (optionally "HH:MM:SS", seconds
// dropped) strings into sorted, deduped TimeOfDay values, skipping anything
// that doesn't conform.
func normalizeTimesOfDay(raw []string) []TimeOfDay {
	seen := map[string]bool{}
	var out []TimeOfDay
	for _, s := range raw {
		s = strings.TrimSpace(s)
		parts := strings.Split(s, ":")
		if len(parts) < 2 {
			continue
		}
		hh, err1 := strconv.Atoi(parts[0])
		mm, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			continue
		}
		key := formatHHMM(hh, mm)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, TimeOfDay{Hour: hh, Minute: mm, Key: key})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out
}

func formatHHMM(hh, mm int) string {
	return pad2(hh) + ":" + pad2(mm)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// normalizeIntList coerces an interface{} (number, string, or list of
// either) into a sorted, deduped []int restricted to [lo, hi].
func normalizeIntList(raw interface{}, lo, hi int) []int {
	if raw == nil {
		return nil
	}

	var nums []float64
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if f, ok := toFloat(item); ok {
				nums = append(nums, f)
			}
		}
	default:
		if f, ok := toFloat(raw); ok {
			nums = append(nums, f)
		}
	}

	seen := map[int]bool{}
	var out []int
	for _, f := range nums {
		n := int(f)
		if n < lo || n > hi || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringOrList accepts a single string, a comma-separated string, or a list
// of strings and returns a flat []string, matching spec.md §4.1's handling
// of "at", "events"/"event", and "apps".
func stringOrList(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}
