// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tzcal

import (
	"fmt"
	"time"
)

// Last selects the final occurrence of a weekday within a month.
const Last = -1

// TransitionRule describes one DST transition declaratively (month,
// nth-or-last weekday, local clock time) rather than as a fixed date,
// because the concrete date shifts from year to year.
type TransitionRule struct {
	Month        time.Month
	Week         int // 1..4 for the nth occurrence, Last for the final one
	Weekday      time.Weekday
	LocalMinutes int // minutes after local midnight at which the shift happens
}

// DateFor computes the wall-clock transition time of the rule in a year.
// The nth occurrence walks forward from the first of the month and adds
// (n-1) weeks; the last occurrence walks backward from the month's final
// day to the first matching weekday.
func (r TransitionRule) DateFor(year int, loc *time.Location) time.Time {
	var d time.Time
	if r.Week == Last {
		d = time.Date(year, r.Month+1, 0, 0, 0, 0, 0, loc) // day 0 of next month = last day
		for d.Weekday() != r.Weekday {
			d = d.AddDate(0, 0, -1)
		}
	} else {
		d = time.Date(year, r.Month, 1, 0, 0, 0, 0, loc)
		for d.Weekday() != r.Weekday {
			d = d.AddDate(0, 0, 1)
		}
		d = d.AddDate(0, 0, 7*(r.Week-1))
	}
	return time.Date(year, d.Month(), d.Day(), r.LocalMinutes/60, r.LocalMinutes%60, 0, 0, loc)
}

// ZoneRules carries the standard/daylight offsets and transition rules of
// one zone. Only zones present in this table can render VTIMEZONE blocks
// or enumerate transitions; offset resolution for arbitrary zones goes
// through Resolve, which uses the system tzdata.
type ZoneRules struct {
	Zone          string
	StandardName  string
	DaylightName  string
	StandardUTC   int // seconds east of UTC outside DST
	DaylightUTC   int // seconds east of UTC during DST
	DSTStart      TransitionRule
	DSTEnd        TransitionRule
	ObservesDST   bool
	SouthernWrap  bool // DST interval crosses the year boundary
}

// Transition is one concrete offset change instant.
type Transition struct {
	At            time.Time // wall-clock transition time in the zone
	OffsetBefore  int
	OffsetAfter   int
	ToDaylight    bool
	Abbreviation  string // abbreviation in effect after the transition
}

var zoneRules = map[string]ZoneRules{
	"America/New_York": {
		Zone: "America/New_York", StandardName: "EST", DaylightName: "EDT",
		StandardUTC: -5 * 3600, DaylightUTC: -4 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: 2, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.November, Week: 1, Weekday: time.Sunday, LocalMinutes: 2 * 60},
	},
	"America/Chicago": {
		Zone: "America/Chicago", StandardName: "CST", DaylightName: "CDT",
		StandardUTC: -6 * 3600, DaylightUTC: -5 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: 2, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.November, Week: 1, Weekday: time.Sunday, LocalMinutes: 2 * 60},
	},
	"America/Denver": {
		Zone: "America/Denver", StandardName: "MST", DaylightName: "MDT",
		StandardUTC: -7 * 3600, DaylightUTC: -6 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: 2, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.November, Week: 1, Weekday: time.Sunday, LocalMinutes: 2 * 60},
	},
	"America/Los_Angeles": {
		Zone: "America/Los_Angeles", StandardName: "PST", DaylightName: "PDT",
		StandardUTC: -8 * 3600, DaylightUTC: -7 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: 2, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.November, Week: 1, Weekday: time.Sunday, LocalMinutes: 2 * 60},
	},
	"America/Phoenix": {
		Zone: "America/Phoenix", StandardName: "MST", DaylightName: "MST",
		StandardUTC: -7 * 3600, DaylightUTC: -7 * 3600, ObservesDST: false,
	},
	"Europe/London": {
		Zone: "Europe/London", StandardName: "GMT", DaylightName: "BST",
		StandardUTC: 0, DaylightUTC: 1 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: Last, Weekday: time.Sunday, LocalMinutes: 1 * 60},
		DSTEnd:   TransitionRule{Month: time.October, Week: Last, Weekday: time.Sunday, LocalMinutes: 2 * 60},
	},
	"Europe/Berlin": {
		Zone: "Europe/Berlin", StandardName: "CET", DaylightName: "CEST",
		StandardUTC: 1 * 3600, DaylightUTC: 2 * 3600, ObservesDST: true,
		DSTStart: TransitionRule{Month: time.March, Week: Last, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.October, Week: Last, Weekday: time.Sunday, LocalMinutes: 3 * 60},
	},
	"Australia/Sydney": {
		Zone: "Australia/Sydney", StandardName: "AEST", DaylightName: "AEDT",
		StandardUTC: 10 * 3600, DaylightUTC: 11 * 3600, ObservesDST: true, SouthernWrap: true,
		DSTStart: TransitionRule{Month: time.October, Week: 1, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.April, Week: 1, Weekday: time.Sunday, LocalMinutes: 3 * 60},
	},
	"Pacific/Auckland": {
		Zone: "Pacific/Auckland", StandardName: "NZST", DaylightName: "NZDT",
		StandardUTC: 12 * 3600, DaylightUTC: 13 * 3600, ObservesDST: true, SouthernWrap: true,
		DSTStart: TransitionRule{Month: time.September, Week: Last, Weekday: time.Sunday, LocalMinutes: 2 * 60},
		DSTEnd:   TransitionRule{Month: time.April, Week: 1, Weekday: time.Sunday, LocalMinutes: 3 * 60},
	},
}

// RulesFor returns the declarative rule set for a zone, if known.
func RulesFor(zoneID string) (ZoneRules, bool) {
	zr, ok := zoneRules[zoneID]
	return zr, ok
}

// TransitionsForYear enumerates the DST transitions of zoneID within one
// calendar year, computed from the declarative rule set. Zones without
// rules or without DST return an empty slice.
func TransitionsForYear(zoneID string, year int) ([]Transition, error) {
	zr, ok := zoneRules[zoneID]
	if !ok {
		return nil, fmt.Errorf("tzcal: no transition rules for zone %q", zoneID)
	}
	if !zr.ObservesDST {
		return nil, nil
	}
	loc := Location(zoneID)
	start := zr.DSTStart.DateFor(year, loc)
	end := zr.DSTEnd.DateFor(year, loc)
	transitions := []Transition{
		{At: start, OffsetBefore: zr.StandardUTC, OffsetAfter: zr.DaylightUTC, ToDaylight: true, Abbreviation: zr.DaylightName},
		{At: end, OffsetBefore: zr.DaylightUTC, OffsetAfter: zr.StandardUTC, ToDaylight: false, Abbreviation: zr.StandardName},
	}
	if transitions[0].At.After(transitions[1].At) {
		transitions[0], transitions[1] = transitions[1], transitions[0]
	}
	return transitions, nil
}

// InDST reports whether the rule set places the given instant inside the
// DST interval. Southern-hemisphere zones wrap across the year boundary,
// so the interval test becomes start<=now OR now<end instead of the
// usual start<=now<end.
func InDST(zoneID string, at time.Time) (bool, error) {
	zr, ok := zoneRules[zoneID]
	if !ok {
		return false, fmt.Errorf("tzcal: no transition rules for zone %q", zoneID)
	}
	if !zr.ObservesDST {
		return false, nil
	}
	loc := Location(zoneID)
	local := at.In(loc)
	start := zr.DSTStart.DateFor(local.Year(), loc)
	end := zr.DSTEnd.DateFor(local.Year(), loc)
	if zr.SouthernWrap {
		return !local.Before(start) || local.Before(end), nil
	}
	return !local.Before(start) && local.Before(end), nil
}
