// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package tzcal provides IANA timezone resolution, DST transition
// calculation and recurrence rendering for calendar export. It performs
// no I/O and keeps no state; unknown zones fail closed to UTC so that a
// best-effort schedule is always available to callers.
package tzcal

import (
	"fmt"
	"time"
)

// ZoneInfo describes the applicable offset of a zone at one instant.
type ZoneInfo struct {
	Zone          string // IANA identifier, "UTC" when resolution failed
	OffsetSeconds int    // UTC offset in seconds at the queried instant
	Abbreviation  string // e.g. "EST", "EDT"
	IsDST         bool
}

// Resolve returns the offset, abbreviation and DST state of zoneID at
// the given instant. Unknown identifiers resolve to UTC with no daylight
// adjustment instead of returning an error; callers that care should log
// the fallback (the resolver itself stays silent).
func Resolve(zoneID string, at time.Time) ZoneInfo {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return ZoneInfo{Zone: "UTC", Abbreviation: "UTC"}
	}
	local := at.In(loc)
	abbr, offset := local.Zone()
	return ZoneInfo{
		Zone:          zoneID,
		OffsetSeconds: offset,
		Abbreviation:  abbr,
		IsDST:         local.IsDST(),
	}
}

// Location loads zoneID, falling back to UTC for unknown identifiers.
func Location(zoneID string) *time.Location {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConvertWall reinterprets the wall-clock components of t in fromZone and
// returns the same instant expressed in toZone. Converting A→B→A yields
// the original instant, including across DST boundaries.
func ConvertWall(t time.Time, fromZone, toZone string) (time.Time, error) {
	from, err := time.LoadLocation(fromZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("tzcal: unknown zone %q: %w", fromZone, err)
	}
	to, err := time.LoadLocation(toZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("tzcal: unknown zone %q: %w", toZone, err)
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), from)
	return wall.In(to), nil
}

// WallToUTC builds a UTC instant from a local date, a "15:04" clock value
// and a zone identifier. This is the single place reservation wall times
// become instants, so DST gaps are resolved consistently: time.Date
// normalizes times inside a skipped hour to the post-transition offset.
func WallToUTC(date time.Time, clock string, zoneID string) (time.Time, error) {
	hhmm, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("tzcal: bad clock value %q: %w", clock, err)
	}
	loc := Location(zoneID)
	local := time.Date(date.Year(), date.Month(), date.Day(), hhmm.Hour(), hhmm.Minute(), 0, 0, loc)
	return local.UTC(), nil
}
