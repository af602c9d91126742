// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tzcal

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RecurrenceString renders a TransitionRule as an iCalendar RRULE value
// (yearly recurrence on the nth or last weekday of the month).
func RecurrenceString(r TransitionRule) (string, error) {
	n := r.Week
	if r.Week == Last {
		n = -1
	}
	opt := rrule.ROption{
		Freq:      rrule.YEARLY,
		Bymonth:   []int{int(r.Month)},
		Byweekday: []rrule.Weekday{rruleWeekdays[int(r.Weekday)].Nth(n)},
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("tzcal: invalid recurrence for rule %+v: %w", r, err)
	}
	return opt.RRuleString(), nil
}

func icalOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}

func icalLocalTime(minutes int) string {
	return fmt.Sprintf("T%02d%02d00", minutes/60, minutes%60)
}

// RenderVTimezone produces a provider-neutral VTIMEZONE block for a zone
// with known transition rules, suitable for embedding in exported .ics
// documents. Zones that do not observe DST render a single STANDARD
// sub-block.
func RenderVTimezone(zoneID string) (string, error) {
	zr, ok := zoneRules[zoneID]
	if !ok {
		return "", fmt.Errorf("tzcal: no transition rules for zone %q", zoneID)
	}

	var b strings.Builder
	b.WriteString("BEGIN:VTIMEZONE\r\n")
	fmt.Fprintf(&b, "TZID:%s\r\n", zr.Zone)

	if !zr.ObservesDST {
		b.WriteString("BEGIN:STANDARD\r\n")
		fmt.Fprintf(&b, "DTSTART:19700101T000000\r\n")
		fmt.Fprintf(&b, "TZOFFSETFROM:%s\r\n", icalOffset(zr.StandardUTC))
		fmt.Fprintf(&b, "TZOFFSETTO:%s\r\n", icalOffset(zr.StandardUTC))
		fmt.Fprintf(&b, "TZNAME:%s\r\n", zr.StandardName)
		b.WriteString("END:STANDARD\r\n")
		b.WriteString("END:VTIMEZONE\r\n")
		return b.String(), nil
	}

	daylightRule, err := RecurrenceString(zr.DSTStart)
	if err != nil {
		return "", err
	}
	standardRule, err := RecurrenceString(zr.DSTEnd)
	if err != nil {
		return "", err
	}

	// DTSTART carries an arbitrary year; the RRULE makes it recur.
	startDate := zr.DSTStart.DateFor(1970, time.UTC)
	endDate := zr.DSTEnd.DateFor(1970, time.UTC)

	b.WriteString("BEGIN:DAYLIGHT\r\n")
	fmt.Fprintf(&b, "DTSTART:%04d%02d%02d%s\r\n", startDate.Year(), startDate.Month(), startDate.Day(), icalLocalTime(zr.DSTStart.LocalMinutes))
	fmt.Fprintf(&b, "RRULE:%s\r\n", daylightRule)
	fmt.Fprintf(&b, "TZOFFSETFROM:%s\r\n", icalOffset(zr.StandardUTC))
	fmt.Fprintf(&b, "TZOFFSETTO:%s\r\n", icalOffset(zr.DaylightUTC))
	fmt.Fprintf(&b, "TZNAME:%s\r\n", zr.DaylightName)
	b.WriteString("END:DAYLIGHT\r\n")

	b.WriteString("BEGIN:STANDARD\r\n")
	fmt.Fprintf(&b, "DTSTART:%04d%02d%02d%s\r\n", endDate.Year(), endDate.Month(), endDate.Day(), icalLocalTime(zr.DSTEnd.LocalMinutes))
	fmt.Fprintf(&b, "RRULE:%s\r\n", standardRule)
	fmt.Fprintf(&b, "TZOFFSETFROM:%s\r\n", icalOffset(zr.DaylightUTC))
	fmt.Fprintf(&b, "TZOFFSETTO:%s\r\n", icalOffset(zr.StandardUTC))
	fmt.Fprintf(&b, "TZNAME:%s\r\n", zr.StandardName)
	b.WriteString("END:STANDARD\r\n")

	b.WriteString("END:VTIMEZONE\r\n")
	return b.String(), nil
}
