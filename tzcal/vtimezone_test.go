// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tzcal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecurrenceString(t *testing.T) {
	got, err := RecurrenceString(TransitionRule{Month: time.March, Week: 2, Weekday: time.Sunday, LocalMinutes: 120})
	require.NoError(t, err)
	require.Contains(t, got, "FREQ=YEARLY")
	require.Contains(t, got, "BYMONTH=3")
	require.Contains(t, got, "2SU")

	got, err = RecurrenceString(TransitionRule{Month: time.October, Week: Last, Weekday: time.Sunday, LocalMinutes: 120})
	require.NoError(t, err)
	require.Contains(t, got, "BYMONTH=10")
	require.Contains(t, got, "BYDAY=-1SU")
}

func TestRenderVTimezone_DSTZone(t *testing.T) {
	doc, err := RenderVTimezone("America/New_York")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(doc, "BEGIN:VTIMEZONE"))
	require.Contains(t, doc, "TZID:America/New_York")
	require.Contains(t, doc, "BEGIN:DAYLIGHT")
	require.Contains(t, doc, "BEGIN:STANDARD")
	require.Contains(t, doc, "TZOFFSETFROM:-0500")
	require.Contains(t, doc, "TZOFFSETTO:-0400")
	require.Contains(t, doc, "TZNAME:EDT")
	require.Contains(t, doc, "TZNAME:EST")
	require.Contains(t, doc, "RRULE:")
	require.True(t, strings.HasSuffix(strings.TrimRight(doc, "\r\n"), "END:VTIMEZONE"))
}

func TestRenderVTimezone_NoDSTZone(t *testing.T) {
	doc, err := RenderVTimezone("America/Phoenix")
	require.NoError(t, err)
	require.Contains(t, doc, "BEGIN:STANDARD")
	require.NotContains(t, doc, "BEGIN:DAYLIGHT")
	require.NotContains(t, doc, "RRULE:")
}

func TestRenderVTimezone_UnknownZone(t *testing.T) {
	_, err := RenderVTimezone("Not/AZone")
	require.Error(t, err)
}
