// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestComputeFireTimes_DefaultOffsets(t *testing.T) {
	start := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	now := start.Add(-48 * time.Hour)

	planned := computeFireTimes(start, DefaultReminderSettings(), now)
	require.Len(t, planned, 2)

	fireTimes := map[int]time.Time{}
	for _, p := range planned {
		fireTimes[p.OffsetMinutes] = p.FireAt
	}
	require.Equal(t, start.Add(-24*time.Hour), fireTimes[1440])
	require.Equal(t, start.Add(-time.Hour), fireTimes[60])
}

func TestComputeFireTimes_SkipsPastInstants(t *testing.T) {
	start := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	// 12 hours before start: the 24h offset already passed.
	now := start.Add(-12 * time.Hour)

	planned := computeFireTimes(start, DefaultReminderSettings(), now)
	require.Len(t, planned, 1)
	require.Equal(t, 60, planned[0].OffsetMinutes)

	// Inside the last hour nothing is scheduled.
	planned = computeFireTimes(start, DefaultReminderSettings(), start.Add(-30*time.Minute))
	require.Empty(t, planned)
}

func TestComputeFireTimes_ChannelOffsetCrossProduct(t *testing.T) {
	start := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	settings := &ReminderSettings{
		Channels:       []Channel{ChannelEmail, ChannelSMS},
		OffsetsMinutes: []int{1440, 60, 0, -5},
	}
	planned := computeFireTimes(start, settings, start.Add(-72*time.Hour))
	// Non-positive offsets are dropped; 2 channels x 2 offsets remain.
	require.Len(t, planned, 4)
}

// A reservation at 01:30 local on a spring-forward morning (the
// 02:00->03:00 jump) must still produce a 1h-before reminder at 00:30
// under the pre-transition offset, not lose it to the skipped hour.
func TestComputeFireTimes_SpringForwardGap(t *testing.T) {
	res := &ReservationSnapshot{
		ID:        uuid.New(),
		Date:      time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		StartTime: "01:30",
		EndTime:   "02:30",
		Timezone:  "America/New_York",
	}
	start, err := res.StartInstant()
	require.NoError(t, err)
	// 01:30 EST == 06:30 UTC.
	require.Equal(t, time.Date(2025, 3, 9, 6, 30, 0, 0, time.UTC), start)

	planned := computeFireTimes(start, &ReminderSettings{
		Channels:       []Channel{ChannelEmail},
		OffsetsMinutes: []int{60},
	}, start.Add(-6*time.Hour))
	require.Len(t, planned, 1)

	// Fires at 05:30 UTC == 00:30 EST, before the transition.
	require.Equal(t, time.Date(2025, 3, 9, 5, 30, 0, 0, time.UTC), planned[0].FireAt)
	loc, _ := time.LoadLocation("America/New_York")
	require.Equal(t, "00:30", planned[0].FireAt.In(loc).Format("15:04"))
}

func TestHumanOffset(t *testing.T) {
	require.Equal(t, "1 day(s)", humanOffset(1440))
	require.Equal(t, "2 hour(s)", humanOffset(120))
	require.Equal(t, "45 minute(s)", humanOffset(45))
}
