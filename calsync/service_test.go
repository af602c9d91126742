// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWarnUnknownZone_LogsFallback(t *testing.T) {
	var buf bytes.Buffer
	e := &Engine{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	e.warnUnknownZone(&ReservationSnapshot{ID: uuid.New(), Timezone: "Mars/Olympus_Mons"})
	require.Contains(t, buf.String(), "falling back to UTC")
	require.Contains(t, buf.String(), "Mars/Olympus_Mons")

	buf.Reset()
	e.warnUnknownZone(&ReservationSnapshot{ID: uuid.New(), Timezone: "America/New_York"})
	require.Empty(t, buf.String())

	e.warnUnknownZone(&ReservationSnapshot{ID: uuid.New(), Timezone: "UTC"})
	require.Empty(t, buf.String())
}
