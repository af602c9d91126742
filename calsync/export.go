// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/mobiletoly/go-calsync/tzcal"
)

// BuildReservationICS renders a reservation as a standalone iCalendar
// document. When the reservation's zone has known transition rules, a
// VTIMEZONE block is embedded so consumers resolve wall times the same
// way the engine does.
func BuildReservationICS(res *ReservationSnapshot) (string, error) {
	start, err := res.StartInstant()
	if err != nil {
		return "", fmt.Errorf("resolve start: %w", err)
	}
	end, err := res.EndInstant()
	if err != nil {
		return "", fmt.Errorf("resolve end: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//go-calsync//reservation export//EN")

	event := cal.AddEvent(res.ID.String() + "@go-calsync")
	event.SetDtStampTime(start)
	event.SetStartAt(start)
	event.SetEndAt(end)
	summary := res.Purpose
	if summary == "" {
		summary = "Field reservation: " + res.FieldName
	}
	event.SetSummary(summary)
	event.SetLocation(res.Location)
	event.SetDescription(fmt.Sprintf("%s (%d attendees)", res.FieldName, res.AttendeeCount))
	switch res.Status {
	case StatusConfirmed:
		event.SetStatus(ics.ObjectStatusConfirmed)
	case StatusPending:
		event.SetStatus(ics.ObjectStatusTentative)
	default:
		event.SetStatus(ics.ObjectStatusCancelled)
	}

	doc := cal.Serialize()

	// golang-ical has no VTIMEZONE builder, so the rendered block is
	// spliced in ahead of the event component.
	if vtz, verr := tzcal.RenderVTimezone(res.Timezone); verr == nil {
		doc = strings.Replace(doc, "BEGIN:VEVENT", vtz+"BEGIN:VEVENT", 1)
	}
	return doc, nil
}

// ListProviderCalendars lists the calendars visible to one integration,
// under the engine's timeout and auth-refresh policy.
func (e *Engine) ListProviderCalendars(ctx context.Context, integrationID uuid.UUID) ([]CalendarInfo, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	integ, err := e.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, fmt.Errorf("integration %s not found", integrationID)
	}
	provider, ok := e.providerFor(integ.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", integ.Provider)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	var calendars []CalendarInfo
	err = authRetry(callCtx, integ, provider, func(ctx context.Context, tok *TokenPair) error {
		return e.saveIntegrationToken(ctx, integ, tok)
	}, func() error {
		list, lerr := provider.ListCalendars(callCtx, integ)
		if lerr != nil {
			return lerr
		}
		calendars = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calendars, nil
}
