// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOutlookProvider_CreateEventPayload(t *testing.T) {
	res := testReservation()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/me/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"id": "oev-1"})
	}))
	defer srv.Close()

	p := NewOutlookProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	id, err := p.CreateEvent(context.Background(), &Integration{AccessToken: "at"}, res)
	require.NoError(t, err)
	require.Equal(t, "oev-1", id)

	require.Equal(t, "U12 practice", captured["subject"])
	require.Equal(t, "busy", captured["showAs"])
	require.Equal(t, false, captured["isReminderOn"])

	start := captured["start"].(map[string]any)
	require.Equal(t, "2025-06-10T22:00:00", start["dateTime"])
	require.Equal(t, "UTC", start["timeZone"])

	props := captured["singleValueExtendedProperties"].([]any)
	found := false
	wantID := outlookMetaPropertyID("calsyncReservationId")
	for _, raw := range props {
		prop := raw.(map[string]any)
		if prop["id"] == wantID {
			found = true
			require.Equal(t, res.ID.String(), prop["value"])
		}
	}
	require.True(t, found, "reservation metadata property missing")
}

func TestOutlookProvider_NamedCalendarCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/calendars/cal-9/events", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "oev-2"})
	}))
	defer srv.Close()

	p := NewOutlookProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	_, err := p.CreateEvent(context.Background(),
		&Integration{AccessToken: "at", CalendarID: "cal-9"}, testReservation())
	require.NoError(t, err)
}

func TestOutlookProvider_ShowAsMapping(t *testing.T) {
	showAs, category := outlookShowAs(StatusPending)
	require.Equal(t, "tentative", showAs)
	require.Equal(t, "Field Reservation (pending)", category)

	showAs, _ = outlookShowAs(StatusCancelled)
	require.Equal(t, "free", showAs)
}

func TestOutlookProvider_DeleteMissingEventIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOutlookProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, p.DeleteEvent(context.Background(), &Integration{AccessToken: "at"}, "gone"))
}

func TestOutlookProvider_WatchSendsClientState(t *testing.T) {
	expiry := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subscriptions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "tok-1", body["clientState"])
		require.Equal(t, "created,updated,deleted", body["changeType"])
		json.NewEncoder(w).Encode(map[string]string{
			"id":                 "sub-1",
			"expirationDateTime": expiry.Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	p := NewOutlookProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	got, err := p.Watch(context.Background(), &Integration{AccessToken: "at"},
		"https://app.example.com/webhooks/outlook", "chan-1", "tok-1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "sub-1", got.SubscriptionID)
	require.WithinDuration(t, expiry, got.ExpiresAt, time.Second)
}

func TestOutlookProvider_ReservationMetaFromEvent(t *testing.T) {
	p := NewOutlookProvider(ProviderConfig{}, nil)
	want := uuid.New()

	id, ok := p.ReservationMetaFromEvent(map[string]any{
		"singleValueExtendedProperties": []any{
			map[string]any{
				"id":    outlookMetaPropertyID("calsyncReservationId"),
				"value": want.String(),
			},
		},
	})
	require.True(t, ok)
	require.Equal(t, want, id)

	_, ok = p.ReservationMetaFromEvent(map[string]any{"subject": "unrelated"})
	require.False(t, ok)
}

func TestOutlookProvider_ListCalendars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/calendars", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "cal-1", "name": "Calendar", "isDefaultCalendar": true},
				{"id": "cal-2", "name": "Team"},
			},
		})
	}))
	defer srv.Close()

	p := NewOutlookProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	cals, err := p.ListCalendars(context.Background(), &Integration{AccessToken: "at"})
	require.NoError(t, err)
	require.Len(t, cals, 2)
	require.True(t, cals[0].Primary)
	require.Equal(t, "Team", cals[1].Summary)
}
