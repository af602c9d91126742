// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testReservation() *ReservationSnapshot {
	return &ReservationSnapshot{
		ID:            uuid.New(),
		UserID:        "user-1",
		FieldID:       uuid.New(),
		FieldName:     "North Field",
		Location:      "12 Park Ave",
		Date:          time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "18:00",
		EndTime:       "19:30",
		Timezone:      "America/New_York",
		Status:        StatusConfirmed,
		Purpose:       "U12 practice",
		AttendeeCount: 15,
	}
}

func TestGoogleProvider_CreateEventPayload(t *testing.T) {
	res := testReservation()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		require.Equal(t, "Bearer at-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"id": "gev-1"})
	}))
	defer srv.Close()

	p := NewGoogleProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	id, err := p.CreateEvent(context.Background(), &Integration{AccessToken: "at-token"}, res)
	require.NoError(t, err)
	require.Equal(t, "gev-1", id)

	require.Equal(t, "U12 practice", captured["summary"])
	require.Equal(t, "confirmed", captured["status"])
	require.Equal(t, "opaque", captured["transparency"])

	start := captured["start"].(map[string]any)
	// 18:00 America/New_York in June is 22:00Z.
	require.Equal(t, "2025-06-10T22:00:00Z", start["dateTime"])
	require.Equal(t, "America/New_York", start["timeZone"])

	private := captured["extendedProperties"].(map[string]any)["private"].(map[string]any)
	require.Equal(t, res.ID.String(), private["calsyncReservationId"])
	require.Equal(t, "user-1", private["calsyncUserId"])
}

func TestGoogleProvider_CancelledStatusMapping(t *testing.T) {
	status, transparency, colorID := googleEventStatus(StatusCancelled)
	require.Equal(t, "cancelled", status)
	require.Equal(t, "transparent", transparency)
	require.Equal(t, "11", colorID)

	status, _, _ = googleEventStatus(StatusPending)
	require.Equal(t, "tentative", status)
}

func TestGoogleProvider_DeleteMissingEventIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewGoogleProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	err := p.DeleteEvent(context.Background(), &Integration{AccessToken: "at"}, "gone")
	require.NoError(t, err)
}

func TestGoogleProvider_AuthErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewGoogleProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	_, err := p.CreateEvent(context.Background(), &Integration{AccessToken: "stale"}, testReservation())
	require.Error(t, err)
	require.True(t, isAuthError(err))
}

func TestGoogleProvider_RefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		require.Equal(t, "client-1", r.Form.Get("client_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new", "refresh_token": "rt-new", "expires_in": 3600,
		})
	}))
	defer srv.Close()

	p := NewGoogleProvider(ProviderConfig{ClientID: "client-1", TokenURL: srv.URL}, srv.Client())
	tok, err := p.RefreshToken(context.Background(), &Integration{RefreshToken: "rt-old"})
	require.NoError(t, err)
	require.Equal(t, "at-new", tok.AccessToken)
	require.Equal(t, "rt-new", tok.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)
}

func TestGoogleProvider_WatchParsesExpiration(t *testing.T) {
	expiry := time.Now().Add(45 * time.Minute).Truncate(time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calendars/primary/events/watch", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "chan-1", body["id"])
		require.Equal(t, "tok-1", body["token"])
		require.Equal(t, "https://app.example.com/webhooks/google", body["address"])
		json.NewEncoder(w).Encode(map[string]string{
			"id":         "chan-1",
			"resourceId": "res-abc",
			"expiration": strconv.FormatInt(expiry.UnixMilli(), 10),
		})
	}))
	defer srv.Close()

	p := NewGoogleProvider(ProviderConfig{BaseURL: srv.URL}, srv.Client())
	got, err := p.Watch(context.Background(), &Integration{AccessToken: "at"},
		"https://app.example.com/webhooks/google", "chan-1", "tok-1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "chan-1", got.SubscriptionID)
	require.Equal(t, "res-abc", got.ResourceID)
	require.WithinDuration(t, expiry, got.ExpiresAt, time.Second)
}

func TestGoogleProvider_ReservationMetaFromEvent(t *testing.T) {
	p := NewGoogleProvider(ProviderConfig{}, nil)
	want := uuid.New()

	id, ok := p.ReservationMetaFromEvent(map[string]any{
		"extendedProperties": map[string]any{
			"private": map[string]any{"calsyncReservationId": want.String()},
		},
	})
	require.True(t, ok)
	require.Equal(t, want, id)

	_, ok = p.ReservationMetaFromEvent(map[string]any{"summary": "someone else's event"})
	require.False(t, ok)

	_, ok = p.ReservationMetaFromEvent(map[string]any{
		"extendedProperties": map[string]any{
			"private": map[string]any{"calsyncReservationId": "not-a-uuid"},
		},
	})
	require.False(t, ok)
}
