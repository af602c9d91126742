// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Handshake and validation paths never reach the database, so a bare
// engine is enough for these tests.
func handlerTestSet() *HTTPHandlers {
	return NewHTTPHandlers(&Engine{config: &EngineConfig{}}, nil)
}

func TestGoogleWebhook_SyncHandshake(t *testing.T) {
	h := handlerTestSet()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/google", nil)
	req.Header.Set("X-Goog-Resource-State", "sync")
	req.Header.Set("X-Goog-Channel-ID", "chan-1")
	rec := httptest.NewRecorder()

	h.HandleGoogleWebhook(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGoogleWebhook_RejectsGet(t *testing.T) {
	h := handlerTestSet()

	req := httptest.NewRequest(http.MethodGet, "/webhooks/google", nil)
	rec := httptest.NewRecorder()

	h.HandleGoogleWebhook(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Contains(t, rec.Body.String(), "method_not_allowed")
}

func TestOutlookWebhook_ValidationTokenEcho(t *testing.T) {
	h := handlerTestSet()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/outlook?validationToken=probe-123", nil)
	rec := httptest.NewRecorder()

	h.HandleOutlookWebhook(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "probe-123", rec.Body.String())
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestOutlookWebhook_RejectsMalformedBody(t *testing.T) {
	h := handlerTestSet()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/outlook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.HandleOutlookWebhook(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSyncLog_RequiresReservationID(t *testing.T) {
	h := handlerTestSet()

	req := httptest.NewRequest(http.MethodGet, "/sync-log?reservation_id=nope", nil)
	rec := httptest.NewRecorder()

	h.HandleListSyncLog(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportICS_UnknownReservation(t *testing.T) {
	h := NewHTTPHandlers(&Engine{config: &EngineConfig{
		Reservations: &staticReservationSource{},
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/export.ics?reservation_id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	h.HandleExportICS(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportICS_RendersDocument(t *testing.T) {
	res := testReservation()
	h := NewHTTPHandlers(&Engine{config: &EngineConfig{
		Reservations: &staticReservationSource{reservations: map[uuid.UUID]*ReservationSnapshot{res.ID: res}},
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/export.ics?reservation_id="+res.ID.String(), nil)
	rec := httptest.NewRecorder()

	h.HandleExportICS(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "BEGIN:VCALENDAR")
	require.Contains(t, body, "BEGIN:VTIMEZONE")
	require.Contains(t, body, "TZID:America/New_York")
	require.Contains(t, body, "SUMMARY:U12 practice")
}
