// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HTTPHandlers exposes the engine over HTTP: the inbound webhook
// endpoints providers push to, plus small observability surfaces.
type HTTPHandlers struct {
	engine *Engine
	logger *slog.Logger
}

// NewHTTPHandlers creates the handler set.
func NewHTTPHandlers(engine *Engine, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{engine: engine, logger: logger}
}

// HandleGoogleWebhook receives Google channel notifications. Channel
// metadata travels in headers; the body, when present, is the changed
// event resource. The provider disables channels that respond slowly,
// so the handler acknowledges immediately and processes asynchronously.
func (h *HTTPHandlers) HandleGoogleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	state := r.Header.Get("X-Goog-Resource-State")
	if state == "sync" {
		// Registration handshake; nothing to process.
		w.WriteHeader(http.StatusOK)
		return
	}

	changeType := "updated"
	switch state {
	case "exists":
		changeType = "updated"
	case "not_exists":
		changeType = "deleted"
	}

	evt := &InboundEvent{
		Provider:       ProviderGoogle,
		SubscriptionID: r.Header.Get("X-Goog-Channel-ID"),
		ResourceURI:    r.Header.Get("X-Goog-Resource-URI"),
		ChangeType:     changeType,
		EventTime:      time.Now(),
		ChannelToken:   r.Header.Get("X-Goog-Channel-Token"),
	}
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err == nil {
		evt.Data = data
	}

	w.WriteHeader(http.StatusOK)
	h.processAsync(r.Context(), evt)
}

// HandleOutlookWebhook receives Graph change notifications. Graph first
// probes the endpoint with a validationToken that must be echoed back;
// real notifications batch multiple changes in one body.
func (h *HTTPHandlers) HandleOutlookWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(token))
		return
	}

	var body struct {
		Value []struct {
			SubscriptionID string         `json:"subscriptionId"`
			ClientState    string         `json:"clientState"`
			ChangeType     string         `json:"changeType"`
			Resource       string         `json:"resource"`
			EventTime      time.Time      `json:"eventTime"`
			ResourceData   map[string]any `json:"resourceData"`
		} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse notification body")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	for _, n := range body.Value {
		h.processAsync(r.Context(), &InboundEvent{
			Provider:       ProviderOutlook,
			SubscriptionID: n.SubscriptionID,
			ResourceURI:    n.Resource,
			ChangeType:     n.ChangeType,
			EventTime:      n.EventTime,
			ChannelToken:   n.ClientState,
			Data:           n.ResourceData,
		})
	}
}

// processAsync hands the event off so the HTTP response is not held
// hostage by provider lookups or the domain handler.
func (h *HTTPHandlers) processAsync(reqCtx context.Context, evt *InboundEvent) {
	ctx := context.WithoutCancel(reqCtx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		outcome := h.engine.ProcessInboundEvent(ctx, evt)
		if outcome.Status == OutcomeError {
			h.logger.Error("Inbound event processing failed",
				"provider", evt.Provider, "subscription", evt.SubscriptionID, "detail", outcome.Detail)
		}
	}()
}

// HandleListSyncLog returns recent audit entries for one reservation.
func (h *HTTPHandlers) HandleListSyncLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	reservationID, err := uuid.Parse(r.URL.Query().Get("reservation_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "reservation_id must be a UUID")
		return
	}
	limit := 100
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, e := strconv.Atoi(ls); e == nil && v > 0 {
			limit = v
		}
	}
	entries, err := h.engine.ListSyncLog(r.Context(), reservationID, limit)
	if err != nil {
		h.logger.Error("List sync log error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list sync log")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

// HandleListCalendars lists calendars visible to one integration, so a
// UI can pick the sync target.
func (h *HTTPHandlers) HandleListCalendars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	integrationID, err := uuid.Parse(r.URL.Query().Get("integration_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "integration_id must be a UUID")
		return
	}
	calendars, err := h.engine.ListProviderCalendars(r.Context(), integrationID)
	if err != nil {
		h.logger.Error("List calendars error", "error", err, "integration", integrationID)
		h.writeError(w, http.StatusBadGateway, "provider_error", "Failed to list calendars")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(calendars)
}

// HandleExportICS renders one reservation as an .ics document with an
// embedded VTIMEZONE block.
func (h *HTTPHandlers) HandleExportICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	reservationID, err := uuid.Parse(r.URL.Query().Get("reservation_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "reservation_id must be a UUID")
		return
	}
	res, err := h.engine.config.Reservations.GetReservation(r.Context(), reservationID)
	if err != nil || res == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Reservation not found")
		return
	}
	doc, err := BuildReservationICS(res)
	if err != nil {
		h.logger.Error("ICS export error", "error", err, "reservation", reservationID)
		h.writeError(w, http.StatusInternalServerError, "export_failed", "Failed to render calendar document")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
