// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mobiletoly/go-calsync/tzcal"
)

const (
	googleDefaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	googleDefaultTokenURL = "https://oauth2.googleapis.com/token"
)

// googleProvider speaks the Google Calendar v3 API. Reservation metadata
// travels in extendedProperties.private; busy/free state maps onto
// status + transparency and a colorId per reservation status.
type googleProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewGoogleProvider builds the Google Calendar adapter. A nil client
// falls back to http.DefaultClient; per-call deadlines come from the
// caller's context.
func NewGoogleProvider(cfg ProviderConfig, client *http.Client) CalendarProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = googleDefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleDefaultTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &googleProvider{cfg: cfg, client: client}
}

func (g *googleProvider) Name() Provider { return ProviderGoogle }

// googleEventStatus maps the invariant three-way reservation status onto
// Google's event vocabulary.
func googleEventStatus(s ReservationStatus) (status, transparency, colorID string) {
	switch s {
	case StatusConfirmed:
		return "confirmed", "opaque", "10" // basil
	case StatusPending:
		return "tentative", "opaque", "5" // banana
	default:
		return "cancelled", "transparent", "11" // tomato
	}
}

func (g *googleProvider) buildEvent(res *ReservationSnapshot) (map[string]any, error) {
	start, err := res.StartInstant()
	if err != nil {
		return nil, providerErr(ProviderGoogle, KindData, 0, "resolve start: "+err.Error())
	}
	end, err := res.EndInstant()
	if err != nil {
		return nil, providerErr(ProviderGoogle, KindData, 0, "resolve end: "+err.Error())
	}
	zone := res.Timezone
	if tzcal.Resolve(zone, start).Zone == "UTC" && zone != "UTC" {
		zone = "UTC"
	}

	status, transparency, colorID := googleEventStatus(res.Status)
	private := map[string]string{
		metaReservationID: res.ID.String(),
		metaFieldID:       res.FieldID.String(),
		metaUserID:        res.UserID,
	}
	if res.TeamID != nil {
		private[metaTeamID] = res.TeamID.String()
	}

	summary := res.Purpose
	if summary == "" {
		summary = "Field reservation: " + res.FieldName
	}

	return map[string]any{
		"summary":     summary,
		"location":    res.Location,
		"description": fmt.Sprintf("%s (%d attendees)", res.FieldName, res.AttendeeCount),
		"start": map[string]string{
			"dateTime": start.Format(time.RFC3339),
			"timeZone": zone,
		},
		"end": map[string]string{
			"dateTime": end.Format(time.RFC3339),
			"timeZone": zone,
		},
		"status":       status,
		"transparency": transparency,
		"colorId":      colorID,
		"reminders": map[string]any{
			"useDefault": false,
			"overrides": []map[string]any{
				{"method": "popup", "minutes": 30},
			},
		},
		"extendedProperties": map[string]any{
			"private": private,
		},
	}, nil
}

func (g *googleProvider) calendarID(integ *Integration) string {
	if integ.CalendarID != "" {
		return integ.CalendarID
	}
	return "primary"
}

func (g *googleProvider) CreateEvent(ctx context.Context, integ *Integration, res *ReservationSnapshot) (string, error) {
	event, err := g.buildEvent(res)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	u := fmt.Sprintf("%s/calendars/%s/events", g.cfg.BaseURL, url.PathEscape(g.calendarID(integ)))
	if err := doJSON(ctx, g.client, ProviderGoogle, http.MethodPost, u, integ.AccessToken, event, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", providerErr(ProviderGoogle, KindTransport, 0, "create returned no event id")
	}
	return created.ID, nil
}

func (g *googleProvider) UpdateEvent(ctx context.Context, integ *Integration, externalEventID string, res *ReservationSnapshot) error {
	event, err := g.buildEvent(res)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/calendars/%s/events/%s", g.cfg.BaseURL, url.PathEscape(g.calendarID(integ)), url.PathEscape(externalEventID))
	return doJSON(ctx, g.client, ProviderGoogle, http.MethodPut, u, integ.AccessToken, event, nil)
}

func (g *googleProvider) DeleteEvent(ctx context.Context, integ *Integration, externalEventID string) error {
	u := fmt.Sprintf("%s/calendars/%s/events/%s", g.cfg.BaseURL, url.PathEscape(g.calendarID(integ)), url.PathEscape(externalEventID))
	err := doJSON(ctx, g.client, ProviderGoogle, http.MethodDelete, u, integ.AccessToken, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (g *googleProvider) ListCalendars(ctx context.Context, integ *Integration) ([]CalendarInfo, error) {
	var body struct {
		Items []struct {
			ID       string `json:"id"`
			Summary  string `json:"summary"`
			Primary  bool   `json:"primary"`
			TimeZone string `json:"timeZone"`
		} `json:"items"`
	}
	u := g.cfg.BaseURL + "/users/me/calendarList"
	if err := doJSON(ctx, g.client, ProviderGoogle, http.MethodGet, u, integ.AccessToken, nil, &body); err != nil {
		return nil, err
	}
	calendars := make([]CalendarInfo, 0, len(body.Items))
	for _, it := range body.Items {
		calendars = append(calendars, CalendarInfo{ID: it.ID, Summary: it.Summary, Primary: it.Primary, TimeZone: it.TimeZone})
	}
	return calendars, nil
}

func (g *googleProvider) RefreshToken(ctx context.Context, integ *Integration) (*TokenPair, error) {
	return refreshViaTokenEndpoint(ctx, g.client, ProviderGoogle, g.cfg, g.cfg.TokenURL, integ)
}

// Watch registers a notification channel on the integration's events
// collection. Google expiration is a unix-millis number that may arrive
// as a JSON string.
func (g *googleProvider) Watch(ctx context.Context, integ *Integration, callbackURL, channelID, channelToken string, lifetime time.Duration) (*WatchResult, error) {
	reqBody := map[string]any{
		"id":      channelID,
		"type":    "web_hook",
		"address": callbackURL,
		"token":   channelToken,
		"params": map[string]string{
			"ttl": strconv.Itoa(int(lifetime.Seconds())),
		},
	}
	var body struct {
		ID         string `json:"id"`
		ResourceID string `json:"resourceId"`
		Expiration string `json:"expiration"`
	}
	u := fmt.Sprintf("%s/calendars/%s/events/watch", g.cfg.BaseURL, url.PathEscape(g.calendarID(integ)))
	if err := doJSON(ctx, g.client, ProviderGoogle, http.MethodPost, u, integ.AccessToken, reqBody, &body); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(lifetime)
	if ms, err := strconv.ParseInt(body.Expiration, 10, 64); err == nil && ms > 0 {
		expiresAt = time.UnixMilli(ms)
	}
	return &WatchResult{SubscriptionID: body.ID, ResourceID: body.ResourceID, ExpiresAt: expiresAt}, nil
}

func (g *googleProvider) StopWatch(ctx context.Context, integ *Integration, sub *WebhookSubscription) error {
	reqBody := map[string]string{
		"id":         sub.SubscriptionID,
		"resourceId": sub.ResourceID,
	}
	err := doJSON(ctx, g.client, ProviderGoogle, http.MethodPost, g.cfg.BaseURL+"/channels/stop", integ.AccessToken, reqBody, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ReservationMetaFromEvent digs the reservation id out of
// extendedProperties.private.
func (g *googleProvider) ReservationMetaFromEvent(data map[string]any) (uuid.UUID, bool) {
	ext, ok := data["extendedProperties"].(map[string]any)
	if !ok {
		return uuid.Nil, false
	}
	private, ok := ext["private"].(map[string]any)
	if !ok {
		return uuid.Nil, false
	}
	raw, ok := private[metaReservationID].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
