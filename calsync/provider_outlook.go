// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	outlookDefaultBaseURL  = "https://graph.microsoft.com/v1.0"
	outlookDefaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	// MAPI property namespace for the metadata extended properties.
	outlookMetaGUID = "66f5a359-4659-4830-9070-00047ec6ac6e"
)

// outlookProvider speaks the Microsoft Graph calendar API. Reservation
// metadata travels in singleValueExtendedProperties; busy/free state maps
// onto showAs and a category per reservation status.
type outlookProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewOutlookProvider builds the Microsoft Graph adapter.
func NewOutlookProvider(cfg ProviderConfig, client *http.Client) CalendarProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = outlookDefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = outlookDefaultTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &outlookProvider{cfg: cfg, client: client}
}

func (o *outlookProvider) Name() Provider { return ProviderOutlook }

// outlookShowAs maps the invariant three-way reservation status onto
// Graph's showAs vocabulary.
func outlookShowAs(s ReservationStatus) (showAs, category string) {
	switch s {
	case StatusConfirmed:
		return "busy", "Field Reservation"
	case StatusPending:
		return "tentative", "Field Reservation (pending)"
	default:
		return "free", "Field Reservation (cancelled)"
	}
}

func outlookMetaPropertyID(name string) string {
	return fmt.Sprintf("String {%s} Name %s", outlookMetaGUID, name)
}

func (o *outlookProvider) buildEvent(res *ReservationSnapshot) (map[string]any, error) {
	start, err := res.StartInstant()
	if err != nil {
		return nil, providerErr(ProviderOutlook, KindData, 0, "resolve start: "+err.Error())
	}
	end, err := res.EndInstant()
	if err != nil {
		return nil, providerErr(ProviderOutlook, KindData, 0, "resolve end: "+err.Error())
	}

	showAs, category := outlookShowAs(res.Status)

	props := []map[string]string{
		{"id": outlookMetaPropertyID(metaReservationID), "value": res.ID.String()},
		{"id": outlookMetaPropertyID(metaFieldID), "value": res.FieldID.String()},
		{"id": outlookMetaPropertyID(metaUserID), "value": res.UserID},
	}
	if res.TeamID != nil {
		props = append(props, map[string]string{"id": outlookMetaPropertyID(metaTeamID), "value": res.TeamID.String()})
	}

	subject := res.Purpose
	if subject == "" {
		subject = "Field reservation: " + res.FieldName
	}

	// Graph wants naive local datetimes next to an explicit timeZone.
	return map[string]any{
		"subject": subject,
		"body": map[string]string{
			"contentType": "text",
			"content":     fmt.Sprintf("%s (%d attendees)", res.FieldName, res.AttendeeCount),
		},
		"location": map[string]string{
			"displayName": res.Location,
		},
		"start": map[string]string{
			"dateTime": start.UTC().Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
		"end": map[string]string{
			"dateTime": end.UTC().Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
		"showAs":                        showAs,
		"categories":                    []string{category},
		"isReminderOn":                  false,
		"singleValueExtendedProperties": props,
	}, nil
}

func (o *outlookProvider) eventsCollection(integ *Integration) string {
	if integ.CalendarID != "" {
		return fmt.Sprintf("%s/me/calendars/%s/events", o.cfg.BaseURL, url.PathEscape(integ.CalendarID))
	}
	return o.cfg.BaseURL + "/me/events"
}

func (o *outlookProvider) CreateEvent(ctx context.Context, integ *Integration, res *ReservationSnapshot) (string, error) {
	event, err := o.buildEvent(res)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, o.client, ProviderOutlook, http.MethodPost, o.eventsCollection(integ), integ.AccessToken, event, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", providerErr(ProviderOutlook, KindTransport, 0, "create returned no event id")
	}
	return created.ID, nil
}

func (o *outlookProvider) UpdateEvent(ctx context.Context, integ *Integration, externalEventID string, res *ReservationSnapshot) error {
	event, err := o.buildEvent(res)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/me/events/%s", o.cfg.BaseURL, url.PathEscape(externalEventID))
	return doJSON(ctx, o.client, ProviderOutlook, http.MethodPatch, u, integ.AccessToken, event, nil)
}

func (o *outlookProvider) DeleteEvent(ctx context.Context, integ *Integration, externalEventID string) error {
	u := fmt.Sprintf("%s/me/events/%s", o.cfg.BaseURL, url.PathEscape(externalEventID))
	err := doJSON(ctx, o.client, ProviderOutlook, http.MethodDelete, u, integ.AccessToken, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (o *outlookProvider) ListCalendars(ctx context.Context, integ *Integration) ([]CalendarInfo, error) {
	var body struct {
		Value []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			IsDefault bool   `json:"isDefaultCalendar"`
		} `json:"value"`
	}
	if err := doJSON(ctx, o.client, ProviderOutlook, http.MethodGet, o.cfg.BaseURL+"/me/calendars", integ.AccessToken, nil, &body); err != nil {
		return nil, err
	}
	calendars := make([]CalendarInfo, 0, len(body.Value))
	for _, it := range body.Value {
		calendars = append(calendars, CalendarInfo{ID: it.ID, Summary: it.Name, Primary: it.IsDefault})
	}
	return calendars, nil
}

func (o *outlookProvider) RefreshToken(ctx context.Context, integ *Integration) (*TokenPair, error) {
	return refreshViaTokenEndpoint(ctx, o.client, ProviderOutlook, o.cfg, o.cfg.TokenURL, integ)
}

// Watch creates a Graph change-notification subscription. The channel
// token travels in clientState and comes back on every notification.
func (o *outlookProvider) Watch(ctx context.Context, integ *Integration, callbackURL, channelID, channelToken string, lifetime time.Duration) (*WatchResult, error) {
	resource := "/me/events"
	if integ.CalendarID != "" {
		resource = fmt.Sprintf("/me/calendars/%s/events", integ.CalendarID)
	}
	reqBody := map[string]any{
		"changeType":         "created,updated,deleted",
		"notificationUrl":    callbackURL,
		"resource":           resource,
		"expirationDateTime": time.Now().Add(lifetime).UTC().Format(time.RFC3339),
		"clientState":        channelToken,
	}
	var body struct {
		ID                 string `json:"id"`
		ExpirationDateTime string `json:"expirationDateTime"`
	}
	if err := doJSON(ctx, o.client, ProviderOutlook, http.MethodPost, o.cfg.BaseURL+"/subscriptions", integ.AccessToken, reqBody, &body); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(lifetime)
	if t, err := time.Parse(time.RFC3339, body.ExpirationDateTime); err == nil {
		expiresAt = t
	}
	return &WatchResult{SubscriptionID: body.ID, ExpiresAt: expiresAt}, nil
}

func (o *outlookProvider) StopWatch(ctx context.Context, integ *Integration, sub *WebhookSubscription) error {
	u := fmt.Sprintf("%s/subscriptions/%s", o.cfg.BaseURL, url.PathEscape(sub.SubscriptionID))
	err := doJSON(ctx, o.client, ProviderOutlook, http.MethodDelete, u, integ.AccessToken, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ReservationMetaFromEvent digs the reservation id out of the
// singleValueExtendedProperties array of a Graph event resource.
func (o *outlookProvider) ReservationMetaFromEvent(data map[string]any) (uuid.UUID, bool) {
	props, ok := data["singleValueExtendedProperties"].([]any)
	if !ok {
		return uuid.Nil, false
	}
	wantID := outlookMetaPropertyID(metaReservationID)
	for _, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if prop["id"] != wantID {
			continue
		}
		value, ok := prop["value"].(string)
		if !ok {
			return uuid.Nil, false
		}
		id, err := uuid.Parse(value)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}
	return uuid.Nil, false
}
