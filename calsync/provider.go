// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys embedded into every exported event as provider-native
// properties. Inbound webhook payloads are correlated back to a
// reservation through these keys without a secondary lookup.
const (
	metaReservationID = "calsyncReservationId"
	metaFieldID       = "calsyncFieldId"
	metaUserID        = "calsyncUserId"
	metaTeamID        = "calsyncTeamId"
)

// CalendarProvider is the uniform adapter contract implemented once per
// external provider. All operations are plain HTTP round trips; the
// single-refresh-single-retry auth policy lives in the engine, not here.
type CalendarProvider interface {
	Name() Provider

	// CreateEvent exports the reservation and returns the provider-assigned
	// event identifier.
	CreateEvent(ctx context.Context, integ *Integration, res *ReservationSnapshot) (string, error)

	// UpdateEvent rewrites an existing provider-side event in place.
	UpdateEvent(ctx context.Context, integ *Integration, externalEventID string, res *ReservationSnapshot) error

	// DeleteEvent removes the provider-side event. A missing event is
	// success, not an error: the target state is already reached.
	DeleteEvent(ctx context.Context, integ *Integration, externalEventID string) error

	// ListCalendars returns the calendars visible to the integration.
	ListCalendars(ctx context.Context, integ *Integration) ([]CalendarInfo, error)

	// RefreshToken exchanges the stored refresh token for a new access
	// token at the provider's OAuth token endpoint.
	RefreshToken(ctx context.Context, integ *Integration) (*TokenPair, error)

	// Watch registers a push-notification subscription for the calendar
	// resource. channelToken is echoed back by the provider on every
	// notification and is validated at the inbound boundary.
	Watch(ctx context.Context, integ *Integration, callbackURL, channelID, channelToken string, lifetime time.Duration) (*WatchResult, error)

	// StopWatch cancels a push subscription. Best-effort; callers log
	// failures instead of raising them.
	StopWatch(ctx context.Context, integ *Integration, sub *WebhookSubscription) error

	// ReservationMetaFromEvent extracts the embedded reservation id from
	// a provider event payload, reporting false when the event does not
	// originate from this engine.
	ReservationMetaFromEvent(data map[string]any) (uuid.UUID, bool)
}

// ProviderConfig carries the OAuth client credentials and endpoint
// overrides for one adapter. Empty URLs fall back to the provider's
// production endpoints; tests point them at an httptest server.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// authRetry applies the adapter auth policy: run op once, and if it
// failed with an authorization error, refresh the token exactly once,
// persist it through saveToken, and retry op exactly once. Any second
// failure propagates unchanged.
func authRetry(ctx context.Context, integ *Integration, p CalendarProvider,
	saveToken func(ctx context.Context, tok *TokenPair) error, op func() error) error {

	err := op()
	if err == nil || !isAuthError(err) {
		return err
	}

	tok, rerr := p.RefreshToken(ctx, integ)
	if rerr != nil {
		return fmt.Errorf("token refresh after auth failure: %w", rerr)
	}
	integ.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		integ.RefreshToken = tok.RefreshToken
	}
	integ.TokenExpiresAt = tok.ExpiresAt
	if saveToken != nil {
		if serr := saveToken(ctx, tok); serr != nil {
			return fmt.Errorf("persist refreshed token: %w", serr)
		}
	}

	return op()
}

// doJSON performs one provider HTTP round trip, decoding a JSON response
// into out when out is non-nil. Non-2xx responses become typed
// ProviderErrors via kindForStatus.
func doJSON(ctx context.Context, client *http.Client, provider Provider, method, url, accessToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return providerErr(provider, KindData, 0, "encode request: "+err.Error())
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return providerErr(provider, KindTransport, 0, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return providerErr(provider, KindTimeout, 0, err.Error())
		}
		return providerErr(provider, KindTransport, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return providerErr(provider, kindForStatus(resp.StatusCode), resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providerErr(provider, KindTransport, resp.StatusCode, "decode response: "+err.Error())
	}
	return nil
}

// refreshViaTokenEndpoint runs the standard OAuth2 refresh_token grant
// against a provider token endpoint. Both adapters share this flow; only
// the endpoint and credentials differ.
func refreshViaTokenEndpoint(ctx context.Context, client *http.Client, provider Provider, cfg ProviderConfig, tokenURL string, integ *Integration) (*TokenPair, error) {
	form := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"refresh_token": {integ.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, providerErr(provider, KindTransport, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, providerErr(provider, KindTransport, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, providerErr(provider, KindAuth, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, providerErr(provider, KindTransport, resp.StatusCode, "decode token response: "+err.Error())
	}
	if body.AccessToken == "" {
		return nil, providerErr(provider, KindAuth, resp.StatusCode, "token endpoint returned no access_token")
	}
	return &TokenPair{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
