// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Integration persistence. Rows are read-then-write on token refresh
// without optimistic locking: refreshes are idempotent, a second refresh
// simply yields a newer token.

// SaveIntegration upserts the (user, provider) linkage. Used when a user
// links a provider account or changes the target calendar.
func (e *Engine) SaveIntegration(ctx context.Context, integ *Integration) error {
	if integ.ID == uuid.Nil {
		integ.ID = uuid.New()
	}
	_, err := e.pool.Exec(ctx, `
		INSERT INTO calsync.calendar_integrations
			(id, user_id, provider, access_token, refresh_token, token_expires_at, calendar_id, sync_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			calendar_id = EXCLUDED.calendar_id,
			sync_enabled = EXCLUDED.sync_enabled`,
		integ.ID, integ.UserID, integ.Provider, integ.AccessToken, integ.RefreshToken,
		integ.TokenExpiresAt, integ.CalendarID, integ.SyncEnabled)
	if err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	return nil
}

func scanIntegration(row pgx.Row) (*Integration, error) {
	var integ Integration
	err := row.Scan(&integ.ID, &integ.UserID, &integ.Provider, &integ.AccessToken,
		&integ.RefreshToken, &integ.TokenExpiresAt, &integ.CalendarID,
		&integ.SyncEnabled, &integ.LastSyncedAt, &integ.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &integ, nil
}

const integrationColumns = `id, user_id, provider, access_token, refresh_token,
	token_expires_at, calendar_id, sync_enabled, last_synced_at, created_at`

// GetIntegration loads one integration by id; (nil, nil) when absent.
func (e *Engine) GetIntegration(ctx context.Context, id uuid.UUID) (*Integration, error) {
	integ, err := scanIntegration(e.pool.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM calsync.calendar_integrations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return integ, nil
}

// ListEnabledIntegrations returns every sync-enabled integration of one user.
func (e *Engine) ListEnabledIntegrations(ctx context.Context, userID string) ([]*Integration, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT `+integrationColumns+` FROM calsync.calendar_integrations
		 WHERE user_id = $1 AND sync_enabled ORDER BY provider`, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []*Integration
	for rows.Next() {
		integ, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, integ)
	}
	return out, rows.Err()
}

// DisableIntegration turns sync off without deleting the linkage.
func (e *Engine) DisableIntegration(ctx context.Context, id uuid.UUID) error {
	_, err := e.pool.Exec(ctx,
		`UPDATE calsync.calendar_integrations SET sync_enabled = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable integration: %w", err)
	}
	return nil
}

func (e *Engine) saveIntegrationToken(ctx context.Context, integ *Integration, tok *TokenPair) error {
	refresh := integ.RefreshToken
	if tok.RefreshToken != "" {
		refresh = tok.RefreshToken
	}
	_, err := e.pool.Exec(ctx, `
		UPDATE calsync.calendar_integrations
		SET access_token = $2, refresh_token = $3, token_expires_at = $4
		WHERE id = $1`,
		integ.ID, tok.AccessToken, refresh, tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save refreshed token: %w", err)
	}
	return nil
}

func (e *Engine) touchIntegrationSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := e.pool.Exec(ctx,
		`UPDATE calsync.calendar_integrations SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}

// Event mapping persistence.

// GetEventMapping returns the (reservation, provider) mapping or (nil, nil).
func (e *Engine) GetEventMapping(ctx context.Context, reservationID uuid.UUID, provider Provider) (*EventMapping, error) {
	var m EventMapping
	err := e.pool.QueryRow(ctx, `
		SELECT reservation_id, provider, external_event_id, created_at
		FROM calsync.event_mappings WHERE reservation_id = $1 AND provider = $2`,
		reservationID, provider).
		Scan(&m.ReservationID, &m.Provider, &m.ExternalEventID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event mapping: %w", err)
	}
	return &m, nil
}

// saveEventMapping records a provider-assigned event id. DO NOTHING on
// conflict: event ids are immutable and a concurrent create already won.
func (e *Engine) saveEventMapping(ctx context.Context, reservationID uuid.UUID, provider Provider, externalEventID string) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO calsync.event_mappings (reservation_id, provider, external_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (reservation_id, provider) DO NOTHING`,
		reservationID, provider, externalEventID)
	if err != nil {
		return fmt.Errorf("save event mapping: %w", err)
	}
	return nil
}

func (e *Engine) deleteEventMapping(ctx context.Context, reservationID uuid.UUID, provider Provider) error {
	_, err := e.pool.Exec(ctx,
		`DELETE FROM calsync.event_mappings WHERE reservation_id = $1 AND provider = $2`,
		reservationID, provider)
	if err != nil {
		return fmt.Errorf("delete event mapping: %w", err)
	}
	return nil
}

// listEventMappings pages through all mappings for maintenance sweeps.
// The cursor is the full (reservation_id, provider) sort key so a page
// boundary splitting one reservation's rows loses nothing.
func (e *Engine) listEventMappings(ctx context.Context, afterReservation uuid.UUID, afterProvider Provider, limit int) ([]*EventMapping, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT reservation_id, provider, external_event_id, created_at
		FROM calsync.event_mappings
		WHERE (reservation_id, provider) > ($1, $2)
		ORDER BY reservation_id, provider LIMIT $3`, afterReservation, afterProvider, limit)
	if err != nil {
		return nil, fmt.Errorf("list event mappings: %w", err)
	}
	defer rows.Close()

	var out []*EventMapping
	for rows.Next() {
		var m EventMapping
		if err := rows.Scan(&m.ReservationID, &m.Provider, &m.ExternalEventID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event mapping: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Webhook subscription persistence.

const subscriptionColumns = `id, integration_id, provider, subscription_id, resource_id,
	resource_uri, callback_url, channel_token, expires_at, is_active, created_at`

func scanSubscription(row pgx.Row) (*WebhookSubscription, error) {
	var s WebhookSubscription
	err := row.Scan(&s.ID, &s.IntegrationID, &s.Provider, &s.SubscriptionID, &s.ResourceID,
		&s.ResourceURI, &s.CallbackURL, &s.ChannelToken, &s.ExpiresAt, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *Engine) insertSubscription(ctx context.Context, s *WebhookSubscription) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO calsync.webhook_subscriptions
			(id, integration_id, provider, subscription_id, resource_id, resource_uri,
			 callback_url, channel_token, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.IntegrationID, s.Provider, s.SubscriptionID, s.ResourceID, s.ResourceURI,
		s.CallbackURL, s.ChannelToken, s.ExpiresAt, s.IsActive)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func (e *Engine) getSubscription(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	s, err := scanSubscription(e.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM calsync.webhook_subscriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription: %w", err)
	}
	return s, nil
}

// getSubscriptionByProviderID resolves the provider-assigned id carried
// by inbound notifications.
func (e *Engine) getSubscriptionByProviderID(ctx context.Context, provider Provider, subscriptionID string) (*WebhookSubscription, error) {
	s, err := scanSubscription(e.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM calsync.webhook_subscriptions
		 WHERE provider = $1 AND subscription_id = $2`, provider, subscriptionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription by provider id: %w", err)
	}
	return s, nil
}

func (e *Engine) updateSubscriptionRegistration(ctx context.Context, id uuid.UUID, res *WatchResult, channelToken string) error {
	_, err := e.pool.Exec(ctx, `
		UPDATE calsync.webhook_subscriptions
		SET subscription_id = $2, resource_id = $3, channel_token = $4, expires_at = $5, is_active = TRUE
		WHERE id = $1`,
		id, res.SubscriptionID, res.ResourceID, channelToken, res.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update webhook registration: %w", err)
	}
	return nil
}

func (e *Engine) markSubscriptionInactive(ctx context.Context, id uuid.UUID) error {
	_, err := e.pool.Exec(ctx,
		`UPDATE calsync.webhook_subscriptions SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark webhook inactive: %w", err)
	}
	return nil
}

func (e *Engine) deleteSubscription(ctx context.Context, id uuid.UUID) error {
	_, err := e.pool.Exec(ctx,
		`DELETE FROM calsync.webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	return nil
}

func (e *Engine) listExpiredSubscriptions(ctx context.Context, now time.Time) ([]*WebhookSubscription, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM calsync.webhook_subscriptions
		 WHERE is_active AND expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// listRenewableSubscriptions returns active subscriptions expiring within
// the horizon, for the renewal sweep.
func (e *Engine) listRenewableSubscriptions(ctx context.Context, horizon time.Time) ([]*WebhookSubscription, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM calsync.webhook_subscriptions
		 WHERE is_active AND expires_at <= $1 AND expires_at > now()`, horizon)
	if err != nil {
		return nil, fmt.Errorf("list renewable subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// listStaleUsers returns users owning a sync-enabled integration that has
// not completed a sync since the cutoff (or ever).
func (e *Engine) listStaleUsers(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM calsync.calendar_integrations
		WHERE sync_enabled AND (last_synced_at IS NULL OR last_synced_at < $1)
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}
