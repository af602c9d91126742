// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchema creates the engine tables if they don't exist.
func (e *Engine) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		return e.initializeSchemaInTx(ctx, tx)
	})
}

// initializeSchemaInTx creates the engine tables within an existing transaction
func (e *Engine) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema keeps the engine's tables out of the booking app's way
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS calsync`,

		// 1) One OAuth linkage per (user, provider); disabling flips the flag,
		//    rows are never hard-deleted while linked
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS calsync.calendar_integrations (
			id               UUID        PRIMARY KEY,
			user_id          TEXT        NOT NULL,
			provider         TEXT        NOT NULL CHECK (provider IN ('google','outlook')),
			access_token     TEXT        NOT NULL,
			refresh_token    TEXT        NOT NULL,
			token_expires_at TIMESTAMPTZ NOT NULL,
			calendar_id      TEXT        NOT NULL DEFAULT '',
			sync_enabled     BOOLEAN     NOT NULL DEFAULT TRUE,
			last_synced_at   TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, provider)
		)`,

		// 2) At most one mapping per (reservation, provider); the external
		//    event id is immutable once assigned
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS calsync.event_mappings (
			reservation_id    UUID        NOT NULL,
			provider          TEXT        NOT NULL,
			external_event_id TEXT        NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (reservation_id, provider)
		)`,

		// 3) Push-notification registrations, renewed before their short
		//    provider-imposed expiry
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS calsync.webhook_subscriptions (
			id              UUID        PRIMARY KEY,
			integration_id  UUID        NOT NULL REFERENCES calsync.calendar_integrations(id),
			provider        TEXT        NOT NULL,
			subscription_id TEXT        NOT NULL,
			resource_id     TEXT        NOT NULL DEFAULT '',
			resource_uri    TEXT        NOT NULL DEFAULT '',
			callback_url    TEXT        NOT NULL,
			channel_token   TEXT        NOT NULL,
			expires_at      TIMESTAMPTZ NOT NULL,
			is_active       BOOLEAN     NOT NULL DEFAULT TRUE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (provider, subscription_id)
		)`,

		// 4) Scheduled reminders; status transitions are monotonic and the
		//    unique key makes reminder creation idempotent
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS calsync.reminders (
			id             UUID        PRIMARY KEY,
			reservation_id UUID        NOT NULL,
			user_id        TEXT        NOT NULL,
			channel        TEXT        NOT NULL CHECK (channel IN ('email','sms','push')),
			offset_minutes INTEGER     NOT NULL CHECK (offset_minutes > 0),
			fire_at        TIMESTAMPTZ NOT NULL,
			status         TEXT        NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','sent','failed','cancelled')),
			error_detail   TEXT        NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (reservation_id, user_id, channel, offset_minutes)
		)`,

		// 5) Append-only audit trail of every sync attempt
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS calsync.sync_log (
			id             BIGSERIAL   PRIMARY KEY,
			reservation_id UUID,
			provider       TEXT        NOT NULL DEFAULT '',
			operation      TEXT        NOT NULL,
			direction      TEXT        NOT NULL CHECK (direction IN ('outbound','inbound')),
			status         TEXT        NOT NULL,
			error_detail   TEXT        NOT NULL DEFAULT '',
			ts             TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		// Indexes for the hot paths
		`CREATE INDEX IF NOT EXISTS ci_user_enabled_idx ON calsync.calendar_integrations(user_id) WHERE sync_enabled`,
		`CREATE INDEX IF NOT EXISTS ci_stale_sweep_idx ON calsync.calendar_integrations(last_synced_at) WHERE sync_enabled`,
		`CREATE INDEX IF NOT EXISTS rem_due_idx ON calsync.reminders(fire_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS rem_reservation_idx ON calsync.reminders(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS ws_expiry_idx ON calsync.webhook_subscriptions(expires_at) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS sl_reservation_ts_idx ON calsync.sync_log(reservation_id, ts)`,
	}

	for i, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("schema migration %d failed: %w", i, err)
		}
	}
	return nil
}
