// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// appendSyncLog writes one audit record. Audit writes are themselves
// best-effort: a failed append is logged and swallowed so bookkeeping
// can never take down the sync path it observes.
func (e *Engine) appendSyncLog(ctx context.Context, reservationID *uuid.UUID, provider, operation string, direction SyncDirection, status, errorDetail string) {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO calsync.sync_log (reservation_id, provider, operation, direction, status, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		reservationID, provider, operation, direction, status, errorDetail)
	if err != nil {
		e.logger.Error("Failed to append sync log entry",
			"error", err, "operation", operation, "status", status)
	}
}

// ListSyncLog returns the most recent audit entries for one reservation,
// newest first.
func (e *Engine) ListSyncLog(ctx context.Context, reservationID uuid.UUID, limit int) ([]*SyncLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := e.pool.Query(ctx, `
		SELECT id, reservation_id, provider, operation, direction, status, error_detail, ts
		FROM calsync.sync_log
		WHERE reservation_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2`, reservationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	defer rows.Close()

	var out []*SyncLogEntry
	for rows.Next() {
		var entry SyncLogEntry
		if err := rows.Scan(&entry.ID, &entry.ReservationID, &entry.Provider, &entry.Operation,
			&entry.Direction, &entry.Status, &entry.ErrorDetail, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sync log entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
