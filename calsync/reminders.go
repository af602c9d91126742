// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReminderMessage is the fire-and-forget contract with delivery channels.
type ReminderMessage struct {
	Recipient string
	Title     string
	Body      string
	Metadata  map[string]string
}

// ReminderSender delivers one reminder over one channel. Failures are
// captured on the reminder record, not retried by this subsystem.
type ReminderSender interface {
	Send(ctx context.Context, msg *ReminderMessage) error
}

// ReminderSenderFunc adapts a function to ReminderSender.
type ReminderSenderFunc func(ctx context.Context, msg *ReminderMessage) error

func (f ReminderSenderFunc) Send(ctx context.Context, msg *ReminderMessage) error {
	return f(ctx, msg)
}

// plannedReminder is one computed (channel, offset, fireAt) row before
// persistence.
type plannedReminder struct {
	Channel       Channel
	OffsetMinutes int
	FireAt        time.Time
}

// computeFireTimes crosses enabled channels with enabled offsets and
// drops any fire time already in the past. The start instant is UTC, so
// offsets subtract cleanly even when the local wall time sits next to a
// DST gap: a 1h-before reminder for an 01:30 start on a spring-forward
// morning fires at 00:30 under the pre-transition offset.
func computeFireTimes(start time.Time, settings *ReminderSettings, now time.Time) []plannedReminder {
	if settings == nil {
		settings = DefaultReminderSettings()
	}
	var out []plannedReminder
	for _, ch := range settings.Channels {
		for _, offset := range settings.OffsetsMinutes {
			if offset <= 0 {
				continue
			}
			fireAt := start.Add(-time.Duration(offset) * time.Minute)
			if !fireAt.After(now) {
				continue
			}
			out = append(out, plannedReminder{Channel: ch, OffsetMinutes: offset, FireAt: fireAt})
		}
	}
	return out
}

// CreateReminders schedules reminders for a reservation according to the
// settings. Computations resolving to past instants are skipped, and the
// unique key makes re-creation idempotent: sent and failed rows stay
// terminal so a replay cannot double-deliver, while cancelled rows are
// removed first so a reservation coming back to confirmed gets a fresh
// schedule. Returns the number of rows inserted.
func (e *Engine) CreateReminders(ctx context.Context, res *ReservationSnapshot, userID string, settings *ReminderSettings) (int, error) {
	if err := e.checkClosed(); err != nil {
		return 0, err
	}
	start, err := res.StartInstant()
	if err != nil {
		return 0, fmt.Errorf("resolve reservation start: %w", err)
	}

	if _, err := e.pool.Exec(ctx, `
		DELETE FROM calsync.reminders
		WHERE reservation_id = $1 AND user_id = $2 AND status = 'cancelled'`,
		res.ID, userID); err != nil {
		return 0, fmt.Errorf("clear cancelled reminders: %w", err)
	}

	planned := computeFireTimes(start, settings, time.Now())
	created := 0
	for _, p := range planned {
		tag, err := e.pool.Exec(ctx, `
			INSERT INTO calsync.reminders
				(id, reservation_id, user_id, channel, offset_minutes, fire_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (reservation_id, user_id, channel, offset_minutes) DO NOTHING`,
			uuid.New(), res.ID, userID, p.Channel, p.OffsetMinutes, p.FireAt)
		if err != nil {
			return created, fmt.Errorf("insert reminder: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	e.logger.Debug("Created reminders", "reservation", res.ID, "count", created)
	return created, nil
}

// UpdateReminders recomputes fire times for every still-pending reminder
// of a reservation after its start moved. Reminders whose new fire time
// is still in the future are rescheduled in place; the rest are
// cancelled. Returns (rescheduled, cancelled).
func (e *Engine) UpdateReminders(ctx context.Context, reservationID uuid.UUID, newStart time.Time) (int, int, error) {
	if err := e.checkClosed(); err != nil {
		return 0, 0, err
	}

	var rescheduled, cancelled int
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, offset_minutes FROM calsync.reminders
			WHERE reservation_id = $1 AND status = 'pending'
			FOR UPDATE`, reservationID)
		if err != nil {
			return fmt.Errorf("select pending reminders: %w", err)
		}
		type pending struct {
			id     uuid.UUID
			offset int
		}
		var items []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.offset); err != nil {
				rows.Close()
				return fmt.Errorf("scan pending reminder: %w", err)
			}
			items = append(items, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for _, p := range items {
			fireAt := newStart.Add(-time.Duration(p.offset) * time.Minute)
			if fireAt.After(now) {
				if _, err := tx.Exec(ctx, `
					UPDATE calsync.reminders SET fire_at = $2, updated_at = now()
					WHERE id = $1`, p.id, fireAt); err != nil {
					return fmt.Errorf("reschedule reminder: %w", err)
				}
				rescheduled++
			} else {
				if _, err := tx.Exec(ctx, `
					UPDATE calsync.reminders SET status = 'cancelled', updated_at = now()
					WHERE id = $1`, p.id); err != nil {
					return fmt.Errorf("cancel past reminder: %w", err)
				}
				cancelled++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return rescheduled, cancelled, nil
}

// CancelReminders cancels every pending reminder of a reservation.
// Idempotent; terminal reminders are untouched.
func (e *Engine) CancelReminders(ctx context.Context, reservationID uuid.UUID) (int, error) {
	if err := e.checkClosed(); err != nil {
		return 0, err
	}
	tag, err := e.pool.Exec(ctx, `
		UPDATE calsync.reminders SET status = 'cancelled', updated_at = now()
		WHERE reservation_id = $1 AND status = 'pending'`, reservationID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DispatchSummary aggregates one ProcessDue sweep.
type DispatchSummary struct {
	Selected int
	Sent     int
	Failed   int
	Errors   []string
}

// ProcessDue selects pending reminders due within now+buffer, bounded to
// the batch limit, and dispatches each through its channel sender. Each
// reminder terminates at sent or failed; delivery errors are captured on
// the record, never raised. SKIP LOCKED keeps concurrent sweeps from
// double-sending.
func (e *Engine) ProcessDue(ctx context.Context, now time.Time, buffer time.Duration, batchLimit int) (*DispatchSummary, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = e.config.DispatchBuffer
	}
	if batchLimit <= 0 {
		batchLimit = e.config.DispatchBatchLimit
	}

	summary := &DispatchSummary{}
	sweepStart := time.Now()

	sweep := func() error {
		return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				SELECT id, reservation_id, user_id, channel, offset_minutes, fire_at
				FROM calsync.reminders
				WHERE status = 'pending' AND fire_at <= $1
				ORDER BY fire_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED`, now.Add(buffer), batchLimit)
			if err != nil {
				return fmt.Errorf("select due reminders: %w", err)
			}
			var due []ReminderRecord
			for rows.Next() {
				var r ReminderRecord
				if err := rows.Scan(&r.ID, &r.ReservationID, &r.UserID, &r.Channel, &r.OffsetMinutes, &r.FireAt); err != nil {
					rows.Close()
					return fmt.Errorf("scan due reminder: %w", err)
				}
				due = append(due, r)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
			summary.Selected = len(due)

			for _, r := range due {
				sendErr := e.dispatchOne(ctx, &r)
				if sendErr == nil {
					if _, err := tx.Exec(ctx, `
						UPDATE calsync.reminders SET status = 'sent', updated_at = now()
						WHERE id = $1`, r.ID); err != nil {
						return fmt.Errorf("mark reminder sent: %w", err)
					}
					summary.Sent++
				} else {
					detail := sendErr.Error()
					if _, err := tx.Exec(ctx, `
						UPDATE calsync.reminders SET status = 'failed', error_detail = $2, updated_at = now()
						WHERE id = $1`, r.ID, detail); err != nil {
						return fmt.Errorf("mark reminder failed: %w", err)
					}
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s/%s: %s", r.ReservationID, r.Channel, detail))
					e.logger.Error("Reminder dispatch failed",
						"reminder", r.ID, "reservation", r.ReservationID, "channel", r.Channel, "error", sendErr)
				}
			}
			return nil
		})
	}

	err := withPGTxRetry(ctx, func() { *summary = DispatchSummary{} }, sweep)
	if err != nil {
		return nil, fmt.Errorf("process due reminders: %w", err)
	}

	e.observeSync(ctx, "", MetricsOpReminderDispatch, time.Since(sweepStart), summary.Failed > 0)
	if summary.Selected > 0 {
		e.logger.Info("Dispatched reminders", "selected", summary.Selected, "sent", summary.Sent, "failed", summary.Failed)
	}
	return summary, nil
}

// dispatchOne builds the message for one due reminder and hands it to
// the channel sender.
func (e *Engine) dispatchOne(ctx context.Context, r *ReminderRecord) error {
	sender, ok := e.senders[r.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", r.Channel)
	}

	title := "Upcoming field reservation"
	body := fmt.Sprintf("Your reservation starts in about %s.", humanOffset(r.OffsetMinutes))
	if res, err := e.config.Reservations.GetReservation(ctx, r.ReservationID); err == nil && res != nil {
		title = fmt.Sprintf("Reminder: %s", res.FieldName)
		body = fmt.Sprintf("Your reservation at %s starts at %s (%s).", res.FieldName, res.StartTime, res.Timezone)
	}

	return sender.Send(ctx, &ReminderMessage{
		Recipient: r.UserID,
		Title:     title,
		Body:      body,
		Metadata: map[string]string{
			"reservation_id": r.ReservationID.String(),
			"channel":        string(r.Channel),
			"offset_minutes": fmt.Sprintf("%d", r.OffsetMinutes),
		},
	})
}

func humanOffset(minutes int) string {
	if minutes%1440 == 0 {
		return fmt.Sprintf("%d day(s)", minutes/1440)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%d hour(s)", minutes/60)
	}
	return fmt.Sprintf("%d minute(s)", minutes)
}

// PendingReminders lists the pending reminders of one reservation, for
// observability and tests.
func (e *Engine) PendingReminders(ctx context.Context, reservationID uuid.UUID) ([]*ReminderRecord, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, reservation_id, user_id, channel, offset_minutes, fire_at, status, error_detail, created_at, updated_at
		FROM calsync.reminders
		WHERE reservation_id = $1 AND status = 'pending'
		ORDER BY fire_at`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	defer rows.Close()

	var out []*ReminderRecord
	for rows.Next() {
		var r ReminderRecord
		if err := rows.Scan(&r.ID, &r.ReservationID, &r.UserID, &r.Channel, &r.OffsetMinutes,
			&r.FireAt, &r.Status, &r.ErrorDetail, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
