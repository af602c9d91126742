// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobiletoly/go-calsync/tzcal"
)

// ReservationSource is the upstream reservation store, treated as a keyed
// read service. The engine never writes reservations.
type ReservationSource interface {
	// GetReservation returns a snapshot by id; (nil, nil) when the
	// reservation no longer exists.
	GetReservation(ctx context.Context, id uuid.UUID) (*ReservationSnapshot, error)

	// ListUserReservationsFrom returns a user's reservations starting at
	// or after the given instant.
	ListUserReservationsFrom(ctx context.Context, userID string, from time.Time) ([]*ReservationSnapshot, error)
}

// ReminderSettingsSource supplies per-user reminder preferences; nil or a
// nil result falls back to DefaultReminderSettings.
type ReminderSettingsSource interface {
	ReminderSettings(ctx context.Context, userID string) (*ReminderSettings, error)
}

// InboundHandler receives correlated webhook events for domain-level
// handling (e.g. pulling the provider-side edit back into the booking
// app). Optional; the engine always writes the audit entry itself.
type InboundHandler interface {
	OnExternalEvent(ctx context.Context, provider Provider, reservationID uuid.UUID, changeType string) error
}

// EngineConfig holds configuration for the sync engine.
type EngineConfig struct {
	AppName string

	// CallTimeout bounds every outbound provider call. Zero means 15s.
	CallTimeout time.Duration

	// WebhookCallbackURL is the public endpoint providers push to.
	WebhookCallbackURL string
	// WebhookTokenSecret signs the channel tokens echoed on callbacks.
	WebhookTokenSecret string
	// WebhookLifetime is the requested subscription lifetime. Providers
	// clamp it; Google channels often live no longer than an hour.
	WebhookLifetime time.Duration

	// DispatchBuffer widens the due-reminder window so a fixed-interval
	// sweep cannot miss reminders falling inside the next gap.
	DispatchBuffer time.Duration
	// DispatchBatchLimit bounds one dispatch sweep. Zero means 100.
	DispatchBatchLimit int

	Providers    []CalendarProvider
	Senders      map[Channel]ReminderSender
	Reservations ReservationSource
	Settings     ReminderSettingsSource // optional
	Inbound      InboundHandler         // optional

	Metrics    SyncMetricsRecorder // optional
	LogTimings bool
}

// Engine is the calendar synchronization and reminder engine: one
// instance per process, constructed at startup and passed by reference
// into request handlers and background sweeps.
type Engine struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	config    *EngineConfig
	providers map[Provider]CalendarProvider
	senders   map[Channel]ReminderSender

	mu     sync.RWMutex
	closed bool
}

// NewEngine creates the engine from an existing pool and bootstraps the
// calsync schema. The caller owns the pool lifecycle.
func NewEngine(pool *pgxpool.Pool, config *EngineConfig, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		return nil, errors.New("calsync: config is required")
	}
	if config.Reservations == nil {
		return nil, errors.New("calsync: config.Reservations is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 15 * time.Second
	}
	if config.DispatchBatchLimit <= 0 {
		config.DispatchBatchLimit = 100
	}
	if config.DispatchBuffer <= 0 {
		config.DispatchBuffer = time.Minute
	}
	if config.WebhookLifetime <= 0 {
		config.WebhookLifetime = time.Hour
	}

	engine := &Engine{
		pool:      pool,
		logger:    logger,
		config:    config,
		providers: make(map[Provider]CalendarProvider),
		senders:   make(map[Channel]ReminderSender),
	}
	for _, p := range config.Providers {
		engine.providers[p.Name()] = p
		logger.Debug("Registered calendar provider", "provider", p.Name())
	}
	for ch, s := range config.Senders {
		engine.senders[ch] = s
	}

	if err := engine.initializeSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize sync engine: %w", err)
	}
	return engine, nil
}

// Close shuts the engine down. Safe to call multiple times; does not
// close the pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.logger.Debug("Shutting down sync engine")
	e.closed = true
	return nil
}

// Pool returns the underlying connection pool for advanced callers.
func (e *Engine) Pool() *pgxpool.Pool {
	return e.pool
}

func (e *Engine) checkClosed() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.New("sync engine has been closed")
	}
	return nil
}

func (e *Engine) providerFor(name Provider) (CalendarProvider, bool) {
	p, ok := e.providers[name]
	return p, ok
}

// warnUnknownZone surfaces a reservation timezone that fails to resolve.
// Wall-time conversion falls back to UTC silently, so without this trace
// a misconfigured field zone would skew every schedule without a hint.
func (e *Engine) warnUnknownZone(res *ReservationSnapshot) {
	if res.Timezone == "" || res.Timezone == "UTC" {
		return
	}
	if tzcal.Resolve(res.Timezone, time.Now()).Zone == "UTC" {
		e.logger.Warn("Unknown reservation timezone, falling back to UTC",
			"reservation", res.ID, "timezone", res.Timezone)
	}
}

// OnReservationChange is the single entry point for reservation
// mutations. It fans the change out to every sync-enabled integration of
// the user, recomputes the reminder schedule, and appends one audit
// entry per outcome. It never returns an error: calendar sync is an
// enhancement to booking, not a precondition, so every internal failure
// ends up in the returned outcome and the audit log instead of the
// caller's write path.
func (e *Engine) OnReservationChange(ctx context.Context, change *ReservationChange) *ChangeOutcome {
	outcome := &ChangeOutcome{Change: change.Type}
	if change.Reservation != nil {
		outcome.ReservationID = change.Reservation.ID
	}

	if err := e.checkClosed(); err != nil {
		outcome.Reminders = ReminderOutcome{Status: OutcomeError, Detail: err.Error()}
		return outcome
	}
	if change.Reservation == nil {
		outcome.Reminders = ReminderOutcome{Status: OutcomeError, Detail: "change carries no reservation snapshot"}
		e.logger.Error("Reservation change without snapshot", "change", change.Type)
		return outcome
	}
	e.warnUnknownZone(change.Reservation)

	integrations, err := e.ListEnabledIntegrations(ctx, change.UserID)
	if err != nil {
		e.logger.Error("Failed to load integrations", "error", err, "user_id", change.UserID)
		e.appendSyncLog(ctx, &outcome.ReservationID, "", string(change.Type), DirectionOutbound, "error", "load integrations: "+err.Error())
	}

	// Provider fan-out: unordered and mutually independent. One
	// provider's failure must not prevent another's attempt or the
	// reminder recomputation.
	for _, integ := range integrations {
		po := e.syncToProvider(ctx, integ, change)
		outcome.Providers = append(outcome.Providers, po)

		status := "ok"
		if po.Status == OutcomeError {
			status = "error"
		} else if po.Status == OutcomeSkipped {
			status = "skipped"
		}
		e.appendSyncLog(ctx, &outcome.ReservationID, string(integ.Provider), po.Operation, DirectionOutbound, status, po.Detail)
	}

	outcome.Reminders = e.remindersForChange(ctx, change)
	reminderStatus := "ok"
	if outcome.Reminders.Status == OutcomeError {
		reminderStatus = "error"
	}
	e.appendSyncLog(ctx, &outcome.ReservationID, "", "reminders:"+string(change.Type), DirectionOutbound, reminderStatus, outcome.Reminders.Detail)

	return outcome
}

// syncToProvider runs the provider operation implied by the change type
// against one integration, under the per-call timeout and the
// refresh-once auth policy.
func (e *Engine) syncToProvider(ctx context.Context, integ *Integration, change *ReservationChange) ProviderOutcome {
	res := change.Reservation
	provider, ok := e.providerFor(integ.Provider)
	if !ok {
		return outcomeSkipped(integ.Provider, string(change.Type), "no adapter registered for provider")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	saveToken := func(ctx context.Context, tok *TokenPair) error {
		return e.saveIntegrationToken(ctx, integ, tok)
	}

	start := time.Now()
	var po ProviderOutcome
	switch change.Type {
	case ChangeCreated, ChangeUpdated:
		po = e.upsertProviderEvent(callCtx, provider, integ, res, saveToken)
	case ChangeCancelled, ChangeDeleted:
		po = e.removeProviderEvent(callCtx, provider, integ, res, saveToken)
	default:
		po = outcomeSkipped(integ.Provider, string(change.Type), "unknown change type")
	}
	e.observeSync(ctx, string(integ.Provider), po.Operation, time.Since(start), po.Status == OutcomeError)

	if po.Status == OutcomeOK {
		if err := e.touchIntegrationSynced(ctx, integ.ID, time.Now()); err != nil {
			e.logger.Warn("Failed to record sync time", "error", err, "integration", integ.ID)
		}
	} else if po.Status == OutcomeError {
		e.logger.Error("Provider sync failed",
			"provider", integ.Provider, "operation", po.Operation,
			"reservation", res.ID, "kind", po.ErrKind, "detail", po.Detail)
	}
	return po
}

// upsertProviderEvent reconciles toward the provider: update when a
// mapping exists, create otherwise. This keeps at-least-once change
// delivery idempotent: a replayed "created" simply updates.
func (e *Engine) upsertProviderEvent(ctx context.Context, provider CalendarProvider, integ *Integration, res *ReservationSnapshot, saveToken func(context.Context, *TokenPair) error) ProviderOutcome {
	mapping, err := e.GetEventMapping(ctx, res.ID, integ.Provider)
	if err != nil {
		return outcomeErr(integ.Provider, "upsert", err)
	}

	if mapping != nil {
		err = authRetry(ctx, integ, provider, saveToken, func() error {
			return provider.UpdateEvent(ctx, integ, mapping.ExternalEventID, res)
		})
		if isNotFound(err) {
			// Event vanished provider-side; drop the stale mapping and recreate.
			if derr := e.deleteEventMapping(ctx, res.ID, integ.Provider); derr != nil {
				return outcomeErr(integ.Provider, "update", derr)
			}
			mapping = nil
			err = nil
		}
		if err != nil {
			return outcomeErr(integ.Provider, "update", err)
		}
		if mapping != nil {
			return outcomeOK(integ.Provider, "update", mapping.ExternalEventID)
		}
	}

	var externalID string
	err = authRetry(ctx, integ, provider, saveToken, func() error {
		id, cerr := provider.CreateEvent(ctx, integ, res)
		if cerr != nil {
			return cerr
		}
		externalID = id
		return nil
	})
	if err != nil {
		return outcomeErr(integ.Provider, "create", err)
	}
	if err := e.saveEventMapping(ctx, res.ID, integ.Provider, externalID); err != nil {
		return outcomeErr(integ.Provider, "create", err)
	}
	return outcomeOK(integ.Provider, "create", externalID)
}

// removeProviderEvent deletes the provider-side event if a mapping
// exists. Not-found counts as success: the target state is reached.
func (e *Engine) removeProviderEvent(ctx context.Context, provider CalendarProvider, integ *Integration, res *ReservationSnapshot, saveToken func(context.Context, *TokenPair) error) ProviderOutcome {
	mapping, err := e.GetEventMapping(ctx, res.ID, integ.Provider)
	if err != nil {
		return outcomeErr(integ.Provider, "delete", err)
	}
	if mapping == nil {
		return outcomeSkipped(integ.Provider, "delete", "no provider-side event to delete")
	}

	err = authRetry(ctx, integ, provider, saveToken, func() error {
		return provider.DeleteEvent(ctx, integ, mapping.ExternalEventID)
	})
	if err != nil {
		return outcomeErr(integ.Provider, "delete", err)
	}
	if err := e.deleteEventMapping(ctx, res.ID, integ.Provider); err != nil {
		return outcomeErr(integ.Provider, "delete", err)
	}
	return outcomeOK(integ.Provider, "delete", mapping.ExternalEventID)
}

// remindersForChange recomputes the reminder schedule implied by a
// status or timing transition.
func (e *Engine) remindersForChange(ctx context.Context, change *ReservationChange) ReminderOutcome {
	res := change.Reservation

	switch change.Type {
	case ChangeCancelled, ChangeDeleted:
		n, err := e.CancelReminders(ctx, res.ID)
		if err != nil {
			return ReminderOutcome{Status: OutcomeError, Detail: err.Error()}
		}
		return ReminderOutcome{Status: OutcomeOK, Cancelled: n}

	case ChangeCreated:
		if res.Status != StatusConfirmed {
			return ReminderOutcome{Status: OutcomeOK, Detail: "reservation not confirmed, no reminders"}
		}
		return e.createRemindersOutcome(ctx, res, change.UserID)

	case ChangeUpdated:
		if res.Status == StatusCancelled {
			n, err := e.CancelReminders(ctx, res.ID)
			if err != nil {
				return ReminderOutcome{Status: OutcomeError, Detail: err.Error()}
			}
			return ReminderOutcome{Status: OutcomeOK, Cancelled: n}
		}
		becameConfirmed := res.Status == StatusConfirmed &&
			(change.Previous == nil || change.Previous.Status != StatusConfirmed)
		if becameConfirmed {
			return e.createRemindersOutcome(ctx, res, change.UserID)
		}
		timingChanged := change.Previous == nil ||
			!change.Previous.Date.Equal(res.Date) ||
			change.Previous.StartTime != res.StartTime ||
			change.Previous.Timezone != res.Timezone
		if timingChanged {
			start, err := res.StartInstant()
			if err != nil {
				return ReminderOutcome{Status: OutcomeError, Detail: "resolve start: " + err.Error()}
			}
			rescheduled, cancelled, err := e.UpdateReminders(ctx, res.ID, start)
			if err != nil {
				return ReminderOutcome{Status: OutcomeError, Detail: err.Error()}
			}
			return ReminderOutcome{Status: OutcomeOK, Rescheduled: rescheduled, Cancelled: cancelled}
		}
		return ReminderOutcome{Status: OutcomeOK, Detail: "no reminder-relevant change"}
	}

	return ReminderOutcome{Status: OutcomeOK}
}

func (e *Engine) createRemindersOutcome(ctx context.Context, res *ReservationSnapshot, userID string) ReminderOutcome {
	settings := e.settingsFor(ctx, userID)
	created, err := e.CreateReminders(ctx, res, userID, settings)
	if err != nil {
		return ReminderOutcome{Status: OutcomeError, Created: created, Detail: err.Error()}
	}
	return ReminderOutcome{Status: OutcomeOK, Created: created}
}

func (e *Engine) settingsFor(ctx context.Context, userID string) *ReminderSettings {
	if e.config.Settings != nil {
		settings, err := e.config.Settings.ReminderSettings(ctx, userID)
		if err != nil {
			e.logger.Warn("Failed to load reminder settings, using defaults", "error", err, "user_id", userID)
		} else if settings != nil {
			return settings
		}
	}
	return DefaultReminderSettings()
}
