// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bulk and maintenance operations are built on the same
// OnReservationChange primitive as the request path. All of them
// aggregate per-item failures into a result summary instead of raising:
// a half-failed sweep is a report, not an exception.

// BulkSyncResult summarizes one BulkSyncUser run.
type BulkSyncResult struct {
	UserID  string
	Total   int
	Synced  int
	Skipped int
	Failed  int
	Errors  []string
}

// BulkSyncUser resyncs all of a user's future reservations. Without
// force, reservations that already carry a mapping for every enabled
// integration are skipped; force pushes an update for everything.
func (e *Engine) BulkSyncUser(ctx context.Context, userID string, force bool) (*BulkSyncResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	result := &BulkSyncResult{UserID: userID}
	start := time.Now()

	integrations, err := e.ListEnabledIntegrations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(integrations) == 0 {
		return result, nil
	}

	reservations, err := e.config.Reservations.ListUserReservationsFrom(ctx, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list user reservations: %w", err)
	}
	result.Total = len(reservations)

	for _, res := range reservations {
		if res.Status == StatusCancelled {
			result.Skipped++
			continue
		}
		if !force {
			mapped := true
			for _, integ := range integrations {
				m, merr := e.GetEventMapping(ctx, res.ID, integ.Provider)
				if merr != nil || m == nil {
					mapped = false
					break
				}
			}
			if mapped {
				result.Skipped++
				continue
			}
		}

		outcome := e.OnReservationChange(ctx, &ReservationChange{
			Type:        ChangeUpdated,
			Reservation: res,
			Previous:    res,
			UserID:      userID,
		})
		if outcome.Failed() {
			result.Failed++
			for _, po := range outcome.Providers {
				if po.Status == OutcomeError {
					result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %s", res.ID, po.Provider, po.Detail))
				}
			}
		} else {
			result.Synced++
		}
	}

	e.observeSync(ctx, "", MetricsOpBulkSync, time.Since(start), result.Failed > 0)
	e.logger.Info("Bulk sync finished",
		"user_id", userID, "total", result.Total, "synced", result.Synced,
		"skipped", result.Skipped, "failed", result.Failed, "force", force)
	return result, nil
}

// CleanupResult summarizes one orphaned-event sweep.
type CleanupResult struct {
	Scanned int
	Deleted int
	Failed  int
	Errors  []string
}

// CleanupOrphanedEvents deletes provider-side events whose reservation
// is cancelled or gone but which still carry a mapping. Paged by the
// mapping key so the sweep stays bounded regardless of table size.
func (e *Engine) CleanupOrphanedEvents(ctx context.Context) (*CleanupResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	result := &CleanupResult{}
	start := time.Now()

	const pageSize = 200
	cursorID := uuid.Nil
	cursorProvider := Provider("")
	for {
		mappings, err := e.listEventMappings(ctx, cursorID, cursorProvider, pageSize)
		if err != nil {
			return nil, err
		}
		if len(mappings) == 0 {
			break
		}
		last := mappings[len(mappings)-1]
		cursorID, cursorProvider = last.ReservationID, last.Provider

		for _, m := range mappings {
			result.Scanned++
			res, rerr := e.config.Reservations.GetReservation(ctx, m.ReservationID)
			if rerr != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: load reservation: %s", m.ReservationID, rerr))
				continue
			}
			if res != nil && res.Status != StatusCancelled {
				continue
			}
			if err := e.deleteOrphanMapping(ctx, m); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %s", m.ReservationID, m.Provider, err))
				continue
			}
			result.Deleted++
		}
		if len(mappings) < pageSize {
			break
		}
	}

	e.observeSync(ctx, "", MetricsOpOrphanCleanup, time.Since(start), result.Failed > 0)
	e.logger.Info("Orphan cleanup finished",
		"scanned", result.Scanned, "deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}

// deleteOrphanMapping removes the provider-side event behind one stale
// mapping, then the mapping itself.
func (e *Engine) deleteOrphanMapping(ctx context.Context, m *EventMapping) error {
	integ, err := e.integrationForMapping(ctx, m)
	if err != nil {
		return err
	}
	if integ != nil {
		provider, ok := e.providerFor(m.Provider)
		if !ok {
			return fmt.Errorf("no adapter registered for provider %q", m.Provider)
		}
		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		defer cancel()
		err = authRetry(callCtx, integ, provider, func(ctx context.Context, tok *TokenPair) error {
			return e.saveIntegrationToken(ctx, integ, tok)
		}, func() error {
			return provider.DeleteEvent(callCtx, integ, m.ExternalEventID)
		})
		if err != nil {
			return err
		}
	}
	if err := e.deleteEventMapping(ctx, m.ReservationID, m.Provider); err != nil {
		return err
	}
	e.appendSyncLog(ctx, &m.ReservationID, string(m.Provider), "orphan_cleanup", DirectionOutbound, "ok", "")
	return nil
}

// integrationForMapping finds the sync-enabled integration able to reach
// the mapping's provider, via the reservation owner when the reservation
// still exists.
func (e *Engine) integrationForMapping(ctx context.Context, m *EventMapping) (*Integration, error) {
	res, err := e.config.Reservations.GetReservation(ctx, m.ReservationID)
	if err != nil || res == nil {
		// Owner unknown; the provider-side event is unreachable and only
		// the local mapping can be cleaned.
		return nil, nil
	}
	integrations, err := e.ListEnabledIntegrations(ctx, res.UserID)
	if err != nil {
		return nil, err
	}
	for _, integ := range integrations {
		if integ.Provider == m.Provider {
			return integ, nil
		}
	}
	return nil, nil
}

// SweepResult summarizes one SweepAllUsers run.
type SweepResult struct {
	Users  int
	Synced int
	Failed int
	Errors []string
}

// SweepAllUsers bulk-syncs every user owning an enabled integration that
// has not synced within staleAfter, throttled by a short pause between
// users to keep provider rate limits comfortable.
func (e *Engine) SweepAllUsers(ctx context.Context, staleAfter time.Duration, maxUsers int) (*SweepResult, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if maxUsers <= 0 {
		maxUsers = 100
	}
	users, err := e.listStaleUsers(ctx, time.Now().Add(-staleAfter), maxUsers)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Users: len(users)}
	for i, userID := range users {
		if i > 0 {
			if err := sleepWithContext(ctx, 250*time.Millisecond); err != nil {
				return result, err
			}
		}
		br, berr := e.BulkSyncUser(ctx, userID, false)
		if berr != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", userID, berr))
			continue
		}
		if br.Failed > 0 {
			result.Failed++
			result.Errors = append(result.Errors, br.Errors...)
		} else {
			result.Synced++
		}
	}
	return result, nil
}
