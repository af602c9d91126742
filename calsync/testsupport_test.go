// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// staticReservationSource serves a fixed reservation set.
type staticReservationSource struct {
	mu           sync.RWMutex
	reservations map[uuid.UUID]*ReservationSnapshot
}

func (s *staticReservationSource) put(res *ReservationSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reservations == nil {
		s.reservations = map[uuid.UUID]*ReservationSnapshot{}
	}
	s.reservations[res.ID] = res
}

func (s *staticReservationSource) GetReservation(_ context.Context, id uuid.UUID) (*ReservationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservations[id], nil
}

func (s *staticReservationSource) ListUserReservationsFrom(_ context.Context, userID string, from time.Time) ([]*ReservationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ReservationSnapshot
	for _, res := range s.reservations {
		if res.UserID != userID {
			continue
		}
		start, err := res.StartInstant()
		if err != nil {
			continue
		}
		if !start.Before(from) {
			out = append(out, res)
		}
	}
	return out, nil
}

// scriptedProvider is a fully scriptable adapter for engine-level tests.
// Unset hooks succeed with canned values.
type scriptedProvider struct {
	name      Provider
	createErr error
	updateErr error
	deleteErr error
	watchErr  error

	mu      sync.Mutex
	created []uuid.UUID
	updated []string
	deleted []string
	stopped []string
}

func (s *scriptedProvider) Name() Provider { return s.name }

func (s *scriptedProvider) CreateEvent(_ context.Context, _ *Integration, res *ReservationSnapshot) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, res.ID)
	return "ev-" + string(s.name) + "-" + res.ID.String()[:8], nil
}

func (s *scriptedProvider) UpdateEvent(_ context.Context, _ *Integration, externalEventID string, _ *ReservationSnapshot) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, externalEventID)
	return nil
}

func (s *scriptedProvider) DeleteEvent(_ context.Context, _ *Integration, externalEventID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, externalEventID)
	return nil
}

func (s *scriptedProvider) ListCalendars(context.Context, *Integration) ([]CalendarInfo, error) {
	return []CalendarInfo{{ID: "primary", Summary: "Primary", Primary: true}}, nil
}

func (s *scriptedProvider) RefreshToken(context.Context, *Integration) (*TokenPair, error) {
	return &TokenPair{AccessToken: "refreshed", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *scriptedProvider) Watch(_ context.Context, _ *Integration, _, channelID, _ string, lifetime time.Duration) (*WatchResult, error) {
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	return &WatchResult{
		SubscriptionID: "sub-" + channelID,
		ResourceID:     "resource-" + channelID,
		ExpiresAt:      time.Now().Add(lifetime),
	}, nil
}

func (s *scriptedProvider) StopWatch(_ context.Context, _ *Integration, sub *WebhookSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, sub.SubscriptionID)
	return nil
}

func (s *scriptedProvider) ReservationMetaFromEvent(data map[string]any) (uuid.UUID, bool) {
	raw, ok := data["reservationId"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// recordingSender appends every delivered message for inspection.
type recordingSender struct {
	mu       sync.Mutex
	messages []*ReminderMessage
	fail     bool
}

func (r *recordingSender) Send(_ context.Context, msg *ReminderMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return context.DeadlineExceeded
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
