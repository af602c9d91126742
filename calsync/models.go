// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"time"

	"github.com/google/uuid"

	"github.com/mobiletoly/go-calsync/tzcal"
)

// Provider identifies an external calendar provider.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

// ChangeType tags a reservation mutation delivered to the engine.
type ChangeType string

const (
	ChangeCreated   ChangeType = "created"
	ChangeUpdated   ChangeType = "updated"
	ChangeCancelled ChangeType = "cancelled"
	ChangeDeleted   ChangeType = "deleted"
)

// ReservationStatus is the three-way status every provider mapping is
// derived from.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

// ReservationSnapshot is an immutable view of a reservation at the time
// of a change. The engine never mutates reservations; the upstream CRUD
// layer owns them and hands snapshots across this boundary.
type ReservationSnapshot struct {
	ID            uuid.UUID
	UserID        string
	FieldID       uuid.UUID
	FieldName     string
	Location      string
	TeamID        *uuid.UUID
	Date          time.Time // date component only, zone-agnostic
	StartTime     string    // wall clock "15:04"
	EndTime       string    // wall clock "15:04"
	Timezone      string    // IANA identifier of the field's zone
	Status        ReservationStatus
	Purpose       string
	AttendeeCount int
}

// StartInstant resolves the reservation's wall-clock start into a UTC
// instant using the field's zone.
func (r *ReservationSnapshot) StartInstant() (time.Time, error) {
	return tzcal.WallToUTC(r.Date, r.StartTime, r.Timezone)
}

// EndInstant resolves the reservation's wall-clock end into a UTC instant.
func (r *ReservationSnapshot) EndInstant() (time.Time, error) {
	end, err := tzcal.WallToUTC(r.Date, r.EndTime, r.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	// Reservations never span midnight in the booking UI, but guard the
	// degenerate ordering anyway.
	if start, serr := r.StartInstant(); serr == nil && end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	return end, nil
}

// ReservationChange is the descriptor the upstream CRUD layer delivers
// for every reservation mutation.
type ReservationChange struct {
	Type        ChangeType
	Reservation *ReservationSnapshot
	Previous    *ReservationSnapshot // nil for created
	UserID      string
}

// Integration is one stored (user, provider) OAuth linkage.
type Integration struct {
	ID             uuid.UUID  `db:"id"`
	UserID         string     `db:"user_id"`
	Provider       Provider   `db:"provider"`
	AccessToken    string     `db:"access_token"`
	RefreshToken   string     `db:"refresh_token"`
	TokenExpiresAt time.Time  `db:"token_expires_at"`
	CalendarID     string     `db:"calendar_id"`
	SyncEnabled    bool       `db:"sync_enabled"`
	LastSyncedAt   *time.Time `db:"last_synced_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

// EventMapping correlates one reservation with one provider-side event.
// At most one mapping exists per (reservation, provider); the external
// event id is immutable once assigned.
type EventMapping struct {
	ReservationID   uuid.UUID `db:"reservation_id"`
	Provider        Provider  `db:"provider"`
	ExternalEventID string    `db:"external_event_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// WebhookSubscription is one time-limited push-notification registration.
type WebhookSubscription struct {
	ID             uuid.UUID `db:"id"`
	IntegrationID  uuid.UUID `db:"integration_id"`
	Provider       Provider  `db:"provider"`
	SubscriptionID string    `db:"subscription_id"` // provider-assigned
	ResourceID     string    `db:"resource_id"`     // provider-opaque handle, needed by Google's stop call
	ResourceURI    string    `db:"resource_uri"`
	CallbackURL    string    `db:"callback_url"`
	ChannelToken   string    `db:"channel_token"`
	ExpiresAt      time.Time `db:"expires_at"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
}

// Channel is a reminder delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// ReminderStatus transitions are monotonic: pending is the only
// non-terminal state.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// ReminderRecord is one scheduled notification for one reservation,
// channel and lead-time offset.
type ReminderRecord struct {
	ID            uuid.UUID      `db:"id"`
	ReservationID uuid.UUID      `db:"reservation_id"`
	UserID        string         `db:"user_id"`
	Channel       Channel        `db:"channel"`
	OffsetMinutes int            `db:"offset_minutes"`
	FireAt        time.Time      `db:"fire_at"`
	Status        ReminderStatus `db:"status"`
	ErrorDetail   string         `db:"error_detail"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// ReminderSettings is a user's reminder preference set: which channels
// and which lead-time offsets to schedule.
type ReminderSettings struct {
	Channels       []Channel
	OffsetsMinutes []int
}

// DefaultReminderSettings is the policy applied when a user has not
// configured preferences: primary contact channel, 24h and 1h before.
func DefaultReminderSettings() *ReminderSettings {
	return &ReminderSettings{
		Channels:       []Channel{ChannelEmail},
		OffsetsMinutes: []int{1440, 60},
	}
}

// SyncDirection distinguishes outbound provider calls from inbound
// webhook-driven processing in the audit log.
type SyncDirection string

const (
	DirectionOutbound SyncDirection = "outbound"
	DirectionInbound  SyncDirection = "inbound"
)

// SyncLogEntry is one append-only audit record of a sync attempt. Entries
// are never updated; they back observability, not state.
type SyncLogEntry struct {
	ID            int64         `db:"id"`
	ReservationID *uuid.UUID    `db:"reservation_id"`
	Provider      string        `db:"provider"`
	Operation     string        `db:"operation"`
	Direction     SyncDirection `db:"direction"`
	Status        string        `db:"status"`
	ErrorDetail   string        `db:"error_detail"`
	Timestamp     time.Time     `db:"ts"`
}

// CalendarInfo is one entry of a provider's calendar list.
type CalendarInfo struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary"`
	TimeZone string `json:"timeZone,omitempty"`
}

// TokenPair is the result of a refresh-token exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not rotate it
	ExpiresAt    time.Time
}

// WatchResult is the provider's answer to a push-subscription request.
type WatchResult struct {
	SubscriptionID string
	ResourceID     string
	ExpiresAt      time.Time
}

// InboundEvent is the normalized shape of a provider push notification.
type InboundEvent struct {
	Provider       Provider
	SubscriptionID string
	ResourceURI    string
	ChangeType     string // created|updated|deleted
	EventTime      time.Time
	ChannelToken   string
	Data           map[string]any
}
