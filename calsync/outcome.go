// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"github.com/google/uuid"
)

// OutcomeStatus is the terminal status of one fan-out branch.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeError   OutcomeStatus = "error"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// ProviderOutcome is the result of one provider branch of a change
// fan-out. Failures are carried as data, never raised past the
// orchestrator boundary.
type ProviderOutcome struct {
	Provider        Provider
	Operation       string
	Status          OutcomeStatus
	ExternalEventID string
	ErrKind         ErrorKind
	Detail          string
}

// ReminderOutcome summarizes the reminder recomputation of one change.
type ReminderOutcome struct {
	Status      OutcomeStatus
	Created     int
	Rescheduled int
	Cancelled   int
	Detail      string
}

// ChangeOutcome is what OnReservationChange reports back instead of an
// error: one entry per provider plus the reminder result. Callers that
// only care about the booking path can discard it; tests and audit
// surfaces assert on it.
type ChangeOutcome struct {
	ReservationID uuid.UUID
	Change        ChangeType
	Providers     []ProviderOutcome
	Reminders     ReminderOutcome
}

// Failed reports whether any branch of the fan-out ended in error.
func (o *ChangeOutcome) Failed() bool {
	for _, p := range o.Providers {
		if p.Status == OutcomeError {
			return true
		}
	}
	return o.Reminders.Status == OutcomeError
}

// ProviderFor returns the branch outcome for one provider, if present.
func (o *ChangeOutcome) ProviderFor(p Provider) (ProviderOutcome, bool) {
	for _, po := range o.Providers {
		if po.Provider == p {
			return po, true
		}
	}
	return ProviderOutcome{}, false
}

func outcomeOK(p Provider, op, externalID string) ProviderOutcome {
	return ProviderOutcome{Provider: p, Operation: op, Status: OutcomeOK, ExternalEventID: externalID}
}

func outcomeErr(p Provider, op string, err error) ProviderOutcome {
	return ProviderOutcome{Provider: p, Operation: op, Status: OutcomeError, ErrKind: errKind(err), Detail: err.Error()}
}

func outcomeSkipped(p Provider, op, detail string) ProviderOutcome {
	return ProviderOutcome{Provider: p, Operation: op, Status: OutcomeSkipped, Detail: detail}
}
