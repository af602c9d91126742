// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"time"
)

// Operation labels for engine-level sweeps. Provider fan-out timings use
// the per-outcome operation name instead.
const (
	MetricsOpReminderDispatch = "reminder_dispatch"
	MetricsOpBulkSync         = "bulk_sync"
	MetricsOpOrphanCleanup    = "orphan_cleanup"
)

// SyncTiming is one observed engine operation.
type SyncTiming struct {
	Provider  string // empty for provider-agnostic operations
	Operation string
	Duration  time.Duration
	Error     bool
}

// SyncMetricsRecorder receives operation timings. Implementations
// typically feed a metrics backend; the engine itself stays vendor
// neutral.
type SyncMetricsRecorder interface {
	ObserveSync(ctx context.Context, timing SyncTiming)
}

// SyncMetricsRecorderFunc adapts a function to SyncMetricsRecorder.
type SyncMetricsRecorderFunc func(ctx context.Context, timing SyncTiming)

func (f SyncMetricsRecorderFunc) ObserveSync(ctx context.Context, timing SyncTiming) {
	f(ctx, timing)
}

func (e *Engine) observeSync(ctx context.Context, provider, operation string, d time.Duration, hadError bool) {
	if e == nil || e.config == nil {
		return
	}
	timing := SyncTiming{Provider: provider, Operation: operation, Duration: d, Error: hadError}
	if e.config.Metrics != nil {
		e.config.Metrics.ObserveSync(ctx, timing)
	}
	if e.config.LogTimings && e.logger != nil {
		e.logger.Debug("Sync timing",
			"provider", timing.Provider,
			"operation", timing.Operation,
			"duration", timing.Duration,
			"error", timing.Error,
		)
	}
}
