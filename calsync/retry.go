// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// isRetryablePGTxError reports whether a transaction failed on transient
// lock or serialization contention, the kind a second attempt resolves.
func isRetryablePGTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available (incl. lock_timeout)
		return true
	default:
		return false
	}
}

// withPGTxRetry runs op and, when it fails with a retryable transaction
// error, runs reset and retries op once after a short pause. One retry
// is enough for the engine's sweeps: SKIP LOCKED partitions contended
// rows between concurrent runs.
func withPGTxRetry(ctx context.Context, reset func(), op func() error) error {
	err := op()
	if err == nil || !isRetryablePGTxError(err) {
		return err
	}
	if reset != nil {
		reset()
	}
	if serr := sleepWithContext(ctx, 100*time.Millisecond); serr != nil {
		return serr
	}
	return op()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
