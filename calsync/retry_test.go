// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryablePGTxError(t *testing.T) {
	require.True(t, isRetryablePGTxError(&pgconn.PgError{Code: "40001"}))
	require.True(t, isRetryablePGTxError(&pgconn.PgError{Code: "40P01"}))
	require.True(t, isRetryablePGTxError(&pgconn.PgError{Code: "55P03"}))
	require.True(t, isRetryablePGTxError(fmt.Errorf("sweep: %w", &pgconn.PgError{Code: "40001"})))

	require.False(t, isRetryablePGTxError(&pgconn.PgError{Code: "23505"}))
	require.False(t, isRetryablePGTxError(errors.New("not a pg error")))
	require.False(t, isRetryablePGTxError(nil))
}

func TestWithPGTxRetry_RetriesOnceOnContention(t *testing.T) {
	calls, resets := 0, 0
	err := withPGTxRetry(context.Background(), func() { resets++ }, func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, resets)
}

func TestWithPGTxRetry_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	want := errors.New("boom")
	err := withPGTxRetry(context.Background(), nil, func() error {
		calls++
		return want
	})
	require.ErrorIs(t, err, want)
	require.Equal(t, 1, calls)
}

func TestWithPGTxRetry_CancelledContextAbortsPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withPGTxRetry(ctx, nil, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
