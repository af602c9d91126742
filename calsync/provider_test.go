// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeProvider counts calls and lets tests script op/refresh outcomes.
type fakeProvider struct {
	refreshCalls int
	refreshErr   error
	refreshTok   *TokenPair
}

func (f *fakeProvider) Name() Provider { return ProviderGoogle }
func (f *fakeProvider) CreateEvent(context.Context, *Integration, *ReservationSnapshot) (string, error) {
	return "", nil
}
func (f *fakeProvider) UpdateEvent(context.Context, *Integration, string, *ReservationSnapshot) error {
	return nil
}
func (f *fakeProvider) DeleteEvent(context.Context, *Integration, string) error { return nil }
func (f *fakeProvider) ListCalendars(context.Context, *Integration) ([]CalendarInfo, error) {
	return nil, nil
}
func (f *fakeProvider) RefreshToken(context.Context, *Integration) (*TokenPair, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshTok, nil
}
func (f *fakeProvider) Watch(context.Context, *Integration, string, string, string, time.Duration) (*WatchResult, error) {
	return nil, nil
}
func (f *fakeProvider) StopWatch(context.Context, *Integration, *WebhookSubscription) error {
	return nil
}
func (f *fakeProvider) ReservationMetaFromEvent(map[string]any) (uuid.UUID, bool) {
	return uuid.Nil, false
}

func TestAuthRetry_SuccessFirstTry(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	err := authRetry(context.Background(), &Integration{}, p, nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 0, p.refreshCalls)
}

func TestAuthRetry_RefreshesOnceThenRetries(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	p := &fakeProvider{refreshTok: &TokenPair{AccessToken: "new-at", RefreshToken: "new-rt", ExpiresAt: exp}}
	integ := &Integration{AccessToken: "old-at", RefreshToken: "old-rt"}

	var saved *TokenPair
	calls := 0
	err := authRetry(context.Background(), integ, p,
		func(_ context.Context, tok *TokenPair) error { saved = tok; return nil },
		func() error {
			calls++
			if calls == 1 {
				return providerErr(ProviderGoogle, KindAuth, 401, "expired")
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, p.refreshCalls)
	require.NotNil(t, saved)

	require.Equal(t, "new-at", integ.AccessToken)
	require.Equal(t, "new-rt", integ.RefreshToken)
	require.Equal(t, exp, integ.TokenExpiresAt)
}

func TestAuthRetry_SecondAuthFailurePropagates(t *testing.T) {
	p := &fakeProvider{refreshTok: &TokenPair{AccessToken: "new-at"}}
	calls := 0
	err := authRetry(context.Background(), &Integration{}, p, nil, func() error {
		calls++
		return providerErr(ProviderGoogle, KindAuth, 401, "still expired")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, p.refreshCalls)
	require.True(t, isAuthError(err))
}

func TestAuthRetry_NonAuthErrorSkipsRefresh(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	err := authRetry(context.Background(), &Integration{}, p, nil, func() error {
		calls++
		return providerErr(ProviderGoogle, KindRateLimit, 429, "slow down")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 0, p.refreshCalls)
}

func TestAuthRetry_RefreshFailureWrapped(t *testing.T) {
	p := &fakeProvider{refreshErr: errors.New("revoked")}
	err := authRetry(context.Background(), &Integration{}, p, nil, func() error {
		return providerErr(ProviderGoogle, KindAuth, 401, "expired")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "token refresh after auth failure")
	require.Equal(t, 1, p.refreshCalls)
}

func TestKindForStatus(t *testing.T) {
	require.Equal(t, KindAuth, kindForStatus(401))
	require.Equal(t, KindAuth, kindForStatus(403))
	require.Equal(t, KindNotFound, kindForStatus(404))
	require.Equal(t, KindNotFound, kindForStatus(410))
	require.Equal(t, KindRateLimit, kindForStatus(429))
	require.Equal(t, KindTransport, kindForStatus(500))
}
