// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func tokenTestEngine(secret string) *Engine {
	return &Engine{config: &EngineConfig{WebhookTokenSecret: secret}}
}

func TestChannelToken_MintAndValidate(t *testing.T) {
	e := tokenTestEngine("test-secret")
	integrationID := uuid.New()

	tok, err := e.mintChannelToken(integrationID, "chan-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	require.NoError(t, e.validateChannelToken(tok, integrationID))
}

func TestChannelToken_RejectsWrongIntegration(t *testing.T) {
	e := tokenTestEngine("test-secret")

	tok, err := e.mintChannelToken(uuid.New(), "chan-1", time.Hour)
	require.NoError(t, err)

	err = e.validateChannelToken(tok, uuid.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "different integration")
}

func TestChannelToken_RejectsWrongSecret(t *testing.T) {
	minter := tokenTestEngine("secret-a")
	verifier := tokenTestEngine("secret-b")
	integrationID := uuid.New()

	tok, err := minter.mintChannelToken(integrationID, "chan-1", time.Hour)
	require.NoError(t, err)

	require.Error(t, verifier.validateChannelToken(tok, integrationID))
}

func TestChannelToken_RejectsGarbage(t *testing.T) {
	e := tokenTestEngine("test-secret")
	require.Error(t, e.validateChannelToken("not-a-jwt", uuid.New()))
}

func TestChannelToken_RequiresSecret(t *testing.T) {
	e := tokenTestEngine("")
	_, err := e.mintChannelToken(uuid.New(), "chan-1", time.Hour)
	require.Error(t, err)
}
