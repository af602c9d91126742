// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Channel tokens are minted at subscription registration, handed to the
// provider, and echoed back on every push notification (Google's channel
// token, Graph's clientState). Validating them at the inbound boundary
// is the anti-spoofing check in front of any processing.

type channelTokenClaims struct {
	ChannelID string `json:"cid"`
	jwt.RegisteredClaims
}

func (e *Engine) mintChannelToken(integrationID uuid.UUID, channelID string, lifetime time.Duration) (string, error) {
	if e.config.WebhookTokenSecret == "" {
		return "", fmt.Errorf("webhook token secret is not configured")
	}
	now := time.Now()
	claims := &channelTokenClaims{
		ChannelID: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   integrationID.String(),
			Issuer:    "go-calsync",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			// Twice the subscription lifetime so renewal races never leave
			// a live subscription holding an expired token.
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(e.config.WebhookTokenSecret))
}

// validateChannelToken checks the signature and that the token was
// minted for the given integration.
func (e *Engine) validateChannelToken(tokenString string, integrationID uuid.UUID) error {
	token, err := jwt.ParseWithClaims(tokenString, &channelTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(e.config.WebhookTokenSecret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid channel token: %w", err)
	}
	claims, ok := token.Claims.(*channelTokenClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid channel token")
	}
	if claims.Subject != integrationID.String() {
		return fmt.Errorf("channel token bound to a different integration")
	}
	return nil
}
