// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures so the retry and logging
// policies can dispatch without string matching.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"       // 401/invalid_grant, recovered once via token refresh
	KindNotFound  ErrorKind = "not_found"  // treated as success on delete
	KindRateLimit ErrorKind = "rate_limit" // logged, not retried
	KindTimeout   ErrorKind = "timeout"    // logged, not retried
	KindData      ErrorKind = "data"       // missing field/user mapping, operation skipped
	KindTransport ErrorKind = "transport"  // everything else on the wire
)

// ProviderError is a typed provider failure. Adapters return it for
// every non-2xx response so callers can apply the same failure
// taxonomy across providers.
type ProviderError struct {
	Provider   Provider
	Kind       ErrorKind
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Provider, e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Detail)
}

func providerErr(p Provider, kind ErrorKind, status int, detail string) *ProviderError {
	return &ProviderError{Provider: p, Kind: kind, StatusCode: status, Detail: detail}
}

// kindForStatus maps an HTTP status to an error kind. 401 and 403 both
// count as auth failures because Google reports expired tokens with
// either, depending on the endpoint.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404 || status == 410:
		return KindNotFound
	case status == 429:
		return KindRateLimit
	default:
		return KindTransport
	}
}

// isAuthError reports whether err is a provider auth failure eligible
// for the single refresh-and-retry pass.
func isAuthError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindAuth
}

// isNotFound reports whether err means the target object no longer
// exists provider-side.
func isNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindNotFound
}

// errKind extracts the taxonomy kind from any error, classifying
// timeouts from the transport layer along the way.
func errKind(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return KindTimeout
	}
	return KindTransport
}
