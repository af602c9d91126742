// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package calsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Webhook subscription lifecycle:
// none -> registered -> (renewed)* -> expired | unregistered.
// Renewal failure marks the subscription inactive instead of retrying
// indefinitely; re-registering from scratch is an operator or
// background-job concern.

// RegisterWebhook registers a push-notification subscription for one
// integration's calendar resource and persists the provider's answer.
func (e *Engine) RegisterWebhook(ctx context.Context, integrationID uuid.UUID) (*WebhookSubscription, error) {
	if err := e.checkClosed(); err != nil {
		return nil, err
	}
	if e.config.WebhookCallbackURL == "" {
		return nil, fmt.Errorf("webhook callback URL is not configured")
	}

	integ, err := e.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, fmt.Errorf("integration %s not found", integrationID)
	}
	provider, ok := e.providerFor(integ.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", integ.Provider)
	}

	channelID := uuid.New().String()
	channelToken, err := e.mintChannelToken(integ.ID, channelID, e.config.WebhookLifetime)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	var result *WatchResult
	err = authRetry(callCtx, integ, provider, func(ctx context.Context, tok *TokenPair) error {
		return e.saveIntegrationToken(ctx, integ, tok)
	}, func() error {
		r, werr := provider.Watch(callCtx, integ, e.config.WebhookCallbackURL, channelID, channelToken, e.config.WebhookLifetime)
		if werr != nil {
			return werr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register webhook with %s: %w", integ.Provider, err)
	}

	sub := &WebhookSubscription{
		ID:             uuid.New(),
		IntegrationID:  integ.ID,
		Provider:       integ.Provider,
		SubscriptionID: result.SubscriptionID,
		ResourceID:     result.ResourceID,
		ResourceURI:    integ.CalendarID,
		CallbackURL:    e.config.WebhookCallbackURL,
		ChannelToken:   channelToken,
		ExpiresAt:      result.ExpiresAt,
		IsActive:       true,
	}
	if err := e.insertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	e.logger.Info("Registered webhook subscription",
		"provider", integ.Provider, "subscription", result.SubscriptionID, "expires_at", result.ExpiresAt)
	return sub, nil
}

// RenewWebhook re-registers a subscription with the same resource and
// callback before it expires. On failure the subscription is marked
// inactive and the error returned; there is no retry loop here.
func (e *Engine) RenewWebhook(ctx context.Context, webhookID uuid.UUID) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	sub, err := e.getSubscription(ctx, webhookID)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("webhook subscription %s not found", webhookID)
	}
	integ, err := e.GetIntegration(ctx, sub.IntegrationID)
	if err != nil {
		return err
	}
	if integ == nil || !integ.SyncEnabled {
		if merr := e.markSubscriptionInactive(ctx, sub.ID); merr != nil {
			e.logger.Warn("Failed to deactivate orphan subscription", "error", merr, "webhook", sub.ID)
		}
		return fmt.Errorf("integration for subscription %s is gone or disabled", webhookID)
	}
	provider, ok := e.providerFor(sub.Provider)
	if !ok {
		return fmt.Errorf("no adapter registered for provider %q", sub.Provider)
	}

	channelID := uuid.New().String()
	channelToken, err := e.mintChannelToken(integ.ID, channelID, e.config.WebhookLifetime)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	var result *WatchResult
	err = authRetry(callCtx, integ, provider, func(ctx context.Context, tok *TokenPair) error {
		return e.saveIntegrationToken(ctx, integ, tok)
	}, func() error {
		r, werr := provider.Watch(callCtx, integ, sub.CallbackURL, channelID, channelToken, e.config.WebhookLifetime)
		if werr != nil {
			return werr
		}
		result = r
		return nil
	})
	if err != nil {
		if merr := e.markSubscriptionInactive(ctx, sub.ID); merr != nil {
			e.logger.Warn("Failed to deactivate subscription after renewal failure", "error", merr, "webhook", sub.ID)
		}
		e.logger.Error("Webhook renewal failed, subscription deactivated",
			"provider", sub.Provider, "webhook", sub.ID, "error", err)
		return fmt.Errorf("renew webhook with %s: %w", sub.Provider, err)
	}

	// Old provider-side registration is superseded; stop it best-effort.
	if serr := provider.StopWatch(callCtx, integ, sub); serr != nil {
		e.logger.Warn("Failed to stop superseded channel", "error", serr, "webhook", sub.ID)
	}

	if err := e.updateSubscriptionRegistration(ctx, sub.ID, result, channelToken); err != nil {
		return err
	}
	e.logger.Debug("Renewed webhook subscription", "webhook", sub.ID, "expires_at", result.ExpiresAt)
	return nil
}

// UnregisterWebhook cancels the provider-side subscription best-effort
// (failures are logged, not raised) and unconditionally removes the
// local record.
func (e *Engine) UnregisterWebhook(ctx context.Context, webhookID uuid.UUID) error {
	if err := e.checkClosed(); err != nil {
		return err
	}
	sub, err := e.getSubscription(ctx, webhookID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	integ, err := e.GetIntegration(ctx, sub.IntegrationID)
	if err == nil && integ != nil {
		if provider, ok := e.providerFor(sub.Provider); ok {
			callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
			if serr := provider.StopWatch(callCtx, integ, sub); serr != nil {
				e.logger.Warn("Provider-side unsubscribe failed",
					"provider", sub.Provider, "webhook", sub.ID, "error", serr)
			}
			cancel()
		}
	}

	return e.deleteSubscription(ctx, sub.ID)
}

// CleanupExpiredWebhooks unregisters every subscription whose expiration
// has passed and returns the count for observability.
func (e *Engine) CleanupExpiredWebhooks(ctx context.Context, now time.Time) (int, error) {
	if err := e.checkClosed(); err != nil {
		return 0, err
	}
	expired, err := e.listExpiredSubscriptions(ctx, now)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sub := range expired {
		if err := e.UnregisterWebhook(ctx, sub.ID); err != nil {
			e.logger.Error("Failed to clean up expired subscription", "webhook", sub.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		e.logger.Info("Cleaned up expired webhook subscriptions", "count", removed)
	}
	return removed, nil
}

// RenewExpiringWebhooks renews active subscriptions whose expiry falls
// within the horizon. Failed renewals are already deactivated by
// RenewWebhook; the sweep only counts them.
func (e *Engine) RenewExpiringWebhooks(ctx context.Context, horizon time.Duration) (renewed, failed int, err error) {
	if cerr := e.checkClosed(); cerr != nil {
		return 0, 0, cerr
	}
	subs, err := e.listRenewableSubscriptions(ctx, time.Now().Add(horizon))
	if err != nil {
		return 0, 0, err
	}
	for _, sub := range subs {
		if rerr := e.RenewWebhook(ctx, sub.ID); rerr != nil {
			failed++
			continue
		}
		renewed++
	}
	return renewed, failed, nil
}

// InboundOutcome reports the fate of one inbound notification.
type InboundOutcome struct {
	Status        OutcomeStatus
	ReservationID *uuid.UUID
	Detail        string
}

// ProcessInboundEvent validates and routes one provider push
// notification. Unknown or inactive subscriptions and bad channel
// tokens are discarded, not processed; this is the idempotency and
// anti-spoofing boundary. Events without the embedded reservation
// metadata are not ours and are ignored.
func (e *Engine) ProcessInboundEvent(ctx context.Context, evt *InboundEvent) *InboundOutcome {
	if err := e.checkClosed(); err != nil {
		return &InboundOutcome{Status: OutcomeError, Detail: err.Error()}
	}

	sub, err := e.getSubscriptionByProviderID(ctx, evt.Provider, evt.SubscriptionID)
	if err != nil {
		e.logger.Error("Inbound event lookup failed", "error", err, "subscription", evt.SubscriptionID)
		return &InboundOutcome{Status: OutcomeError, Detail: err.Error()}
	}
	if sub == nil || !sub.IsActive {
		e.logger.Debug("Discarding inbound event for unknown or inactive subscription",
			"provider", evt.Provider, "subscription", evt.SubscriptionID)
		return &InboundOutcome{Status: OutcomeSkipped, Detail: "unknown or inactive subscription"}
	}
	if err := e.validateChannelToken(evt.ChannelToken, sub.IntegrationID); err != nil {
		e.logger.Warn("Discarding inbound event with bad channel token",
			"provider", evt.Provider, "subscription", evt.SubscriptionID, "error", err)
		return &InboundOutcome{Status: OutcomeSkipped, Detail: "channel token validation failed"}
	}

	switch evt.ChangeType {
	case "created", "updated", "deleted":
	default:
		return &InboundOutcome{Status: OutcomeSkipped, Detail: "unhandled change type " + evt.ChangeType}
	}

	provider, ok := e.providerFor(evt.Provider)
	if !ok {
		return &InboundOutcome{Status: OutcomeSkipped, Detail: "no adapter registered"}
	}
	reservationID, ok := provider.ReservationMetaFromEvent(evt.Data)
	if !ok {
		// Not an event this engine exported; foreign calendar traffic.
		return &InboundOutcome{Status: OutcomeSkipped, Detail: "no reservation metadata"}
	}

	status := "ok"
	detail := ""
	if e.config.Inbound != nil {
		if herr := e.config.Inbound.OnExternalEvent(ctx, evt.Provider, reservationID, evt.ChangeType); herr != nil {
			status = "error"
			detail = herr.Error()
			e.logger.Error("Inbound handler failed",
				"provider", evt.Provider, "reservation", reservationID, "error", herr)
		}
	}
	e.appendSyncLog(ctx, &reservationID, string(evt.Provider), "webhook:"+evt.ChangeType, DirectionInbound, status, detail)

	out := &InboundOutcome{ReservationID: &reservationID, Detail: detail}
	if status == "ok" {
		out.Status = OutcomeOK
	} else {
		out.Status = OutcomeError
	}
	return out
}
