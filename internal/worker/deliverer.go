// Package worker executes individual webhook delivery attempts: claim the
// row, sign the payload, POST it, interpret the outcome, and transition the
// delivery's state.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/callscope/outbound-delivery/internal/backoff"
	"github.com/callscope/outbound-delivery/internal/domain"
	"github.com/callscope/outbound-delivery/internal/signature"
	"github.com/callscope/outbound-delivery/internal/store"
)

// maxResponseBodyBytes bounds how much of a subscriber's response is kept on
// the delivery row.
const maxResponseBodyBytes = 1000

// Outcome summarizes what one Deliver call did with the delivery row.
type Outcome int

const (
	// OutcomeSkipped means no attempt was consumed: the row was already
	// claimed elsewhere, missing, or deferred by the rate limiter.
	OutcomeSkipped Outcome = iota
	OutcomeDelivered
	OutcomeRetrying
	OutcomeFailed
)

// DeliveryStore is the slice of the persistence layer the worker drives.
type DeliveryStore interface {
	ClaimForProcessing(ctx context.Context, id string) (*store.ClaimedDelivery, error)
	ReleaseClaim(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string, outcome store.AttemptOutcome) error
	MarkRetrying(ctx context.Context, id string, outcome store.AttemptOutcome, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, outcome store.AttemptOutcome) error
}

// RateLimiter defers deliveries that would exceed a subscription's rate.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limitPerSecond int) bool
}

// Deliverer performs signed HTTP delivery attempts and owns the resulting
// state transitions.
type Deliverer struct {
	httpClient *http.Client
	store      DeliveryStore
	codec      *signature.Codec
	backoff    *backoff.Calculator
	limiter    RateLimiter
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer. limiter may be nil to disable
// per-subscription rate limiting. The http.Client carries no global timeout;
// each attempt is bounded by the subscription's own timeout via context.
func NewDeliverer(deliveryStore DeliveryStore, limiter RateLimiter, bc *backoff.Calculator, logger *slog.Logger) *Deliverer {
	if bc == nil {
		bc = backoff.New(0, 0)
	}
	return &Deliverer{
		httpClient: &http.Client{},
		store:      deliveryStore,
		codec:      signature.New(),
		backoff:    bc,
		limiter:    limiter,
		logger:     logger,
	}
}

// Deliver executes one attempt for the given delivery id. Every path out of
// this function leaves the row in a definite state: delivered, retrying with
// a schedule, failed, or released back to pending — never stuck in processing.
func (d *Deliverer) Deliver(ctx context.Context, deliveryID string) Outcome {
	claimed, err := d.store.ClaimForProcessing(ctx, deliveryID)
	if err != nil {
		d.logger.Error("failed to claim delivery", "error", err, "delivery_id", deliveryID)
		return OutcomeSkipped
	}
	if claimed == nil {
		// Another drain cycle got here first, or the row is already terminal.
		return OutcomeSkipped
	}

	if d.limiter != nil && claimed.RateLimitPerSecond > 0 {
		if !d.limiter.Allow(ctx, claimed.SubscriptionID, claimed.RateLimitPerSecond) {
			if err := d.store.ReleaseClaim(ctx, claimed.ID); err != nil {
				d.logger.Error("failed to release rate-limited delivery", "error", err, "delivery_id", claimed.ID)
			}
			return OutcomeSkipped
		}
	}

	// Subscription misconfiguration is never retried: the row fails without
	// consuming an attempt, visible to operators through last_error.
	if claimed.URL == "" || claimed.Secret == "" {
		return d.failPermanently(ctx, claimed, store.AttemptOutcome{
			Attempts:  claimed.Attempts,
			LastError: strPtr("subscription is missing url or secret"),
		})
	}

	sig, err := d.codec.Sign(claimed.Payload, claimed.Secret)
	if err != nil {
		return d.failPermanently(ctx, claimed, store.AttemptOutcome{
			Attempts:  claimed.Attempts,
			LastError: strPtr(fmt.Sprintf("signing payload: %v", err)),
		})
	}

	attempts := claimed.Attempts + 1
	start := time.Now()

	resp, err := d.post(ctx, claimed, sig)
	if err != nil {
		// Network failure or timeout: transient, retried within budget.
		return d.handleAttemptFailure(ctx, claimed, store.AttemptOutcome{
			Attempts:       attempts,
			ResponseTimeMs: elapsedMs(start),
			LastError:      strPtr(fmt.Sprintf("request failed: %v", err)),
		}, true)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	outcome := store.AttemptOutcome{
		Attempts:       attempts,
		ResponseStatus: intPtr(resp.StatusCode),
		ResponseBody:   strPtr(string(body)),
		ResponseTimeMs: elapsedMs(start),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := d.store.MarkDelivered(ctx, claimed.ID, outcome); err != nil {
			d.logger.Error("failed to record delivered state", "error", err, "delivery_id", claimed.ID)
		}
		d.logger.Info("delivery successful",
			"delivery_id", claimed.ID,
			"subscription_id", claimed.SubscriptionID,
			"event_id", claimed.EventID,
			"attempt", attempts,
			"status_code", resp.StatusCode,
			"response_time_ms", *outcome.ResponseTimeMs,
		)
		return OutcomeDelivered

	case resp.StatusCode >= 500:
		outcome.LastError = strPtr(fmt.Sprintf("subscriber returned %d", resp.StatusCode))
		return d.handleAttemptFailure(ctx, claimed, outcome, true)

	default:
		// 4xx means the subscriber will reject this payload on any resend.
		outcome.LastError = strPtr(fmt.Sprintf("subscriber rejected with %d", resp.StatusCode))
		return d.handleAttemptFailure(ctx, claimed, outcome, false)
	}
}

func (d *Deliverer) post(ctx context.Context, claimed *store.ClaimedDelivery, sig string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, claimed.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, claimed.URL, bytes.NewReader(claimed.Payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Event", claimed.EventType)
	req.Header.Set("X-Webhook-Delivery-Id", claimed.ID)
	for k, v := range claimed.Headers {
		req.Header.Set(k, v)
	}

	return d.httpClient.Do(req)
}

// handleAttemptFailure decides retrying vs failed. retriable=false is the 4xx
// path: straight to failed regardless of remaining budget.
func (d *Deliverer) handleAttemptFailure(ctx context.Context, claimed *store.ClaimedDelivery, outcome store.AttemptOutcome, retriable bool) Outcome {
	canRetry := retriable &&
		claimed.RetryPolicy != domain.RetryPolicyNone &&
		outcome.Attempts < claimed.MaxAttempts

	if canRetry {
		nextRetryAt := d.backoff.NextRetryAt(claimed.Attempts)
		if err := d.store.MarkRetrying(ctx, claimed.ID, outcome, nextRetryAt); err != nil {
			d.logger.Error("failed to record retrying state", "error", err, "delivery_id", claimed.ID)
		}
		d.logger.Warn("delivery failed, retry scheduled",
			"delivery_id", claimed.ID,
			"subscription_id", claimed.SubscriptionID,
			"event_id", claimed.EventID,
			"attempt", outcome.Attempts,
			"max_attempts", claimed.MaxAttempts,
			"next_retry_at", nextRetryAt,
			"error", derefStr(outcome.LastError),
		)
		return OutcomeRetrying
	}

	if err := d.store.MarkFailed(ctx, claimed.ID, outcome); err != nil {
		d.logger.Error("failed to record failed state", "error", err, "delivery_id", claimed.ID)
	}
	d.logger.Warn("delivery failed permanently",
		"delivery_id", claimed.ID,
		"subscription_id", claimed.SubscriptionID,
		"event_id", claimed.EventID,
		"attempt", outcome.Attempts,
		"max_attempts", claimed.MaxAttempts,
		"error", derefStr(outcome.LastError),
	)
	return OutcomeFailed
}

func (d *Deliverer) failPermanently(ctx context.Context, claimed *store.ClaimedDelivery, outcome store.AttemptOutcome) Outcome {
	if err := d.store.MarkFailed(ctx, claimed.ID, outcome); err != nil {
		d.logger.Error("failed to record failed state", "error", err, "delivery_id", claimed.ID)
	}
	d.logger.Error("delivery not attempted",
		"delivery_id", claimed.ID,
		"subscription_id", claimed.SubscriptionID,
		"error", derefStr(outcome.LastError),
	)
	return OutcomeFailed
}

func elapsedMs(start time.Time) *int {
	ms := int(time.Since(start).Milliseconds())
	return &ms
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
