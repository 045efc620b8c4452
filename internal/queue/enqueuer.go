// Package queue contains the persistence-backed delivery queue: the enqueue
// fan-out path, the periodic drainer, and the Redis-backed coordination
// pieces (drain lock, per-subscription rate limiter).
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/callscope/outbound-delivery/internal/domain"
	"github.com/callscope/outbound-delivery/internal/store"
)

// SubscriptionSource resolves the active subscriptions interested in an event.
type SubscriptionSource interface {
	FindActiveSubscriptions(ctx context.Context, organizationID, eventType string) ([]domain.Subscription, error)
}

// DeliveryInserter persists one pending delivery row, idempotently.
type DeliveryInserter interface {
	InsertDelivery(ctx context.Context, rec store.NewDelivery) (created bool, err error)
}

// Enqueuer fans a domain event out into one delivery row per interested
// subscription. It is fire-and-forget for its caller: every internal error is
// logged and absorbed so the triggering business action is never blocked.
type Enqueuer struct {
	subscriptions SubscriptionSource
	deliveries    DeliveryInserter
	logger        *slog.Logger

	now func() time.Time
}

func NewEnqueuer(subs SubscriptionSource, deliveries DeliveryInserter, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		subscriptions: subs,
		deliveries:    deliveries,
		logger:        logger,
		now:           time.Now,
	}
}

// Enqueue creates one pending delivery per active subscription registered for
// eventType. Returns the number of rows created; zero matching subscriptions
// is a normal no-op. Partial fan-out is a normal operating mode: a failure
// inserting for one subscription is logged and the rest still get their row.
func (e *Enqueuer) Enqueue(ctx context.Context, organizationID, eventType, eventID string, data map[string]any) int {
	subs, err := e.subscriptions.FindActiveSubscriptions(ctx, organizationID, eventType)
	if err != nil {
		e.logger.Error("failed to resolve subscriptions for event",
			"error", err,
			"organization_id", organizationID,
			"event_type", eventType,
			"event_id", eventID,
		)
		return 0
	}
	if len(subs) == 0 {
		e.logger.Info("no matching subscriptions",
			"organization_id", organizationID,
			"event_type", eventType,
			"event_id", eventID,
		)
		return 0
	}

	// One immutable payload snapshot shared by every delivery row.
	payload, err := domain.Payload{
		Event:          eventType,
		EventID:        eventID,
		Timestamp:      e.now().UTC(),
		OrganizationID: organizationID,
		Data:           data,
	}.Marshal()
	if err != nil {
		e.logger.Error("failed to serialize event payload",
			"error", err,
			"event_type", eventType,
			"event_id", eventID,
		)
		return 0
	}

	created := 0
	for _, sub := range subs {
		// +1 for the initial attempt on top of the retry budget.
		ok, err := e.deliveries.InsertDelivery(ctx, store.NewDelivery{
			SubscriptionID: sub.ID,
			EventType:      eventType,
			EventID:        eventID,
			Payload:        payload,
			MaxAttempts:    sub.MaxRetries + 1,
		})
		if err != nil {
			e.logger.Error("failed to enqueue delivery",
				"error", err,
				"subscription_id", sub.ID,
				"event_id", eventID,
			)
			continue
		}
		if !ok {
			// Duplicate enqueue for the same (subscription, event): the
			// existing row already covers it.
			e.logger.Info("duplicate enqueue ignored",
				"subscription_id", sub.ID,
				"event_id", eventID,
			)
			continue
		}
		created++
	}

	e.logger.Info("event fan-out complete",
		"organization_id", organizationID,
		"event_type", eventType,
		"event_id", eventID,
		"subscriptions", len(subs),
		"deliveries_created", created,
	)
	return created
}
