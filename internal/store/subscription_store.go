package store

import (
	"context"
	"fmt"

	"github.com/callscope/outbound-delivery/internal/domain"
	"github.com/jackc/pgx/v5"
)

// FindActiveSubscriptions returns the active subscriptions of an organization
// that are registered for the given event type. The delivery engine only ever
// reads subscriptions; they are managed elsewhere in the platform.
func (s *PostgresStore) FindActiveSubscriptions(ctx context.Context, organizationID, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, url, secret, events, active, headers,
		       timeout_ms, retry_policy, max_retries, rate_limit_per_second,
		       created_at, updated_at
		FROM webhook_subscriptions
		WHERE organization_id = $1
		  AND active = true
		  AND $2 = ANY(events)
	`, organizationID, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.OrganizationID, &sub.URL, &sub.Secret, &sub.Events,
			&sub.Active, &sub.Headers, &sub.TimeoutMs, &sub.RetryPolicy,
			&sub.MaxRetries, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}

// GetSubscription returns one subscription by id, or nil when absent.
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, url, secret, events, active, headers,
		       timeout_ms, retry_policy, max_retries, rate_limit_per_second,
		       created_at, updated_at
		FROM webhook_subscriptions WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.OrganizationID, &sub.URL, &sub.Secret, &sub.Events,
		&sub.Active, &sub.Headers, &sub.TimeoutMs, &sub.RetryPolicy,
		&sub.MaxRetries, &sub.RateLimitPerSecond, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &sub, nil
}
