package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/callscope/outbound-delivery/internal/domain"
	"github.com/jackc/pgx/v5"
)

// NewDelivery holds data for inserting one delivery row at enqueue time.
type NewDelivery struct {
	SubscriptionID string
	EventType      string
	EventID        string
	Payload        json.RawMessage
	MaxAttempts    int
}

// InsertDelivery creates one pending delivery row. The natural key
// (subscription_id, event_id) makes the insert idempotent: enqueuing the same
// event twice reports created=false instead of producing a duplicate row.
func (s *PostgresStore) InsertDelivery(ctx context.Context, rec NewDelivery) (created bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (subscription_id, event_type, event_id, payload, status, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5)
		ON CONFLICT (subscription_id, event_id) DO NOTHING
	`, rec.SubscriptionID, rec.EventType, rec.EventID, rec.Payload, rec.MaxAttempts)
	if err != nil {
		return false, fmt.Errorf("inserting delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SelectDueIDs returns up to batchSize deliveries eligible for an attempt:
// pending rows plus retrying rows whose backoff has elapsed, oldest first.
func (s *PostgresStore) SelectDueIDs(ctx context.Context, batchSize int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM webhook_deliveries
		WHERE status = 'pending'
		   OR (status = 'retrying' AND next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("selecting due deliveries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimedDelivery is a delivery row joined with the subscription fields the
// worker needs for one attempt.
type ClaimedDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	EventID        string
	Payload        json.RawMessage
	Attempts       int
	MaxAttempts    int

	URL                string
	Secret             string
	Headers            map[string]string
	TimeoutMs          int
	RetryPolicy        string
	RateLimitPerSecond int
}

// Timeout returns the HTTP timeout for this attempt.
func (c *ClaimedDelivery) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ClaimForProcessing atomically moves a due delivery into processing and
// returns it joined with its subscription. The conditional UPDATE is the
// claim: a second drain cycle racing for the same row gets nil back and
// skips it.
func (s *PostgresStore) ClaimForProcessing(ctx context.Context, id string) (*ClaimedDelivery, error) {
	var d ClaimedDelivery
	err := s.pool.QueryRow(ctx, `
		UPDATE webhook_deliveries d
		SET status = 'processing'
		FROM webhook_subscriptions s
		WHERE d.id = $1
		  AND d.subscription_id = s.id
		  AND (d.status = 'pending' OR (d.status = 'retrying' AND d.next_retry_at <= NOW()))
		RETURNING d.id, d.subscription_id, d.event_type, d.event_id, d.payload,
		          d.attempts, d.max_attempts,
		          s.url, s.secret, s.headers, s.timeout_ms, s.retry_policy, s.rate_limit_per_second
	`, id).Scan(
		&d.ID, &d.SubscriptionID, &d.EventType, &d.EventID, &d.Payload,
		&d.Attempts, &d.MaxAttempts,
		&d.URL, &d.Secret, &d.Headers, &d.TimeoutMs, &d.RetryPolicy, &d.RateLimitPerSecond,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming delivery: %w", err)
	}
	return &d, nil
}

// ReleaseClaim puts a processing delivery back to pending without consuming
// an attempt, e.g. when the subscriber's rate limit defers it.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status = 'pending'
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return fmt.Errorf("releasing delivery claim: %w", err)
	}
	return nil
}

// AttemptOutcome records everything observed during one delivery attempt.
type AttemptOutcome struct {
	Attempts       int
	ResponseStatus *int
	ResponseBody   *string
	ResponseTimeMs *int
	LastError      *string
}

// MarkDelivered transitions a delivery to its terminal delivered state.
func (s *PostgresStore) MarkDelivered(ctx context.Context, id string, outcome AttemptOutcome) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivered', attempts = $2, response_status = $3,
		    response_body = $4, response_time_ms = $5, last_error = NULL,
		    next_retry_at = NULL, delivered_at = NOW()
		WHERE id = $1
	`, id, outcome.Attempts, outcome.ResponseStatus, outcome.ResponseBody, outcome.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("marking delivery delivered: %w", err)
	}
	return nil
}

// MarkRetrying schedules the next attempt and records this one's outcome.
func (s *PostgresStore) MarkRetrying(ctx context.Context, id string, outcome AttemptOutcome, nextRetryAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'retrying', attempts = $2, response_status = $3,
		    response_body = $4, response_time_ms = $5, last_error = $6,
		    next_retry_at = $7
		WHERE id = $1
	`, id, outcome.Attempts, outcome.ResponseStatus, outcome.ResponseBody,
		outcome.ResponseTimeMs, outcome.LastError, nextRetryAt)
	if err != nil {
		return fmt.Errorf("marking delivery retrying: %w", err)
	}
	return nil
}

// MarkFailed transitions a delivery to its terminal failed state. The row is
// kept forever as the audit trail for external monitoring.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, outcome AttemptOutcome) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', attempts = $2, response_status = $3,
		    response_body = $4, response_time_ms = $5, last_error = $6,
		    next_retry_at = NULL
		WHERE id = $1
	`, id, outcome.Attempts, outcome.ResponseStatus, outcome.ResponseBody,
		outcome.ResponseTimeMs, outcome.LastError)
	if err != nil {
		return fmt.Errorf("marking delivery failed: %w", err)
	}
	return nil
}

// ListDeliveries returns delivery rows with optional filtering.
func (s *PostgresStore) ListDeliveries(ctx context.Context, subscriptionID, eventID, status string, limit int) ([]domain.Delivery, error) {
	query := `SELECT id, subscription_id, event_type, event_id, payload, status, attempts, max_attempts,
	                 response_status, response_body, response_time_ms, last_error, next_retry_at, created_at, delivered_at
	          FROM webhook_deliveries`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if subscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, subscriptionID)
		argIdx++
	}
	if eventID != "" {
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", argIdx))
		args = append(args, eventID)
		argIdx++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.EventType, &d.EventID, &d.Payload,
			&d.Status, &d.Attempts, &d.MaxAttempts, &d.ResponseStatus,
			&d.ResponseBody, &d.ResponseTimeMs, &d.LastError, &d.NextRetryAt,
			&d.CreatedAt, &d.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if deliveries == nil {
		deliveries = []domain.Delivery{}
	}

	return deliveries, nil
}

// GetDelivery returns a single delivery by ID, or nil when absent.
func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	var d domain.Delivery
	err := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, event_type, event_id, payload, status, attempts, max_attempts,
		       response_status, response_body, response_time_ms, last_error, next_retry_at, created_at, delivered_at
		FROM webhook_deliveries WHERE id = $1
	`, id).Scan(
		&d.ID, &d.SubscriptionID, &d.EventType, &d.EventID, &d.Payload,
		&d.Status, &d.Attempts, &d.MaxAttempts, &d.ResponseStatus,
		&d.ResponseBody, &d.ResponseTimeMs, &d.LastError, &d.NextRetryAt,
		&d.CreatedAt, &d.DeliveredAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return &d, nil
}
