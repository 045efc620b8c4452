package store

import (
	"context"
	"fmt"
)

// DeliveryMetrics holds aggregated delivery statistics.
type DeliveryMetrics struct {
	TotalDeliveries     int     `json:"total_deliveries"`
	DeliveredCount      int     `json:"delivered_count"`
	FailedCount         int     `json:"failed_count"`
	RetryingCount       int     `json:"retrying_count"`
	PendingCount        int     `json:"pending_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgResponseMs       float64 `json:"avg_response_ms"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
}

// GetDeliveryMetrics returns aggregated delivery statistics from the database.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'retrying') AS retrying,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM webhook_deliveries
	`).Scan(&m.TotalDeliveries, &m.DeliveredCount, &m.FailedCount,
		&m.RetryingCount, &m.PendingCount, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.DeliveredCount) / float64(m.TotalDeliveries) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhook_subscriptions WHERE active = true
	`).Scan(&m.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}

	return &m, nil
}
