package domain

import (
	"encoding/json"
	"time"
)

// Delivery status machine: pending → processing → (delivered | retrying | failed),
// with retrying → processing on the next attempt.
const (
	DeliveryPending    = "pending"
	DeliveryProcessing = "processing"
	DeliveryDelivered  = "delivered"
	DeliveryRetrying   = "retrying"
	DeliveryFailed     = "failed"
)

// Delivery is one attempt-tracked unit of work: "this event must reach this
// subscriber". Rows are never deleted — terminal rows are the audit trail.
type Delivery struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	EventID        string          `json:"event_id"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	ResponseTimeMs *int            `json:"response_time_ms,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}
