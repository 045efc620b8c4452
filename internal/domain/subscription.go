package domain

import "time"

// Retry policies a subscription can opt into.
const (
	RetryPolicyNone        = "none"
	RetryPolicyExponential = "exponential"
)

// Subscription is a subscriber endpoint registered for one organization.
// Rows are managed by subscription CRUD elsewhere in the platform and are
// read-only to the delivery engine.
type Subscription struct {
	ID                 string            `json:"id"`
	OrganizationID     string            `json:"organization_id"`
	URL                string            `json:"url"`
	Secret             string            `json:"secret,omitempty"`
	Events             []string          `json:"events"`
	Active             bool              `json:"active"`
	Headers            map[string]string `json:"headers,omitempty"`
	TimeoutMs          int               `json:"timeout_ms"`
	RetryPolicy        string            `json:"retry_policy"`
	MaxRetries         int               `json:"max_retries"`
	RateLimitPerSecond int               `json:"rate_limit_per_second"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Timeout returns the per-delivery HTTP timeout for this subscription.
func (s Subscription) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
