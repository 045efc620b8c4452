// Package breaker protects outbound vendor calls (telephony, transcription,
// speech synthesis) from cascading failures: once a vendor degrades past the
// configured error rate the breaker fails fast, then periodically lets a
// trial call through to probe recovery.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Config holds per-vendor breaker settings.
type Config struct {
	Vendor                   string
	Timeout                  time.Duration
	ErrorThresholdPercentage float64
	ResetTimeout             time.Duration
	VolumeThreshold          int
}

// Defaults applied by the registry for any unset field.
const (
	DefaultTimeout                  = 10 * time.Second
	DefaultErrorThresholdPercentage = 50
	DefaultResetTimeout             = 30 * time.Second
	DefaultVolumeThreshold          = 10
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = DefaultVolumeThreshold
	}
	return c
}

// Metrics is the counter set owned exclusively by one breaker. Counters reset
// to zero whenever the breaker closes; nothing is persisted across restarts.
type Metrics struct {
	State               string    `json:"state"`
	SuccessCount        int       `json:"success_count"`
	FailureCount        int       `json:"failure_count"`
	TotalCount          int       `json:"total_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitzero"`
	LastSuccessTime     time.Time `json:"last_success_time,omitzero"`
	StateChangedAt      time.Time `json:"state_changed_at"`
}

// ErrorRate returns the observed failure percentage since the last reset.
func (m Metrics) ErrorRate() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(m.TotalCount) * 100
}

// CircuitBreaker is a per-vendor failure-state machine. Safe for concurrent
// use; callers only invoke Execute and read snapshots, never the metrics
// directly.
type CircuitBreaker struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	metrics Metrics

	now func() time.Time
}

// New creates a closed breaker for one vendor. Unset config fields take the
// package defaults.
func New(cfg Config, logger *slog.Logger) *CircuitBreaker {
	cfg = cfg.withDefaults()
	cb := &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	cb.metrics = Metrics{State: StateClosed, StateChangedAt: cb.now()}
	return cb
}

// Vendor returns the vendor name this breaker protects.
func (cb *CircuitBreaker) Vendor() string { return cb.cfg.Vendor }

// Execute runs op unless the circuit is open, racing it against the
// configured timeout. Failures (including timeouts) feed the state machine
// and the original error is returned verbatim so callers see the vendor's
// own details. The breaker never retries; that is the caller's decision.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, cb.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(opCtx) }()

	var err error
	select {
	case err = <-done:
	case <-opCtx.Done():
		err = timeoutError(cb.cfg.Vendor, cb.cfg.Timeout)
	}

	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// Call runs an operation that returns a value through the breaker. It exists
// as a package function because methods cannot be generic.
func Call[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// Snapshot returns a copy of the current metrics, applying the open→half-open
// transition first so observers never see a stale open state.
func (cb *CircuitBreaker) Snapshot() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	return cb.metrics
}

// allow decides attempt-or-fail-fast. The open→half-open transition happens
// here as an explicit elapsed-time check rather than a background timer, so
// the first call after the reset window acts as the trial.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked()

	if cb.metrics.State == StateOpen {
		resetIn := cb.cfg.ResetTimeout - cb.now().Sub(cb.metrics.StateChangedAt)
		return newOpenError(cb.cfg.Vendor, resetIn)
	}
	return nil
}

func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.metrics.State != StateOpen {
		return
	}
	if cb.now().Sub(cb.metrics.StateChangedAt) >= cb.cfg.ResetTimeout {
		cb.transitionLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.metrics.SuccessCount++
	cb.metrics.TotalCount++
	cb.metrics.ConsecutiveFailures = 0
	cb.metrics.LastSuccessTime = cb.now()

	// A successful trial closes the circuit and wipes the window.
	if cb.metrics.State == StateHalfOpen {
		cb.transitionLocked(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.metrics.FailureCount++
	cb.metrics.TotalCount++
	cb.metrics.ConsecutiveFailures++
	cb.metrics.LastFailureTime = cb.now()

	switch cb.metrics.State {
	case StateHalfOpen:
		// Trial failed, back to open and the reset timer restarts.
		cb.transitionLocked(StateOpen)
	case StateClosed:
		if cb.metrics.TotalCount >= cb.cfg.VolumeThreshold &&
			cb.metrics.ErrorRate() >= cb.cfg.ErrorThresholdPercentage {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(state string) {
	from := cb.metrics.State
	cb.metrics.State = state
	cb.metrics.StateChangedAt = cb.now()

	if state == StateClosed {
		snapshot := cb.metrics
		cb.metrics = Metrics{State: StateClosed, StateChangedAt: snapshot.StateChangedAt}
		cb.metrics.LastSuccessTime = snapshot.LastSuccessTime
		cb.metrics.LastFailureTime = snapshot.LastFailureTime
	}

	if cb.logger == nil {
		return
	}
	switch state {
	case StateOpen:
		cb.logger.Error("circuit breaker opened",
			"vendor", cb.cfg.Vendor,
			"from", from,
			"error_rate", cb.metrics.ErrorRate(),
			"consecutive_failures", cb.metrics.ConsecutiveFailures,
		)
	case StateHalfOpen:
		cb.logger.Info("circuit breaker half-open, allowing trial call",
			"vendor", cb.cfg.Vendor,
		)
	case StateClosed:
		cb.logger.Info("circuit breaker closed (recovered)",
			"vendor", cb.cfg.Vendor,
			"from", from,
		)
	}
}
