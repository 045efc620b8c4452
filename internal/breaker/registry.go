package breaker

import (
	"log/slog"
	"sync"
)

// Registry hands out one breaker per vendor name for the lifetime of the
// process. It owns the name→breaker mapping but never touches breaker
// internals.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// VendorHealth is the observability snapshot for one vendor.
type VendorHealth struct {
	Healthy             bool    `json:"healthy"`
	State               string  `json:"state"`
	ErrorRate           float64 `json:"error_rate"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetBreaker returns the existing breaker for vendor, or constructs one from
// the defaults merged with overrides and stores it. Idempotent per vendor
// name; overrides on a later call for the same vendor are ignored.
func (r *Registry) GetBreaker(vendor string, overrides ...Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[vendor]; ok {
		return cb
	}

	cfg := Config{Vendor: vendor}
	if len(overrides) > 0 {
		cfg = overrides[0]
		cfg.Vendor = vendor
	}

	cb := New(cfg, r.logger)
	r.breakers[vendor] = cb
	return cb
}

// HealthStatuses returns a snapshot of every registered vendor's state.
func (r *Registry) HealthStatuses() map[string]VendorHealth {
	r.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		breakers[name] = cb
	}
	r.mu.Unlock()

	statuses := make(map[string]VendorHealth, len(breakers))
	for name, cb := range breakers {
		m := cb.Snapshot()
		statuses[name] = VendorHealth{
			Healthy:             m.State == StateClosed,
			State:               m.State,
			ErrorRate:           m.ErrorRate(),
			ConsecutiveFailures: m.ConsecutiveFailures,
		}
	}
	return statuses
}
