package breaker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout marks an operation that ran past the breaker's per-call timeout.
// The timeout counts as a failure for state-machine purposes even if the
// underlying call eventually resolves.
var ErrTimeout = errors.New("vendor call timed out")

// OpenError is returned when the breaker rejects a call without attempting
// it. It is always retriable from the caller's perspective.
type OpenError struct {
	Vendor         string
	ResetInSeconds int
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, next attempt allowed in %ds", e.Code(), e.ResetInSeconds)
}

// Code returns the structured error code, e.g. "TWILIO_CIRCUIT_OPEN".
func (e *OpenError) Code() string {
	return strings.ToUpper(e.Vendor) + "_CIRCUIT_OPEN"
}

// Retriable is true for every open-circuit rejection: the vendor may recover.
func (e *OpenError) Retriable() bool { return true }

// IsOpen reports whether err is an open-circuit rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

func newOpenError(vendor string, resetIn time.Duration) *OpenError {
	secs := int(resetIn.Round(time.Second).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &OpenError{Vendor: vendor, ResetInSeconds: secs}
}

// timeoutError wraps ErrTimeout with the vendor and configured limit.
func timeoutError(vendor string, limit time.Duration) error {
	return fmt.Errorf("%w: %s did not respond within %s", ErrTimeout, vendor, limit)
}
