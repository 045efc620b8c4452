package breaker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

var errVendorDown = errors.New("vendor unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// testBreaker returns a breaker with a controllable clock.
func testBreaker(t *testing.T, cfg Config) (*CircuitBreaker, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cb := New(cfg, testLogger())
	cb.now = func() time.Time { return now }
	cb.metrics.StateChangedAt = now
	return cb, &now
}

func succeed(ctx context.Context) error { return nil }
func fail(ctx context.Context) error    { return errVendorDown }

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "twilio"})

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Error("operation should run when circuit is closed")
	}

	m := cb.Snapshot()
	if m.State != StateClosed || m.SuccessCount != 1 || m.TotalCount != 1 {
		t.Errorf("metrics = %+v, want closed with 1 success / 1 total", m)
	}
}

func TestExecute_ResurfacesOriginalError(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "twilio"})

	err := cb.Execute(context.Background(), fail)
	if !errors.Is(err, errVendorDown) {
		t.Errorf("expected original vendor error, got %v", err)
	}
}

func TestExecute_CountersStayConsistent(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "twilio", VolumeThreshold: 100})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		cb.Execute(ctx, succeed)
	}
	for i := 0; i < 3; i++ {
		cb.Execute(ctx, fail)
	}

	m := cb.Snapshot()
	if m.TotalCount != m.SuccessCount+m.FailureCount {
		t.Errorf("invariant broken: total=%d success=%d failure=%d", m.TotalCount, m.SuccessCount, m.FailureCount)
	}
	if m.TotalCount != 10 || m.FailureCount != 3 {
		t.Errorf("metrics = %+v, want 10 total / 3 failures", m)
	}
	if m.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", m.ConsecutiveFailures)
	}
}

func TestExecute_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "twilio", VolumeThreshold: 100})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, succeed)

	if m := cb.Snapshot(); m.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after a success", m.ConsecutiveFailures)
	}
}

func TestExecute_OpensAtThreshold(t *testing.T) {
	cb, _ := testBreaker(t, Config{
		Vendor:                   "deepgram",
		VolumeThreshold:          10,
		ErrorThresholdPercentage: 50,
	})
	ctx := context.Background()

	// 5 successes + 5 failures = 50% error rate at the volume threshold.
	for i := 0; i < 5; i++ {
		cb.Execute(ctx, succeed)
	}
	for i := 0; i < 5; i++ {
		cb.Execute(ctx, fail)
	}

	if m := cb.Snapshot(); m.State != StateOpen {
		t.Fatalf("state = %s, want open after 50%% failures over 10 calls", m.State)
	}

	// Next call fails fast without invoking the operation.
	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("operation must not run while circuit is open")
	}

	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OpenError, got %v", err)
	}
	if oe.Code() != "DEEPGRAM_CIRCUIT_OPEN" {
		t.Errorf("Code() = %q, want DEEPGRAM_CIRCUIT_OPEN", oe.Code())
	}
	if !oe.Retriable() {
		t.Error("open-circuit rejection must be retriable")
	}
	if oe.ResetInSeconds <= 0 || oe.ResetInSeconds > 30 {
		t.Errorf("ResetInSeconds = %d, want within (0, 30]", oe.ResetInSeconds)
	}
}

func TestExecute_StaysClosedBelowVolumeThreshold(t *testing.T) {
	cb, _ := testBreaker(t, Config{
		Vendor:                   "deepgram",
		VolumeThreshold:          10,
		ErrorThresholdPercentage: 50,
	})
	ctx := context.Background()

	// 9 straight failures: 100% error rate but below the minimum volume.
	for i := 0; i < 9; i++ {
		cb.Execute(ctx, fail)
	}

	if m := cb.Snapshot(); m.State != StateClosed {
		t.Errorf("state = %s, want closed below volume threshold", m.State)
	}
}

func openBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		cb.Execute(ctx, fail)
	}
	if m := cb.Snapshot(); m.State != StateOpen {
		t.Fatalf("setup: state = %s, want open", m.State)
	}
}

func TestExecute_HalfOpenAfterResetTimeout(t *testing.T) {
	cb, now := testBreaker(t, Config{Vendor: "elevenlabs", ResetTimeout: 30 * time.Second})
	openBreaker(t, cb)

	*now = now.Add(31 * time.Second)

	// The elapsed-time check transitions to half-open and allows the trial.
	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if !called {
		t.Fatal("trial call should be attempted after reset timeout")
	}

	m := cb.Snapshot()
	if m.State != StateClosed {
		t.Errorf("state = %s, want closed after successful trial", m.State)
	}
	if m.TotalCount != 0 || m.ConsecutiveFailures != 0 {
		t.Errorf("counters = %+v, want zeroed after close", m)
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb, now := testBreaker(t, Config{Vendor: "elevenlabs", ResetTimeout: 30 * time.Second})
	openBreaker(t, cb)

	*now = now.Add(31 * time.Second)

	if err := cb.Execute(context.Background(), fail); !errors.Is(err, errVendorDown) {
		t.Fatalf("trial call: %v", err)
	}

	if m := cb.Snapshot(); m.State != StateOpen {
		t.Fatalf("state = %s, want open after failed trial", m.State)
	}

	// The reset timer restarted: 20s later the circuit still rejects.
	*now = now.Add(20 * time.Second)
	if err := cb.Execute(context.Background(), succeed); !IsOpen(err) {
		t.Errorf("expected open rejection 20s after failed trial, got %v", err)
	}

	// Full reset window later a new trial is allowed.
	*now = now.Add(11 * time.Second)
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("expected trial after restarted reset window, got %v", err)
	}
}

func TestExecute_TimeoutCountsAsFailure(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "twilio", Timeout: 20 * time.Millisecond, VolumeThreshold: 100})
	cb.now = time.Now // real clock for the timeout race

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	if m := cb.Snapshot(); m.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1 after timeout", m.FailureCount)
	}
}

func TestCall_ReturnsValueThroughBreaker(t *testing.T) {
	cb, _ := testBreaker(t, Config{Vendor: "deepgram"})

	transcript, err := Call(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "hello from the call", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if transcript != "hello from the call" {
		t.Errorf("result = %q", transcript)
	}

	openBreaker(t, cb)
	if _, err := Call(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "unreachable", nil
	}); !IsOpen(err) {
		t.Errorf("expected open rejection, got %v", err)
	}
}
