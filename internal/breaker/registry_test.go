package breaker

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_SameBreakerPerVendor(t *testing.T) {
	r := NewRegistry(testLogger())

	first := r.GetBreaker("twilio")
	second := r.GetBreaker("twilio")

	if first != second {
		t.Error("GetBreaker should return the same instance per vendor name")
	}
}

func TestRegistry_DefaultsApplied(t *testing.T) {
	r := NewRegistry(testLogger())

	cb := r.GetBreaker("deepgram")

	if cb.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cb.cfg.Timeout, DefaultTimeout)
	}
	if cb.cfg.ErrorThresholdPercentage != DefaultErrorThresholdPercentage {
		t.Errorf("ErrorThresholdPercentage = %v, want %v", cb.cfg.ErrorThresholdPercentage, DefaultErrorThresholdPercentage)
	}
	if cb.cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want %v", cb.cfg.ResetTimeout, DefaultResetTimeout)
	}
	if cb.cfg.VolumeThreshold != DefaultVolumeThreshold {
		t.Errorf("VolumeThreshold = %d, want %d", cb.cfg.VolumeThreshold, DefaultVolumeThreshold)
	}
}

func TestRegistry_OverridesMergedWithDefaults(t *testing.T) {
	r := NewRegistry(testLogger())

	cb := r.GetBreaker("elevenlabs", Config{Timeout: 3 * time.Second, VolumeThreshold: 5})

	if cb.cfg.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s override", cb.cfg.Timeout)
	}
	if cb.cfg.VolumeThreshold != 5 {
		t.Errorf("VolumeThreshold = %d, want 5 override", cb.cfg.VolumeThreshold)
	}
	// Unset fields keep defaults.
	if cb.cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want default", cb.cfg.ResetTimeout)
	}
	if cb.Vendor() != "elevenlabs" {
		t.Errorf("Vendor() = %q", cb.Vendor())
	}
}

func TestRegistry_OverridesIgnoredOnSecondCall(t *testing.T) {
	r := NewRegistry(testLogger())

	first := r.GetBreaker("twilio", Config{Timeout: time.Second})
	second := r.GetBreaker("twilio", Config{Timeout: time.Minute})

	if first != second {
		t.Fatal("expected the stored breaker")
	}
	if second.cfg.Timeout != time.Second {
		t.Errorf("Timeout = %v, later overrides must not reconfigure", second.cfg.Timeout)
	}
}

func TestRegistry_HealthStatuses(t *testing.T) {
	r := NewRegistry(testLogger())
	ctx := context.Background()

	healthy := r.GetBreaker("twilio")
	healthy.Execute(ctx, succeed)

	broken := r.GetBreaker("deepgram", Config{VolumeThreshold: 2})
	broken.Execute(ctx, fail)
	broken.Execute(ctx, fail)

	statuses := r.HealthStatuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 vendors, got %d", len(statuses))
	}

	if s := statuses["twilio"]; !s.Healthy || s.State != StateClosed {
		t.Errorf("twilio = %+v, want healthy/closed", s)
	}

	s := statuses["deepgram"]
	if s.Healthy || s.State != StateOpen {
		t.Errorf("deepgram = %+v, want unhealthy/open", s)
	}
	if s.ErrorRate != 100 {
		t.Errorf("deepgram error rate = %v, want 100", s.ErrorRate)
	}
	if s.ConsecutiveFailures != 2 {
		t.Errorf("deepgram consecutive failures = %d, want 2", s.ConsecutiveFailures)
	}
}
