package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "basic payload",
			payload: []byte(`{"event":"call.completed","data":{"call_id":"c-123"}}`),
			secret:  "whsec_abc",
		},
		{
			name:    "empty object",
			payload: []byte(`{}`),
			secret:  "secret",
		},
		{
			name:    "unicode payload",
			payload: []byte(`{"caller":"café","note":"日本語"}`),
			secret:  "unicode-key",
		},
	}

	codec := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := codec.Sign(tt.payload, tt.secret)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}

			if err := codec.Verify(tt.payload, header, tt.secret, 0); err != nil {
				t.Errorf("Verify should accept freshly signed payload: %v", err)
			}
		})
	}
}

func TestSign_HeaderFormat(t *testing.T) {
	codec := New()
	codec.now = func() time.Time { return time.Unix(1756700000, 0) }

	payload := []byte(`{"event":"recording.available"}`)
	secret := "whsec_format"

	header, err := codec.Sign(payload, secret)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Expected: t=<unix>,v1=<hmac-sha256 of "<t>.<payload>">
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("1756700000.%s", payload)))
	want := "t=1756700000,v1=" + hex.EncodeToString(mac.Sum(nil))

	if header != want {
		t.Errorf("header = %q, want %q", header, want)
	}
}

func TestSign_MissingSecret(t *testing.T) {
	if _, err := New().Sign([]byte(`{}`), ""); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	codec := New()
	payload := []byte(`{"event":"disposition.set"}`)

	header, err := codec.Sign(payload, "correct-secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := codec.Verify(payload, header, "wrong-secret", 0); !errors.Is(err, ErrMismatch) {
		t.Errorf("expected ErrMismatch for wrong secret, got %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	codec := New()

	header, err := codec.Sign([]byte(`{"amount":10}`), "secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := codec.Verify([]byte(`{"amount":9999}`), header, "secret", 0); !errors.Is(err, ErrMismatch) {
		t.Errorf("expected ErrMismatch for tampered payload, got %v", err)
	}
}

func TestVerify_ExpiredTimestamp(t *testing.T) {
	signer := New()
	signer.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }

	payload := []byte(`{"event":"call.started"}`)
	header, err := signer.Sign(payload, "secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Default tolerance is 5 minutes; a 10 minute old signature must fail.
	if err := New().Verify(payload, header, "secret", 0); !errors.Is(err, ErrTimestampExpired) {
		t.Errorf("expected ErrTimestampExpired, got %v", err)
	}

	// A wider tolerance accepts it.
	if err := New().Verify(payload, header, "secret", 15*time.Minute); err != nil {
		t.Errorf("expected success with 15m tolerance, got %v", err)
	}
}

func TestVerify_FutureTimestamp(t *testing.T) {
	signer := New()
	signer.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	payload := []byte(`{"event":"call.started"}`)
	header, err := signer.Sign(payload, "secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := New().Verify(payload, header, "secret", 0); !errors.Is(err, ErrTimestampExpired) {
		t.Errorf("expected ErrTimestampExpired for future timestamp, got %v", err)
	}
}

func TestVerify_MalformedHeaders(t *testing.T) {
	codec := New()
	payload := []byte(`{}`)

	headers := []string{
		"",
		"garbage",
		"t=notanumber,v1=abc",
		"v1=deadbeef",
		"t=1756700000",
		"t=,v1=",
	}

	for _, h := range headers {
		if err := codec.Verify(payload, h, "secret", 0); !errors.Is(err, ErrMalformedHeader) {
			t.Errorf("Verify(%q) = %v, want ErrMalformedHeader", h, err)
		}
	}
}

func TestVerify_HeaderWithSpaces(t *testing.T) {
	codec := New()
	payload := []byte(`{"ok":true}`)

	header, err := codec.Sign(payload, "secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	spaced := strings.Replace(header, ",", ", ", 1)
	if err := codec.Verify(payload, spaced, "secret", 0); err != nil {
		t.Errorf("Verify should tolerate spaces after commas: %v", err)
	}
}
