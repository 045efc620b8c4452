// Package signature computes and verifies time-bound HMAC signatures over
// webhook payloads. The same header format is used to sign outgoing
// deliveries and to verify webhooks arriving from vendors.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the replay window accepted by Verify.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSecret    = errors.New("signing secret is required")
	ErrMalformedHeader  = errors.New("malformed signature header")
	ErrTimestampExpired = errors.New("signature timestamp outside tolerance")
	ErrMismatch         = errors.New("signature mismatch")
)

// Codec signs and verifies payloads. The zero value is usable; the now hook
// exists for tests.
type Codec struct {
	now func() time.Time
}

func New() *Codec {
	return &Codec{now: time.Now}
}

// Sign returns a signature header of the form
// t=<unix-seconds>,v1=<hex-hmac-sha256 of "<t>.<payload>">.
func (c *Codec) Sign(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	t := c.clock().Unix()
	return fmt.Sprintf("t=%d,v1=%s", t, computeHMAC(t, payload, secret)), nil
}

// Verify parses a signature header, rejects timestamps outside the tolerance
// window, recomputes the HMAC over the raw payload, and compares in constant
// time. A zero tolerance falls back to DefaultTolerance.
func (c *Codec) Verify(payload []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	t, v1, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := c.clock().Unix() - t
	if age < 0 {
		age = -age
	}
	if age > int64(tolerance.Seconds()) {
		return ErrTimestampExpired
	}

	expected := computeHMAC(t, payload, secret)
	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return ErrMismatch
	}
	return nil
}

func (c *Codec) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func parseHeader(header string) (t int64, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			t, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedHeader
			}
		case "v1":
			v1 = v
		}
	}

	if t == 0 || v1 == "" {
		return 0, "", ErrMalformedHeader
	}
	return t, v1, nil
}

// computeHMAC signs "<timestamp>.<payload>" so the signature is bound to the
// moment it was produced.
func computeHMAC(t int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
