package signature

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/mirror/event"
)

// Verification errors. The root package re-exports them.
var (
	ErrMissing          = errors.New("mirror: signature header missing")
	ErrInvalid          = errors.New("mirror: signature invalid")
	ErrMalformedPayload = errors.New("mirror: malformed webhook payload")
)

// DefaultTolerance is how far the header timestamp may drift from local time.
const DefaultTolerance = 3 * time.Minute

// Verifier checks signature headers and decodes verified payloads.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier returns a Verifier accepting timestamps within tolerance of
// the local clock. A non-positive tolerance disables the freshness check.
func NewVerifier(tolerance time.Duration) *Verifier {
	return &Verifier{tolerance: tolerance, now: time.Now}
}

// WithClock returns a copy of v that reads the current time from now.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	c := *v
	c.now = now
	return &c
}

// Verify authenticates payload against header and secret and decodes it.
func (v *Verifier) Verify(payload []byte, header, secret string) (*event.Event, error) {
	if err := v.Authenticate(payload, header, secret); err != nil {
		return nil, err
	}

	evt, err := event.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return evt, nil
}

// Authenticate checks header against payload and secret without decoding
// the payload. Action requests are signed the same way as webhooks.
func (v *Verifier) Authenticate(payload []byte, header, secret string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissing
	}

	ts, sig, err := ParseHeader(header)
	if err != nil {
		return err
	}

	if v.tolerance > 0 {
		sent := time.UnixMilli(ts)
		if skew := v.now().Sub(sent); skew > v.tolerance || skew < -v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalid)
		}
	}

	expected := Sign(payload, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalid
	}
	return nil
}

// ParseHeader splits a "t=<ms>, v1=<hex>" header into its parts.
func ParseHeader(header string) (int64, string, error) {
	var (
		rawTS string
		sig   string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			rawTS = val
		case "v1":
			sig = val
		}
	}

	if rawTS == "" || sig == "" {
		return 0, "", fmt.Errorf("%w: header lacks t or v1", ErrInvalid)
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad timestamp %q", ErrInvalid, rawTS)
	}
	return ts, sig, nil
}
