// Package signature verifies webhook deliveries signed by the identity provider.
//
// The provider sends a header of the form
//
//	workos-signature: t=1700000000000, v1=<hex>
//
// where t is the send time in Unix milliseconds and v1 is the hex HMAC-SHA256
// of "{t}.{raw body}" keyed with the webhook secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// HeaderName is the HTTP header carrying the signature.
const HeaderName = "workos-signature"

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
// timestamp is in Unix milliseconds.
func Sign(payload []byte, secret string, timestamp int64) string {
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// Header builds a complete signature header value for payload signed at ts.
// Used by tests and local tooling that replay deliveries.
func Header(payload []byte, secret string, ts time.Time) string {
	ms := ts.UnixMilli()
	return fmt.Sprintf("t=%d, v1=%s", ms, Sign(payload, secret, ms))
}
