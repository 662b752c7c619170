package secrets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultSignatureTolerance is the receiver-side replay window: signed
// payloads older (or newer) than this relative to the verifier's clock
// should be rejected.
const DefaultSignatureTolerance = 5 * time.Minute

// SigningString builds the canonical string covered by a webhook signature:
// "<unix-timestamp>.<raw-body>". Receivers must recompute it over the exact
// header timestamp and raw request body.
func SigningString(timestamp int64, body []byte) []byte {
	prefix := fmt.Sprintf("%d.", timestamp)
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	out = append(out, body...)
	return out
}

// Sign computes the hex-encoded HMAC-SHA256 signature over the canonical
// signing string.
func Sign(secret []byte, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(SigningString(timestamp, body))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares it in constant time,
// rejecting timestamps outside the tolerance window. This mirrors the
// verification contract published to partners and backs the gateway's own
// tests; the dispatcher never verifies its own signatures in production.
func VerifySignature(secret []byte, timestamp int64, body []byte, signature string, tolerance time.Duration, now time.Time) bool {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return false
	}
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
