package secrets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func TestSignMatchesIndependentVerifier(t *testing.T) {
	secret := []byte("whsec_partner_shared")
	body := []byte(`{"id":"01HV","type":"order.created","data":{"orderId":42}}`)
	ts := int64(1700000000)

	got := Sign(secret, ts, body)

	// Recompute the way a partner's docs describe it: HMAC-SHA256 over
	// "<timestamp>.<raw-body>", hex encoded.
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("1700000000."))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_partner_shared")
	body := []byte(`{"hello":"world"}`)
	now := time.Now()
	ts := now.Unix()
	sig := Sign(secret, ts, body)

	if !VerifySignature(secret, ts, body, sig, DefaultSignatureTolerance, now) {
		t.Error("VerifySignature() = false for a valid signature")
	}
	if VerifySignature([]byte("other-secret"), ts, body, sig, DefaultSignatureTolerance, now) {
		t.Error("VerifySignature() = true under the wrong secret")
	}
	if VerifySignature(secret, ts, []byte(`{"hello":"mars"}`), sig, DefaultSignatureTolerance, now) {
		t.Error("VerifySignature() = true for a different body")
	}
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	secret := []byte("whsec_partner_shared")
	body := []byte(`{}`)
	now := time.Now()
	stale := now.Add(-10 * time.Minute).Unix()
	sig := Sign(secret, stale, body)

	if VerifySignature(secret, stale, body, sig, 5*time.Minute, now) {
		t.Error("VerifySignature() accepted a 10-minute-old timestamp with 5m tolerance")
	}

	future := now.Add(10 * time.Minute).Unix()
	sig = Sign(secret, future, body)
	if VerifySignature(secret, future, body, sig, 5*time.Minute, now) {
		t.Error("VerifySignature() accepted a timestamp 10 minutes in the future")
	}
}

func TestSigningStringLayout(t *testing.T) {
	got := string(SigningString(42, []byte("body")))
	if got != "42.body" {
		t.Errorf("SigningString() = %q, want %q", got, "42.body")
	}
}
