package secrets

import (
	"strings"
	"testing"
)

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	first, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if len(first) != 43 {
		t.Errorf("token length = %d, want 43 (256 bits base64url, no padding)", len(first))
	}
	if strings.ContainsAny(first, "+/=") {
		t.Errorf("token %q contains non-URL-safe characters", first)
	}

	second, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if first == second {
		t.Error("two generated tokens are identical")
	}
}

func TestHashAndVerifySecret(t *testing.T) {
	// bcrypt.MinCost keeps this test fast; production uses DefaultBcryptCost.
	hash, err := HashSecret("live_abc123", 4)
	if err != nil {
		t.Fatalf("HashSecret() error: %v", err)
	}
	if !VerifySecret(hash, "live_abc123") {
		t.Error("VerifySecret() = false for the original secret")
	}
	if VerifySecret(hash, "live_abc124") {
		t.Error("VerifySecret() = true for a mutated secret")
	}
}

func TestHashSecretEmbedsSalt(t *testing.T) {
	a, err := HashSecret("same-secret", 4)
	if err != nil {
		t.Fatalf("HashSecret() error: %v", err)
	}
	b, err := HashSecret("same-secret", 4)
	if err != nil {
		t.Fatalf("HashSecret() error: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same secret are identical; salt missing")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Error("ConstantTimeEqual(abc, abc) = false")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Error("ConstantTimeEqual(abc, abd) = true")
	}
	if ConstantTimeEqual("abc", "abcd") {
		t.Error("ConstantTimeEqual with different lengths = true")
	}
}
