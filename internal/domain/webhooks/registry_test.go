package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCreateSubscriptionReturnsSecretOnce(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)
	orgID := uuid.New()

	sub, secret, err := registry.Create(context.Background(), orgID, "https://partner.example/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if !strings.HasPrefix(secret, SecretPrefix) {
		t.Errorf("secret = %q, want whsec_ prefix", secret)
	}
	if sub.SecretCiphertext == secret || strings.Contains(sub.SecretCiphertext, secret) {
		t.Error("stored ciphertext contains the plaintext secret")
	}

	// The dispatcher can recover the plaintext.
	recovered, err := registry.DecryptSecret(sub)
	if err != nil {
		t.Fatalf("DecryptSecret() error: %v", err)
	}
	if recovered != secret {
		t.Errorf("DecryptSecret() = %q, want the issued secret", recovered)
	}
}

func TestCreateSubscriptionValidatesURL(t *testing.T) {
	registry := testRegistry(t, newMemorySubscriptions(), false)
	orgID := uuid.New()

	cases := []struct {
		url     string
		wantErr error
	}{
		{"not a url", ErrInvalidTargetURL},
		{"/relative/path", ErrInvalidTargetURL},
		{"ftp://partner.example/hook", ErrInvalidTargetURL},
		{"http://partner.example/hook", ErrInsecureTargetURL},
	}
	for _, tc := range cases {
		_, _, err := registry.Create(context.Background(), orgID, tc.url, []string{"order.created"})
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("Create(%q) error = %v, want %v", tc.url, err, tc.wantErr)
		}
	}
}

func TestCreateSubscriptionAllowsHTTPInSandbox(t *testing.T) {
	registry := testRegistry(t, newMemorySubscriptions(), true)

	_, _, err := registry.Create(context.Background(), uuid.New(), "http://localhost:9999/hook", []string{"order.created"})
	if err != nil {
		t.Errorf("Create(http) with insecure URLs allowed error: %v", err)
	}
}

func TestCreateSubscriptionRejectsEmptyEventTypes(t *testing.T) {
	registry := testRegistry(t, newMemorySubscriptions(), false)

	_, _, err := registry.Create(context.Background(), uuid.New(), "https://partner.example/hook", nil)
	if !errors.Is(err, ErrEmptyEventTypes) {
		t.Errorf("Create(nil types) error = %v, want ErrEmptyEventTypes", err)
	}

	_, _, err = registry.Create(context.Background(), uuid.New(), "https://partner.example/hook", []string{"", ""})
	if !errors.Is(err, ErrEmptyEventTypes) {
		t.Errorf("Create(blank types) error = %v, want ErrEmptyEventTypes", err)
	}
}

func TestCreateSubscriptionDeduplicatesEventTypes(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)

	sub, _, err := registry.Create(context.Background(), uuid.New(), "https://partner.example/hook",
		[]string{"order.created", "order.created", "order.cancelled"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(sub.EventTypes) != 2 {
		t.Errorf("EventTypes = %v, want deduplicated pair", sub.EventTypes)
	}
}

func TestDisableEnable(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)
	orgID := uuid.New()

	sub, _, err := registry.Create(context.Background(), orgID, "https://partner.example/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := registry.Disable(context.Background(), sub.ID, orgID); err != nil {
		t.Fatalf("Disable() error: %v", err)
	}
	got, err := registry.Get(context.Background(), sub.ID, orgID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != SubscriptionDisabled {
		t.Errorf("Status = %s, want DISABLED", got.Status)
	}
	if got.DisabledAt == nil {
		t.Error("DisabledAt not set")
	}

	if err := registry.Enable(context.Background(), sub.ID, orgID); err != nil {
		t.Fatalf("Enable() error: %v", err)
	}
	got, _ = registry.Get(context.Background(), sub.ID, orgID)
	if got.Status != SubscriptionActive {
		t.Errorf("Status = %s, want ACTIVE", got.Status)
	}
}

func TestOrgScopingHidesForeignSubscriptions(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)

	sub, _, err := registry.Create(context.Background(), uuid.New(), "https://partner.example/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	otherOrg := uuid.New()
	if _, err := registry.Get(context.Background(), sub.ID, otherOrg); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Get() across orgs error = %v, want ErrSubscriptionNotFound", err)
	}
	if err := registry.Disable(context.Background(), sub.ID, otherOrg); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Disable() across orgs error = %v, want ErrSubscriptionNotFound", err)
	}
	if _, err := registry.RotateSecret(context.Background(), sub.ID, otherOrg); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("RotateSecret() across orgs error = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestRotateSecretInvalidatesOld(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)
	orgID := uuid.New()

	sub, oldSecret, err := registry.Create(context.Background(), orgID, "https://partner.example/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	newSecret, err := registry.RotateSecret(context.Background(), sub.ID, orgID)
	if err != nil {
		t.Fatalf("RotateSecret() error: %v", err)
	}
	if newSecret == oldSecret {
		t.Fatal("rotation produced the same secret")
	}

	refreshed, err := registry.Get(context.Background(), sub.ID, orgID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	current, err := registry.DecryptSecret(refreshed)
	if err != nil {
		t.Fatalf("DecryptSecret() error: %v", err)
	}
	if current != newSecret {
		t.Error("stored secret is not the rotated one")
	}
	if current == oldSecret {
		t.Error("old secret still stored after rotation")
	}
}

func TestUpdateEventTypes(t *testing.T) {
	repo := newMemorySubscriptions()
	registry := testRegistry(t, repo, false)
	orgID := uuid.New()

	sub, _, err := registry.Create(context.Background(), orgID, "https://partner.example/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := registry.UpdateEventTypes(context.Background(), sub.ID, orgID, []string{"inventory.low", "order.cancelled"}); err != nil {
		t.Fatalf("UpdateEventTypes() error: %v", err)
	}
	got, _ := registry.Get(context.Background(), sub.ID, orgID)
	if len(got.EventTypes) != 2 || got.EventTypes[0] != "inventory.low" || got.EventTypes[1] != "order.cancelled" {
		t.Errorf("EventTypes = %v, want sorted replacement set", got.EventTypes)
	}

	if err := registry.UpdateEventTypes(context.Background(), sub.ID, orgID, nil); !errors.Is(err, ErrEmptyEventTypes) {
		t.Errorf("UpdateEventTypes(nil) error = %v, want ErrEmptyEventTypes", err)
	}
}
