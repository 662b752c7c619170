package webhooks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bistroline/gateway/internal/secrets"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memorySubscriptions implements SubscriptionRepository in memory.
type memorySubscriptions struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

func newMemorySubscriptions() *memorySubscriptions {
	return &memorySubscriptions{subs: make(map[uuid.UUID]*Subscription)}
}

func (m *memorySubscriptions) CreateSubscription(_ context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &Subscription{
		ID:               uuid.New(),
		OrgID:            params.OrgID,
		TargetURL:        params.TargetURL,
		SecretCiphertext: params.SecretCiphertext,
		EventTypes:       append([]string(nil), params.EventTypes...),
		Status:           SubscriptionActive,
		CreatedAt:        time.Now().UTC(),
	}
	m.subs[sub.ID] = sub
	return sub, nil
}

func (m *memorySubscriptions) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	copied := *sub
	return &copied, nil
}

func (m *memorySubscriptions) ListSubscriptionsByOrg(_ context.Context, orgID uuid.UUID) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Subscription
	for _, sub := range m.subs {
		if sub.OrgID == orgID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memorySubscriptions) ListActiveMatching(_ context.Context, orgID uuid.UUID, eventType string) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Subscription
	for _, sub := range m.subs {
		if sub.OrgID == orgID && sub.Status == SubscriptionActive && sub.Matches(eventType) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memorySubscriptions) SetSubscriptionStatus(_ context.Context, id uuid.UUID, status SubscriptionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return errors.New("no rows")
	}
	sub.Status = status
	if status == SubscriptionDisabled {
		sub.DisabledAt = &at
	} else {
		sub.DisabledAt = nil
	}
	return nil
}

func (m *memorySubscriptions) UpdateSigningSecret(_ context.Context, id uuid.UUID, ciphertext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return errors.New("no rows")
	}
	sub.SecretCiphertext = ciphertext
	return nil
}

func (m *memorySubscriptions) UpdateEventTypes(_ context.Context, id uuid.UUID, eventTypes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return errors.New("no rows")
	}
	sub.EventTypes = append([]string(nil), eventTypes...)
	return nil
}

// memoryDeliveries implements DeliveryRepository in memory with the same
// conflict semantics as the postgres unique index.
type memoryDeliveries struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*Delivery
	subOwner   map[uuid.UUID]uuid.UUID // subscription -> org
	pairUnique map[string]struct{}     // subscriptionID+eventID
}

func newMemoryDeliveries(subs *memorySubscriptions) *memoryDeliveries {
	owner := make(map[uuid.UUID]uuid.UUID)
	for id, sub := range subs.subs {
		owner[id] = sub.OrgID
	}
	return &memoryDeliveries{
		rows:       make(map[uuid.UUID]*Delivery),
		subOwner:   owner,
		pairUnique: make(map[string]struct{}),
	}
}

func (m *memoryDeliveries) trackOwner(subID, orgID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subOwner[subID] = orgID
}

func (m *memoryDeliveries) CreateDeliveries(_ context.Context, deliveries []*Delivery) ([]*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []*Delivery
	for _, d := range deliveries {
		key := d.SubscriptionID.String() + "/" + d.EventID
		if _, dup := m.pairUnique[key]; dup {
			continue
		}
		m.pairUnique[key] = struct{}{}
		copied := *d
		m.rows[d.ID] = &copied
		inserted = append(inserted, d)
	}
	return inserted, nil
}

func (m *memoryDeliveries) GetDelivery(_ context.Context, id uuid.UUID) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	copied := *d
	return &copied, nil
}

func (m *memoryDeliveries) GetDeliveryForOrg(ctx context.Context, id, orgID uuid.UUID) (*Delivery, error) {
	d, err := m.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	owner := m.subOwner[d.SubscriptionID]
	m.mu.Unlock()
	if owner != orgID {
		return nil, errors.New("no rows")
	}
	return d, nil
}

func (m *memoryDeliveries) UpdateDelivery(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.ID]; !ok {
		return errors.New("no rows")
	}
	copied := *d
	m.rows[d.ID] = &copied
	return nil
}

func (m *memoryDeliveries) ListDeliveries(_ context.Context, orgID uuid.UUID, filter DeliveryFilter, limit int, _ string) (DeliveryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Delivery
	for _, d := range m.rows {
		if m.subOwner[d.SubscriptionID] != orgID {
			continue
		}
		if filter.SubscriptionID != nil && d.SubscriptionID != *filter.SubscriptionID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		copied := *d
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return DeliveryPage{Items: out}, nil
}

func (m *memoryDeliveries) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for id, d := range m.rows {
		if d.Status == DeliveryPending && d.NextRetryAt != nil && d.NextRetryAt.Before(cutoff) {
			out = append(out, id)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// recordingQueue captures queue inserts for assertions.
type recordingQueue struct {
	mu      sync.Mutex
	batches [][]uuid.UUID
	manual  []uuid.UUID
}

func (q *recordingQueue) EnqueueDeliveries(_ context.Context, ids []uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = append(q.batches, append([]uuid.UUID(nil), ids...))
	return nil
}

func (q *recordingQueue) EnqueueManualRetry(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.manual = append(q.manual, id)
	return nil
}

func testRegistry(t interface{ Fatalf(string, ...any) }, repo SubscriptionRepository, allowInsecure bool) *Registry {
	key, err := secrets.DeriveWebhookEncryptionKey([]byte("test-master-secret-0123456789abcdef"))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	box, err := secrets.NewSecretBox(key)
	if err != nil {
		t.Fatalf("new secret box: %v", err)
	}
	return NewRegistry(repo, box, zerolog.Nop(), allowInsecure)
}
