package core

import (
	"assetflow/internal/infra/persistence/memory"
	"assetflow/pkg/domain"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	tenant = "org-1"
	admin  = "staff-admin"
	alice  = "staff-alice"
	bob    = "staff-bob"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	store    *faultyStore
	clock    *ManualClock
	assets   *AssetLifecycle
	workflow *RequestWorkflow
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store := &faultyStore{DocumentStore: memory.NewStore()}
	clock := NewManualClock(epoch)
	opts = append([]Option{WithClock(clock)}, opts...)
	assets := NewAssetLifecycle(store, opts...)
	return &harness{store: store, clock: clock, assets: assets, workflow: NewRequestWorkflow(assets)}
}

func (h *harness) asset(t *testing.T, id string, status domain.AvailableStatus, custodian string) domain.Asset {
	t.Helper()
	a, err := h.assets.CreateAsset(context.Background(), tenant, NewAsset{
		ID:               id,
		Name:             "Laptop " + id,
		ItemType:         domain.ItemTypeAsset,
		AvailableStatus:  status,
		CustodianStaffID: custodian,
		Location:         "HQ",
	}, admin)
	if err != nil {
		t.Fatalf("create asset %s: %v", id, err)
	}
	return a
}

func (h *harness) consumable(t *testing.T, id string, stock, minimum int) domain.Asset {
	t.Helper()
	a, err := h.assets.CreateAsset(context.Background(), tenant, NewAsset{
		ID:           id,
		Name:         "Cable " + id,
		ItemType:     domain.ItemTypeConsumable,
		CurrentStock: stock,
		MinimumStock: minimum,
	}, admin)
	if err != nil {
		t.Fatalf("create consumable %s: %v", id, err)
	}
	return a
}

func (h *harness) request(t *testing.T, requester string, items ...string) domain.AssetRequest {
	t.Helper()
	r, err := h.workflow.CreateRequest(context.Background(), tenant, NewRequest{
		RequesterStaffID:   requester,
		RequestedItems:     items,
		IssueDate:          h.clock.Now().Add(time.Hour),
		ExpectedReturnDate: h.clock.Now().Add(7 * 24 * time.Hour),
		Purpose:            "onboarding",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

func (h *harness) reload(t *testing.T, id string) domain.Asset {
	t.Helper()
	a, err := h.assets.GetAsset(context.Background(), tenant, id)
	if err != nil {
		t.Fatalf("get asset %s: %v", id, err)
	}
	return a
}

func (h *harness) events(t *testing.T, id string) []domain.AssetEvent {
	t.Helper()
	evs, err := h.assets.Events(context.Background(), tenant, id)
	if err != nil {
		t.Fatalf("events %s: %v", id, err)
	}
	return evs
}

func eventTypes(evs []domain.AssetEvent) []domain.EventType {
	out := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventType
	}
	return out
}

var errInjected = errors.New("injected store failure")

// faultyStore fails selected writes.
type faultyStore struct {
	domain.DocumentStore

	mu         sync.Mutex
	failCreate func(collection domain.Collection) error
	failUpdate func(collection domain.Collection, id string) error
}

func (s *faultyStore) setFailCreate(fn func(domain.Collection) error) {
	s.mu.Lock()
	s.failCreate = fn
	s.mu.Unlock()
}

func (s *faultyStore) setFailUpdate(fn func(domain.Collection, string) error) {
	s.mu.Lock()
	s.failUpdate = fn
	s.mu.Unlock()
}

func (s *faultyStore) Create(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields) (domain.Document, error) {
	s.mu.Lock()
	fn := s.failCreate
	s.mu.Unlock()
	if fn != nil {
		if err := fn(collection); err != nil {
			return domain.Document{}, err
		}
	}
	return s.DocumentStore.Create(ctx, tenant, collection, id, fields)
}

func (s *faultyStore) Update(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields, cond domain.Precondition) (domain.Document, error) {
	s.mu.Lock()
	fn := s.failUpdate
	s.mu.Unlock()
	if fn != nil {
		if err := fn(collection, id); err != nil {
			return domain.Document{}, err
		}
	}
	return s.DocumentStore.Update(ctx, tenant, collection, id, fields, cond)
}
