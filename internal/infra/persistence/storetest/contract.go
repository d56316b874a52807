// Package storetest holds the behavioural contract every domain.DocumentStore
// backend must satisfy. Backend test files call Run with their constructor.
package storetest

import (
	"assetflow/pkg/domain"
	"context"
	"errors"
	"sync"
	"testing"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) domain.DocumentStore

// Run executes the contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s domain.DocumentStore)
	}{
		{"create and get", testCreateGet},
		{"generated ids", testGeneratedIDs},
		{"duplicate create", testDuplicateCreate},
		{"tenant isolation", testTenantIsolation},
		{"partial update", testPartialUpdate},
		{"version precondition", testVersionPrecondition},
		{"missing documents", testMissing},
		{"list query", testList},
		{"delete", testDelete},
		{"missing tenant", testMissingTenant},
		{"concurrent conditional updates", testConcurrentConditionalUpdates},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

const (
	tenantA = "org-a"
	tenantB = "org-b"
	coll    = domain.CollectionAssets
)

func testCreateGet(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	created, err := s.Create(ctx, tenantA, coll, "a1", domain.Fields{"name": "Laptop", "current_stock": 3, "tags": []string{"x", "y"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "a1" || created.Version != 1 || created.Tenant != tenantA || created.Collection != coll {
		t.Fatalf("unexpected created document %+v", created)
	}
	got, err := s.Get(ctx, tenantA, coll, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["name"] != "Laptop" {
		t.Fatalf("name = %v", got.Fields["name"])
	}
	if got.Fields["current_stock"] != float64(3) {
		t.Fatalf("numbers must decode as float64, got %T %v", got.Fields["current_stock"], got.Fields["current_stock"])
	}
	tags, ok := got.Fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v", got.Fields["tags"])
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", got)
	}
	got.Fields["name"] = "mutated"
	again, err := s.Get(ctx, tenantA, coll, "a1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Fields["name"] != "Laptop" {
		t.Fatalf("returned documents must be copies")
	}
}

func testGeneratedIDs(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	first, err := s.Create(ctx, tenantA, coll, "", domain.Fields{"name": "one"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.Create(ctx, tenantA, coll, "", domain.Fields{"name": "two"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}
}

func testDuplicateCreate(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Create(ctx, tenantA, coll, "dup", domain.Fields{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, tenantA, coll, "dup", domain.Fields{}); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
}

func testTenantIsolation(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Create(ctx, tenantA, coll, "shared", domain.Fields{"owner": "a"}); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := s.Get(ctx, tenantB, coll, "shared"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := s.Create(ctx, tenantB, coll, "shared", domain.Fields{"owner": "b"}); err != nil {
		t.Fatalf("same id in other tenant: %v", err)
	}
	docs, err := s.List(ctx, tenantB, coll, domain.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].Fields["owner"] != "b" {
		t.Fatalf("tenant b sees %+v", docs)
	}
	if _, err := s.Get(ctx, tenantA, domain.CollectionRequests, "shared"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("collections must be isolated, got %v", err)
	}
}

func testPartialUpdate(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Create(ctx, tenantA, coll, "p1", domain.Fields{"name": "Drill", "location": "shed", "custodian": "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := s.Update(ctx, tenantA, coll, "p1", domain.Fields{"location": "van", "custodian": nil}, domain.Precondition{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
	if updated.Fields["name"] != "Drill" || updated.Fields["location"] != "van" {
		t.Fatalf("unexpected fields %+v", updated.Fields)
	}
	if v := updated.Fields["custodian"]; v != nil {
		t.Fatalf("custodian should be cleared, got %v", v)
	}
	got, err := s.Get(ctx, tenantA, coll, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 || got.Fields["location"] != "van" {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func testVersionPrecondition(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	created, err := s.Create(ctx, tenantA, coll, "v1", domain.Fields{"current_stock": 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Update(ctx, tenantA, coll, "v1", domain.Fields{"current_stock": 4}, domain.IfVersion(created.Version)); err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	_, err = s.Update(ctx, tenantA, coll, "v1", domain.Fields{"current_stock": 3}, domain.IfVersion(created.Version))
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	got, err := s.Get(ctx, tenantA, coll, "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["current_stock"] != float64(4) || got.Version != 2 {
		t.Fatalf("stale write applied: %+v", got)
	}
}

func testMissing(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Get(ctx, tenantA, coll, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := s.Update(ctx, tenantA, coll, "nope", domain.Fields{"x": 1}, domain.Precondition{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := s.Delete(ctx, tenantA, coll, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
}

func testList(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	seed := []struct {
		id    string
		kind  string
		stock int
	}{
		{"c1", "CONSUMABLE", 8},
		{"a1", "ASSET", 0},
		{"c2", "CONSUMABLE", 2},
		{"c3", "CONSUMABLE", 5},
	}
	for _, item := range seed {
		if _, err := s.Create(ctx, tenantA, coll, item.id, domain.Fields{"item_type": item.kind, "current_stock": item.stock}); err != nil {
			t.Fatalf("create %s: %v", item.id, err)
		}
	}
	docs, err := s.List(ctx, tenantA, coll, domain.Query{
		Filters: []domain.Filter{domain.Where("item_type", domain.OpEq, domain.ItemTypeConsumable)},
		OrderBy: []domain.Order{{Field: "current_stock", Desc: true}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if len(ids) != 3 || ids[0] != "c1" || ids[1] != "c3" || ids[2] != "c2" {
		t.Fatalf("unexpected order %v", ids)
	}
	page, err := s.List(ctx, tenantA, coll, domain.Query{
		Filters: []domain.Filter{domain.Where("current_stock", domain.OpGte, 2)},
		OrderBy: []domain.Order{{Field: "current_stock"}},
		Limit:   1,
		Offset:  1,
	})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(page) != 1 || page[0].ID != "c3" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func testDelete(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Create(ctx, tenantA, coll, "d1", domain.Fields{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, tenantA, coll, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, tenantA, coll, "d1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted document to be gone, got %v", err)
	}
}

func testMissingTenant(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, err := s.Create(ctx, "", coll, "x", domain.Fields{}); !errors.Is(err, domain.ErrMissingTenant) {
		t.Fatalf("expected missing tenant, got %v", err)
	}
	if _, err := s.List(ctx, "", coll, domain.Query{}); !errors.Is(err, domain.ErrMissingTenant) {
		t.Fatalf("expected missing tenant on list, got %v", err)
	}
}

// testConcurrentConditionalUpdates races writers holding the same version;
// exactly one may win.
func testConcurrentConditionalUpdates(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	created, err := s.Create(ctx, tenantA, coll, "race", domain.Fields{"current_stock": 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, tenantA, coll, "race", domain.Fields{"current_stock": 0}, domain.IfVersion(created.Version))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
}
