package memory

import (
	"assetflow/internal/infra/persistence/storetest"
	"assetflow/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.DocumentStore { return NewStore() })
}

func TestStoreUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(WithNow(func() time.Time { return fixed }))
	doc, err := s.Create(context.Background(), "org", domain.CollectionAssets, "a", domain.Fields{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !doc.CreatedAt.Equal(fixed) || !doc.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps %v/%v, want %v", doc.CreatedAt, doc.UpdatedAt, fixed)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Get(ctx, "org", domain.CollectionAssets, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestStoreNestedValuesAreCopied(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Create(ctx, "org", domain.CollectionRequests, "r", domain.Fields{"requested_items": []string{"a", "b"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, _ := s.Get(ctx, "org", domain.CollectionRequests, "r")
	items := doc.Fields["requested_items"].([]any)
	items[0] = "zzz"
	again, _ := s.Get(ctx, "org", domain.CollectionRequests, "r")
	if again.Fields["requested_items"].([]any)[0] != "a" {
		t.Fatalf("nested slice leaked out of the store")
	}
}
