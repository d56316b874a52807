package postgres

import (
	"assetflow/internal/infra/persistence/storetest"
	"assetflow/pkg/domain"
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

const testDSNEnv = "ASSETFLOW_TEST_POSTGRES_DSN"

// openTestStore connects to the database named by ASSETFLOW_TEST_POSTGRES_DSN
// and empties the documents table. Tests in this package share one database,
// so an advisory lock held for the test's lifetime serialises them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	// The lock lives on its own connection so closing the pool never waits on it.
	lockConn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		_ = store.Close()
		t.Fatalf("open lock connection: %v", err)
	}
	if _, err := lockConn.Exec(ctx, `SELECT pg_advisory_lock(424242)`); err != nil {
		_ = lockConn.Close(ctx)
		_ = store.Close()
		t.Fatalf("advisory lock: %v", err)
	}
	if _, err := store.Pool().Exec(ctx, `TRUNCATE documents`); err != nil {
		t.Fatalf("truncate documents: %v", err)
	}
	t.Cleanup(func() {
		_, _ = lockConn.Exec(context.Background(), `SELECT pg_advisory_unlock(424242)`)
		_ = lockConn.Close(context.Background())
	})
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.DocumentStore { return openTestStore(t) })
}

func TestStoreContainmentPushdown(t *testing.T) {
	store := openTestStore(t)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if _, err := store.Create(ctx, "org", domain.CollectionRequests, "r1", domain.Fields{"requested_items": []string{"a1", "a2"}, "status": "PENDING"}); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	if _, err := store.Create(ctx, "org", domain.CollectionRequests, "r2", domain.Fields{"requested_items": []string{"a3"}, "status": "PENDING"}); err != nil {
		t.Fatalf("create r2: %v", err)
	}
	docs, err := store.List(ctx, "org", domain.CollectionRequests, domain.Query{Filters: []domain.Filter{
		domain.Where("requested_items", domain.OpContains, "a2"),
		domain.Where("status", domain.OpEq, domain.RequestPending),
	}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "r1" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestNewStoreRejectsBadDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), "://not-a-dsn"); err == nil {
		t.Fatalf("expected parse error for malformed dsn")
	}
}
