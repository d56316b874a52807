package fs

import (
	"assetflow/internal/blob"
	"assetflow/internal/blob/blobtest"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.Store { return newTestStore(t) })
}

func TestSidecarWritten(t *testing.T) {
	s := newTestStore(t)
	info, err := s.Put(context.Background(), "receipts/org/r1/a1.json", strings.NewReader("{}"), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatalf("etag missing")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "receipts", "org", "r1", "a1.json.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
}

func TestReservedSuffixRejected(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put(context.Background(), "x.meta", strings.NewReader(""), blob.PutOptions{}); !errors.Is(err, blob.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := s.Put(context.Background(), "../outside", strings.NewReader(""), blob.PutOptions{}); !errors.Is(err, blob.ErrInvalidKey) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
}

func TestCorruptSidecar(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put(context.Background(), "a", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "a.meta"), []byte("{not json"), 0o640); err != nil {
		t.Fatalf("corrupt sidecar: %v", err)
	}
	if _, err := s.Head(context.Background(), "a"); err == nil || errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := s.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}

func TestPresignFileURL(t *testing.T) {
	s := newTestStore(t)
	url, err := s.PresignURL(context.Background(), "exports/org/e.jsonl", blob.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "exports/org/e.jsonl") {
		t.Fatalf("unexpected url %s", url)
	}
}
