// Package blobtest holds the behaviour shared by every blob.Store backend.
package blobtest

import (
	"assetflow/internal/blob"
	"context"
	"errors"
	"strings"
	"testing"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) blob.Store

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("put and get", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("create only", func(t *testing.T) { testCreateOnly(t, newStore(t)) })
	t.Run("missing objects", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("list by prefix", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func testPutGet(t *testing.T, s blob.Store) {
	ctx := context.Background()
	info, err := s.Put(ctx, "receipts/org/r1/a1.json", strings.NewReader(`{"asset_id":"a1"}`), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"tenant": "org"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "receipts/org/r1/a1.json" || info.Size != int64(len(`{"asset_id":"a1"}`)) {
		t.Fatalf("unexpected put info %+v", info)
	}
	got, body, err := blob.ReadAll(ctx, s, "receipts/org/r1/a1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != `{"asset_id":"a1"}` {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}
	head, err := s.Head(ctx, "receipts/org/r1/a1.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != info.Size {
		t.Fatalf("head size %d, want %d", head.Size, info.Size)
	}
}

func testCreateOnly(t *testing.T, s blob.Store) {
	ctx := context.Background()
	if _, err := s.Put(ctx, "exports/org/e.jsonl", strings.NewReader("one"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "exports/org/e.jsonl", strings.NewReader("two"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, body, err := blob.ReadAll(ctx, s, "exports/org/e.jsonl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "one" {
		t.Fatalf("second put overwrote the object: %q", body)
	}
}

func testMissing(t *testing.T, s blob.Store) {
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "nope/x"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, "nope/x"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
}

func testList(t *testing.T, s blob.Store) {
	ctx := context.Background()
	for _, key := range []string{"receipts/org/r2/a1.json", "receipts/org/r1/a2.json", "receipts/org/r1/a1.json", "exports/org/x.jsonl"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), blob.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "receipts/org/r1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "receipts/org/r1/a1.json" || infos[1].Key != "receipts/org/r1/a2.json" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 || all[0].Key != "exports/org/x.jsonl" {
		t.Fatalf("unexpected full listing %+v", all)
	}
}

func testDelete(t *testing.T, s blob.Store) {
	ctx := context.Background()
	if _, err := s.Put(ctx, "tmp/a", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := s.Delete(ctx, "tmp/a")
	if err != nil || !existed {
		t.Fatalf("delete existing: %v %v", existed, err)
	}
	existed, err = s.Delete(ctx, "tmp/a")
	if err != nil || existed {
		t.Fatalf("delete missing: %v %v", existed, err)
	}
	if _, err := s.Head(ctx, "tmp/a"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("deleted object still visible: %v", err)
	}
}
