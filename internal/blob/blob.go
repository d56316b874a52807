// Package blob defines the object storage abstraction used for issuance
// receipts and audit exports. Concrete backends live under
// internal/infra/blob; callers depend on Store only.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // process memory (tests)
)

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// SignedURLOptions configures PresignURL.
type SignedURLOptions struct {
	Expiry time.Duration // default 15m
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal S3-like object store. Put is create-only.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether the object existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited GET URL or ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("blob: not found")
	// ErrExists is returned by Put when the key is taken.
	ErrExists = errors.New("blob: already exists")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("blob: invalid key")
	// ErrUnsupported is returned when a backend lacks an optional capability.
	ErrUnsupported = errors.New("blob: unsupported operation")
)

// CleanKey validates key and returns its slash-normalised form.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes root", ErrInvalidKey, key)
		}
	}
	return path.Clean(key), nil
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// PutJSON stores v as an indented JSON document.
func PutJSON(ctx context.Context, store Store, key string, v any, metadata map[string]string) (Info, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, bytes.NewReader(body), PutOptions{ContentType: "application/json", Metadata: metadata})
}

// ReadAll fetches an object's full contents.
func ReadAll(ctx context.Context, store Store, key string) (Info, []byte, error) {
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read %s: %w", key, err)
	}
	return info, body, nil
}
