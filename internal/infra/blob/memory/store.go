// Package memory implements an in-process blob.Store for tests and
// ephemeral runs.
package memory

import (
	"assetflow/internal/blob"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ blob.Store = (*Store)(nil)

type object struct {
	info blob.Info
	data []byte
}

// Store keeps objects in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns an empty store.
func New() *Store { return &Store{objects: make(map[string]object)} }

// Driver returns blob.DriverMemory.
func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

// Put stores a copy of r's contents under key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, fmt.Errorf("read %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return blob.Info{}, err
	}
	sum := sha256.Sum256(data)
	info := blob.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     blob.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}
	s.objects[key] = object{info: info, data: data}
	return copyInfo(info), nil
}

func (s *Store) lookup(key string) (object, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return object{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	return obj, nil
}

// Get returns the object's info and a reader over a private copy.
func (s *Store) Get(_ context.Context, key string) (blob.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return copyInfo(obj.info), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Head returns the object's info.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return blob.Info{}, err
	}
	return copyInfo(obj.info), nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns objects under prefix ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	s.mu.RLock()
	out := make([]blob.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, copyInfo(obj.info))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available in memory.
func (s *Store) PresignURL(context.Context, string, blob.SignedURLOptions) (string, error) {
	return "", blob.ErrUnsupported
}

func copyInfo(info blob.Info) blob.Info {
	info.Metadata = blob.CloneMetadata(info.Metadata)
	return info
}
