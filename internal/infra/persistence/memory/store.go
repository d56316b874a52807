// Package memory provides an in-memory document store used for tests and
// ephemeral environments.
package memory

import (
	"assetflow/pkg/domain"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

type key struct {
	tenant     string
	collection domain.Collection
	id         string
}

// Store keeps documents in process memory. A single mutex serializes writers,
// so version checks and the write that follows them are atomic.
type Store struct {
	mu    sync.RWMutex
	docs  map[key]domain.Document
	nowFn func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the timestamp source.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:  make(map[key]domain.Document),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cloneDocument(d domain.Document) domain.Document {
	cp := d
	cp.Fields = make(domain.Fields, len(d.Fields))
	for k, v := range d.Fields {
		cp.Fields[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func validateScope(tenant string, collection domain.Collection) error {
	if tenant == "" {
		return domain.ErrMissingTenant
	}
	if collection == "" {
		return fmt.Errorf("collection required")
	}
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(ctx context.Context, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key{tenant, collection, id}]
	if !ok {
		return domain.Document{}, domain.NotFoundError{Collection: collection, ID: id}
	}
	return cloneDocument(doc), nil
}

// List evaluates q over every document of the collection.
func (s *Store) List(ctx context.Context, tenant string, collection domain.Collection, q domain.Query) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateScope(tenant, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]domain.Document, 0)
	for k, doc := range s.docs {
		if k.tenant == tenant && k.collection == collection {
			candidates = append(candidates, cloneDocument(doc))
		}
	}
	s.mu.RUnlock()
	return q.Apply(candidates)
}

// Create inserts a new document, generating an id when none is supplied.
func (s *Store) Create(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	normalized, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant, collection, id}
	if _, exists := s.docs[k]; exists {
		return domain.Document{}, fmt.Errorf("%s %s already exists", collection, id)
	}
	now := s.nowFn()
	doc := domain.Document{
		ID:         id,
		Tenant:     tenant,
		Collection: collection,
		Version:    1,
		Fields:     normalized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.docs[k] = doc
	return cloneDocument(doc), nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields, cond domain.Precondition) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	normalized, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant, collection, id}
	doc, ok := s.docs[k]
	if !ok {
		return domain.Document{}, domain.NotFoundError{Collection: collection, ID: id}
	}
	if cond.Version != 0 && cond.Version != doc.Version {
		return domain.Document{}, fmt.Errorf("%s %s at version %d, expected %d: %w", collection, id, doc.Version, cond.Version, domain.ErrVersionConflict)
	}
	updated := cloneDocument(doc)
	for field, v := range normalized {
		updated.Fields[field] = v
	}
	updated.Version++
	updated.UpdatedAt = s.nowFn()
	s.docs[k] = updated
	return cloneDocument(updated), nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, tenant string, collection domain.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateScope(tenant, collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant, collection, id}
	if _, ok := s.docs[k]; !ok {
		return domain.NotFoundError{Collection: collection, ID: id}
	}
	delete(s.docs, k)
	return nil
}

// Len reports the number of stored documents across tenants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
