package domain

import (
	"context"
	"time"
)

// Collection names a bucket of documents.
type Collection string

// Collections used by the lifecycle and workflow engines.
const (
	CollectionAssets   Collection = "assets"
	CollectionRequests Collection = "asset_requests"
	CollectionIssues   Collection = "asset_issues"
	CollectionEvents   Collection = "asset_events"
)

// Fields holds a document body or a partial update keyed by top-level field.
type Fields map[string]any

// Document is a stored record. Version starts at 1 and increases by one on
// every update.
type Document struct {
	ID         string     `json:"id"`
	Tenant     string     `json:"tenant"`
	Collection Collection `json:"collection"`
	Version    int64      `json:"version"`
	Fields     Fields     `json:"fields"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Precondition guards an update. A zero Version means unconditional.
type Precondition struct {
	Version int64
}

// IfVersion returns a precondition that only matches the given version.
func IfVersion(v int64) Precondition { return Precondition{Version: v} }

// DocumentStore is the only collaborator the engines depend on. Every call is
// scoped to a tenant; documents are invisible across tenants.
type DocumentStore interface {
	// Get returns NotFoundError when the document does not exist.
	Get(ctx context.Context, tenant string, collection Collection, id string) (Document, error)
	List(ctx context.Context, tenant string, collection Collection, q Query) ([]Document, error)
	// Create generates an id when id is empty.
	Create(ctx context.Context, tenant string, collection Collection, id string, fields Fields) (Document, error)
	// Update merges fields into the stored body, last write wins per field.
	// It returns ErrVersionConflict when cond.Version is set and stale.
	Update(ctx context.Context, tenant string, collection Collection, id string, fields Fields, cond Precondition) (Document, error)
	Delete(ctx context.Context, tenant string, collection Collection, id string) error
	Close() error
}
