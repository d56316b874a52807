// Package sqlite provides an embedded SQLite document store. Each document is
// one row holding its JSON body and version.
package sqlite

import (
	"assetflow/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	tenant     TEXT    NOT NULL,
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	payload    BLOB    NOT NULL,
	created_at TEXT    NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (tenant, collection, id)
)`

var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a SQLite-backed domain.DocumentStore.
type Store struct {
	db    *sql.DB
	path  string
	nowFn func() time.Time
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "assetflow.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db, path: path, nowFn: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func validateScope(tenant string, collection domain.Collection) error {
	if tenant == "" {
		return domain.ErrMissingTenant
	}
	if collection == "" {
		return fmt.Errorf("collection required")
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanDocument(row *sql.Row, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	var (
		version          int64
		payload          []byte
		created, updated string
	)
	if err := row.Scan(&version, &payload, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, domain.NotFoundError{Collection: collection, ID: id}
		}
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}
	return decode(tenant, collection, id, version, payload, created, updated)
}

func decode(tenant string, collection domain.Collection, id string, version int64, payload []byte, created, updated string) (domain.Document, error) {
	fields := domain.Fields{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.Document{}, fmt.Errorf("decode %s %s: %w", collection, id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return domain.Document{
		ID:         id,
		Tenant:     tenant,
		Collection: collection,
		Version:    version,
		Fields:     fields,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func get(ctx context.Context, q querier, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	row := q.QueryRowContext(ctx,
		`SELECT version, payload, created_at, updated_at FROM documents WHERE tenant = ? AND collection = ? AND id = ?`,
		tenant, string(collection), id)
	return scanDocument(row, tenant, collection, id)
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	return get(ctx, s.db, tenant, collection, id)
}

// List pushes string equality filters into SQL and evaluates the full query
// over the candidates in process.
func (s *Store) List(ctx context.Context, tenant string, collection domain.Collection, q domain.Query) ([]domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return nil, err
	}
	stmt := `SELECT id, version, payload, created_at, updated_at FROM documents WHERE tenant = ? AND collection = ?`
	args := []any{tenant, string(collection)}
	for _, f := range q.EqualityFilters() {
		value, ok := stringValue(f.Value)
		if !ok || !fieldName.MatchString(f.Field) {
			continue
		}
		stmt += ` AND json_extract(payload, ?) = ?`
		args = append(args, "$."+f.Field, value)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []domain.Document
	for rows.Next() {
		var (
			id               string
			version          int64
			payload          []byte
			created, updated string
		)
		if err := rows.Scan(&id, &version, &payload, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := decode(tenant, collection, id, version, payload, created, updated)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.Apply(candidates)
}

// stringValue accepts strings and named string types such as
// domain.RequestStatus.
func stringValue(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields) (domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	normalized, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := s.nowFn()
	stamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE tenant = ? AND collection = ? AND id = ?`, tenant, string(collection), id).Scan(&exists)
	if err == nil {
		return domain.Document{}, fmt.Errorf("%s %s already exists", collection, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("check existing: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(tenant, collection, id, version, payload, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		tenant, string(collection), id, 1, payload, stamp, stamp); err != nil {
		return domain.Document{}, fmt.Errorf("insert %s %s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		ID:         id,
		Tenant:     tenant,
		Collection: collection,
		Version:    1,
		Fields:     normalized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update merges fields inside a SQL transaction. The UPDATE is guarded by the
// version read in the same transaction.
func (s *Store) Update(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields, cond domain.Precondition) (domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	normalized, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := get(ctx, tx, tenant, collection, id)
	if err != nil {
		return domain.Document{}, err
	}
	if cond.Version != 0 && cond.Version != current.Version {
		return domain.Document{}, fmt.Errorf("%s %s at version %d, expected %d: %w", collection, id, current.Version, cond.Version, domain.ErrVersionConflict)
	}
	for field, v := range normalized {
		current.Fields[field] = v
	}
	payload, err := json.Marshal(current.Fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	now := s.nowFn()
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET payload = ?, version = version + 1, updated_at = ? WHERE tenant = ? AND collection = ? AND id = ? AND version = ?`,
		payload, now.Format(time.RFC3339Nano), tenant, string(collection), id, current.Version)
	if err != nil {
		return domain.Document{}, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Document{}, err
	} else if n == 0 {
		return domain.Document{}, fmt.Errorf("%s %s changed concurrently: %w", collection, id, domain.ErrVersionConflict)
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	current.Version++
	current.UpdatedAt = now
	return current, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, tenant string, collection domain.Collection, id string) error {
	if err := validateScope(tenant, collection); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE tenant = ? AND collection = ? AND id = ?`, tenant, string(collection), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}
