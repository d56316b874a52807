// Package postgres provides a PostgreSQL document store. Bodies live in a
// JSONB column; partial updates merge server side and are guarded by the
// row version.
package postgres

import (
	"assetflow/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

const defaultDSN = "postgres://localhost/assetflow?sslmode=disable"

const schema = `CREATE TABLE IF NOT EXISTS documents (
	tenant     TEXT        NOT NULL,
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	version    BIGINT      NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant, collection, id)
)`

// Store is a Postgres-backed domain.DocumentStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn (falls back to defaultDSN) and ensures the
// documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the connection pool for integration testing hooks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanDocument(row pgx.Row, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	var (
		version          int64
		payload          []byte
		created, updated time.Time
	)
	if err := row.Scan(&version, &payload, &created, &updated); err != nil {
		return domain.Document{}, err
	}
	fields := domain.Fields{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.Document{}, fmt.Errorf("decode %s %s: %w", collection, id, err)
	}
	return domain.Document{
		ID:         id,
		Tenant:     tenant,
		Collection: collection,
		Version:    version,
		Fields:     fields,
		CreatedAt:  created.UTC(),
		UpdatedAt:  updated.UTC(),
	}, nil
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, tenant string, collection domain.Collection, id string) (domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT version, payload, created_at, updated_at FROM documents WHERE tenant = $1 AND collection = $2 AND id = $3`,
		tenant, string(collection), id)
	doc, err := scanDocument(row, tenant, collection, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, domain.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return doc, nil
}

// List pushes equality and containment filters down as JSONB containment
// and evaluates the full query over the candidates.
func (s *Store) List(ctx context.Context, tenant string, collection domain.Collection, q domain.Query) ([]domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return nil, err
	}
	stmt := `SELECT id, version, payload, created_at, updated_at FROM documents WHERE tenant = $1 AND collection = $2`
	args := []any{tenant, string(collection)}
	for _, f := range q.Filters {
		var probe domain.Fields
		switch f.Op {
		case domain.OpEq:
			probe = domain.Fields{f.Field: f.Value}
		case domain.OpContains:
			probe = domain.Fields{f.Field: []any{f.Value}}
		default:
			continue
		}
		raw, err := json.Marshal(probe)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, string(raw))
		stmt += fmt.Sprintf(` AND payload @> $%d::jsonb`, len(args))
	}
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Document
	for rows.Next() {
		var id string
		var (
			version          int64
			payload          []byte
			created, updated time.Time
		)
		if err := rows.Scan(&id, &version, &payload, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		fields := domain.Fields{}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", collection, id, err)
		}
		candidates = append(candidates, domain.Document{
			ID: id, Tenant: tenant, Collection: collection, Version: version,
			Fields: fields, CreatedAt: created.UTC(), UpdatedAt: updated.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.Apply(candidates)
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
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents(tenant, collection, id, version, payload, created_at, updated_at)
		 VALUES($1, $2, $3, 1, $4::jsonb, now(), now())
		 RETURNING version, payload, created_at, updated_at`,
		tenant, string(collection), id, string(payload))
	doc, err := scanDocument(row, tenant, collection, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Document{}, fmt.Errorf("%s %s already exists", collection, id)
		}
		return domain.Document{}, fmt.Errorf("insert %s %s: %w", collection, id, err)
	}
	return doc, nil
}

// Update merges fields with JSONB concatenation in a single statement.
func (s *Store) Update(ctx context.Context, tenant string, collection domain.Collection, id string, fields domain.Fields, cond domain.Precondition) (domain.Document, error) {
	if err := validateScope(tenant, collection); err != nil {
		return domain.Document{}, err
	}
	normalized, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	patch, err := json.Marshal(normalized)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode fields: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE documents
		    SET payload = payload || $4::jsonb, version = version + 1, updated_at = now()
		  WHERE tenant = $1 AND collection = $2 AND id = $3 AND ($5::bigint = 0 OR version = $5)
		  RETURNING version, payload, created_at, updated_at`,
		tenant, string(collection), id, string(patch), cond.Version)
	doc, err := scanDocument(row, tenant, collection, id)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	// No row matched: either the document is missing or the version moved.
	current, getErr := s.Get(ctx, tenant, collection, id)
	if getErr != nil {
		return domain.Document{}, getErr
	}
	return domain.Document{}, fmt.Errorf("%s %s at version %d, expected %d: %w", collection, id, current.Version, cond.Version, domain.ErrVersionConflict)
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, tenant string, collection domain.Collection, id string) error {
	if err := validateScope(tenant, collection); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE tenant = $1 AND collection = $2 AND id = $3`, tenant, string(collection), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}
