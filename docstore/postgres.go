package docstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore keeps documents in a JSONB column. Set merges top-level keys
// with the jsonb || operator.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the documents table.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, fields map[string]any) error {
	if err := validPath(path); err != nil {
		return err
	}
	body, err := json.Marshal(compact(fields))
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, body)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (path) DO UPDATE SET
			body = documents.body || EXCLUDED.body, updated_at = NOW()
	`, path, parent(path), string(body))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return body, nil
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT path, body, updated_at FROM documents
		WHERE collection = $1 ORDER BY path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var raw []byte
		if err := rows.Scan(&doc.Path, &raw, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal(raw, &doc.Body); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.Path, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
