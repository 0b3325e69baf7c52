package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore keeps documents as JSON text. Set merges with json_patch,
// which only ever receives objects without null members.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" is
// allowed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, path string, fields map[string]any) error {
	if err := validPath(path); err != nil {
		return err
	}
	body, err := json.Marshal(compact(fields))
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, body)
		VALUES (?, ?, json(?))
		ON CONFLICT (path) DO UPDATE SET
			body = json_patch(documents.body, excluded.body),
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, path, parent(path), string(body))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return body, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, body, updated_at FROM documents
		WHERE collection = ? ORDER BY path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var raw, updated string
		if err := rows.Scan(&doc.Path, &raw, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &doc.Body); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.Path, err)
		}
		doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
