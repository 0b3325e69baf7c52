// Package docstore mirrors job state, reports and user profiles into a
// document database addressed by slash-separated paths such as
// "analysis_jobs/{jobId}/projects/{slug}".
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable is returned by every operation of a store that was not
	// configured.
	ErrUnavailable = errors.New("docstore: document store unavailable")
	// ErrNotFound is returned by Get when no document exists at a path.
	ErrNotFound = errors.New("docstore: document not found")
)

// Document is a stored document and its path.
type Document struct {
	Path      string
	Body      map[string]any
	UpdatedAt time.Time
}

// Store is a path-addressed document store. Set merges the given fields
// into the existing document instead of replacing it.
type Store interface {
	Set(ctx context.Context, path string, fields map[string]any) error
	Get(ctx context.Context, path string) (map[string]any, error)
	// List returns the documents directly inside a collection path, ordered
	// by path.
	List(ctx context.Context, collection string) ([]Document, error)
	Close() error
}

// Path joins document path segments.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// JobPath is the document holding a job's status record.
func JobPath(jobID string) string {
	return Path("analysis_jobs", jobID)
}

// parent returns the collection a document path belongs to.
func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func validPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("invalid document path %q", path)
	}
	return nil
}

// compact drops nil values so a merge never erases an existing field.
func compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// SetStruct stores v, which must marshal to a JSON object, at path.
func SetStruct(ctx context.Context, s Store, path string, v any) error {
	fields, err := ToFields(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, path, fields)
}

// ToFields converts a JSON-marshalable struct into a field map.
func ToFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	return fields, nil
}

// Decode converts a stored document into v.
func Decode(body map[string]any, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
