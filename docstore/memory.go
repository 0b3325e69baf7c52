package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same shallow merge semantics as
// the SQL stores.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Set(ctx context.Context, path string, fields map[string]any) error {
	if err := validPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		doc = Document{Path: path, Body: make(map[string]any)}
	}
	for k, v := range compact(fields) {
		doc.Body[k] = v
	}
	doc.UpdatedAt = time.Now()
	s.docs[path] = doc
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBody(doc.Body), nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []Document
	for path, doc := range s.docs {
		if parent(path) == collection {
			docs = append(docs, Document{Path: path, Body: copyBody(doc.Body), UpdatedAt: doc.UpdatedAt})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (s *MemoryStore) Close() error { return nil }

func copyBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}
