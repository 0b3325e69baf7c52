package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage is an in-process Client used by tests and dry runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    map[string]int
	BaseURL string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		puts:    make(map[string]int),
		BaseURL: "memory://",
	}
}

func (s *MemoryStorage) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[p] = buf
	s.puts[p]++
	s.mu.Unlock()
	return s.URL(p), nil
}

func (s *MemoryStorage) Get(ctx context.Context, p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[p]
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStorage) Exists(ctx context.Context, p string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[p]
	return ok, nil
}

func (s *MemoryStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var objects []Object
	for p, data := range s.objects {
		if strings.HasPrefix(p, prefix) {
			objects = append(objects, Object{Path: p, Size: int64(len(data)), URL: s.URL(p)})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

func (s *MemoryStorage) URL(p string) string {
	return s.BaseURL + p
}

// Puts returns how many times an object was written at p.
func (s *MemoryStorage) Puts(p string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts[p]
}
