package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage implements Client on the local filesystem. Objects are
// served by the HTTP server under BaseURL.
type LocalStorage struct {
	BaseDir string
	BaseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", baseDir, err)
	}
	return &LocalStorage{BaseDir: baseDir, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStorage) fullPath(p string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return filepath.Join(s.BaseDir, clean), nil
}

// Put writes the object, creating parent directories as needed.
func (s *LocalStorage) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	// Write then rename so readers never see a partial object.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return s.URL(p), nil
}

func (s *LocalStorage) Get(ctx context.Context, p string) ([]byte, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

func (s *LocalStorage) Exists(ctx context.Context, p string) (bool, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(s.BaseDir, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(full, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.BaseDir, full)
		if err != nil {
			return err
		}
		p := filepath.ToSlash(rel)
		if !strings.HasPrefix(p, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Path: p, Size: info.Size(), URL: s.URL(p)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

func (s *LocalStorage) URL(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.BaseURL + "/" + strings.Join(segments, "/")
}
