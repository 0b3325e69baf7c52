// Package storage puts and gets report artifacts by path in an object store.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotExist is returned by Get when no object is stored at a path.
var ErrNotExist = errors.New("storage: object does not exist")

// Object describes a stored blob.
type Object struct {
	Path string
	Size int64
	URL  string
}

// Client is a path-addressed blob store. Implementations must be safe for
// concurrent use.
type Client interface {
	// Put writes data at p, replacing any previous object, and returns the
	// object's URL.
	Put(ctx context.Context, p string, data []byte, contentType string) (string, error)

	// Get reads the object at p, or returns ErrNotExist.
	Get(ctx context.Context, p string) ([]byte, error)

	// Exists reports whether an object is stored at p.
	Exists(ctx context.Context, p string) (bool, error)

	// List returns every object whose path starts with prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]Object, error)

	// URL returns the URL an object at p is (or would be) served from.
	URL(p string) string
}

// Join builds an object path from its segments using forward slashes.
func Join(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}

// ContentType guesses a content type from a path's extension.
func ContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
