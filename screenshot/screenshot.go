// Package screenshot captures case-study pages, compresses the images and
// uploads them at a deterministic path, reusing the stored object when the
// content is unchanged.
package screenshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/storage"
)

const (
	DefaultMaxBytes = 3 * 1024 * 1024
	DefaultMaxWidth = 1920

	timestampLayout = "20060102_150405"
)

// Capturer takes a raw screenshot of a page.
type Capturer interface {
	Capture(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configures a Service.
type Options struct {
	MaxBytes int
	MaxWidth int
	// HashCacheSize bounds the number of remembered object hashes.
	HashCacheSize int
	HashCacheTTL  time.Duration
}

// Shot is an uploaded screenshot.
type Shot struct {
	Path   string
	URL    string
	Data   []byte
	Hash   string
	Reused bool
}

// Service captures and stores screenshots.
type Service struct {
	capturer Capturer
	store    storage.Client
	opts     Options
	locks    *pathLocks
	hashes   *expirable.LRU[string, string]
}

// NewService creates a Service.
func NewService(capturer Capturer, store storage.Client, opts Options) *Service {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.HashCacheSize <= 0 {
		opts.HashCacheSize = 1024
	}
	if opts.HashCacheTTL <= 0 {
		opts.HashCacheTTL = time.Hour
	}
	return &Service{
		capturer: capturer,
		store:    store,
		opts:     opts,
		locks:    newPathLocks(),
		hashes:   expirable.NewLRU[string, string](opts.HashCacheSize, nil, opts.HashCacheTTL),
	}
}

// Path is where the screenshot of pageURL for a job is stored. The slug
// carries a hash of the full URL, so pages sharing a long prefix get their
// own objects. The job's creation time keeps the path stable across retries
// of the same job.
func Path(jobID, pageURL string, jobCreated time.Time) string {
	name := fmt.Sprintf("%s_%s.jpg", models.SafeURLSlug(pageURL), jobCreated.UTC().Format(timestampLayout))
	return storage.Join(jobID, "screenshots", name)
}

// Take captures pageURL, compresses it and stores it.
func (s *Service) Take(ctx context.Context, jobID, pageURL string, jobCreated time.Time) (*Shot, error) {
	raw, err := s.capturer.Capture(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	data, quality, err := Compress(raw, s.opts.MaxBytes, s.opts.MaxWidth)
	if err != nil {
		return nil, err
	}
	slog.Debug("screenshot compressed", "url", pageURL, "raw_bytes", len(raw), "bytes", len(data), "quality", quality)
	return s.Store(ctx, Path(jobID, pageURL, jobCreated), data)
}

// Store uploads data at path unless an identical object is already there.
// Writers to the same path are serialized.
func (s *Service) Store(ctx context.Context, path string, data []byte) (*Shot, error) {
	unlock := s.locks.lock(path)
	defer unlock()

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.existingHash(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing == hash {
		slog.Debug("screenshot unchanged, reusing stored copy", "path", path)
		return &Shot{Path: path, URL: s.store.URL(path), Data: data, Hash: hash, Reused: true}, nil
	}

	u, err := s.store.Put(ctx, path, data, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("upload screenshot: %w", err)
	}
	s.hashes.Add(path, hash)
	return &Shot{Path: path, URL: u, Data: data, Hash: hash}, nil
}

// existingHash returns the hash of the object at path, or "" when there is
// none.
func (s *Service) existingHash(ctx context.Context, path string) (string, error) {
	if hash, ok := s.hashes.Get(path); ok {
		return hash, nil
	}
	old, err := s.store.Get(ctx, path)
	if errors.Is(err, storage.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read stored screenshot: %w", err)
	}
	sum := sha256.Sum256(old)
	hash := hex.EncodeToString(sum[:])
	s.hashes.Add(path, hash)
	return hash, nil
}

// pathLocks hands out one mutex per path and forgets it once unused.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}
