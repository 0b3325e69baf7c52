package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorage implements Client on a Google Cloud Storage bucket.
type GCSStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
}

// NewGCSStorage connects to bucket. credentialsFile may be empty to use
// application default credentials.
func NewGCSStorage(ctx context.Context, bucket, credentialsFile string) (*GCSStorage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func (s *GCSStorage) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	w := s.bucket.Object(p).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", p, err)
	}
	return s.URL(p), nil
}

func (s *GCSStorage) Get(ctx context.Context, p string) ([]byte, error) {
	r, err := s.bucket.Object(p).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", p, err)
	}
	return data, nil
}

func (s *GCSStorage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.bucket.Object(p).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return true, nil
}

func (s *GCSStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var objects []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		objects = append(objects, Object{Path: attrs.Name, Size: attrs.Size, URL: s.URL(attrs.Name)})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

// URL returns the public object URL.
func (s *GCSStorage) URL(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.name, strings.Join(segments, "/"))
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}
