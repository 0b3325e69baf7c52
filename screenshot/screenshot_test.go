package screenshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int, noisy bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{uint8(x), uint8(y), 128, 255}
			if noisy {
				c = color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeCapturer struct {
	data []byte
	err  error
}

func (f fakeCapturer) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	return f.data, f.err
}

type pageCapturer map[string][]byte

func (p pageCapturer) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	return p[rawURL], nil
}

func TestCompressProducesJPEGUnderLimit(t *testing.T) {
	raw := testPNG(t, 200, 200, false)
	out, quality, err := Compress(raw, DefaultMaxBytes, DefaultMaxWidth)
	require.NoError(t, err)
	assert.Equal(t, 95, quality)
	assert.Less(t, len(out), DefaultMaxBytes)

	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestCompressLowersQualityUntilFloor(t *testing.T) {
	raw := testPNG(t, 300, 300, true)
	// An unreachable target walks the whole quality ladder.
	out, quality, err := Compress(raw, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 25, quality)
	assert.NotEmpty(t, out)

	high, _, err := Compress(raw, 1<<30, 0)
	require.NoError(t, err)
	assert.Less(t, len(out), len(high))
}

func TestCompressDownscalesWideImages(t *testing.T) {
	raw := testPNG(t, 400, 100, false)
	out, _, err := Compress(raw, DefaultMaxBytes, 200)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestCompressRejectsGarbage(t *testing.T) {
	_, _, err := Compress([]byte("not an image"), DefaultMaxBytes, 0)
	assert.Error(t, err)
}

func TestPathIsDeterministic(t *testing.T) {
	created := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	p := Path("job-1", "https://jane.dev/work/checkout", created)
	assert.Equal(t, "job-1/screenshots/jane.dev_work_checkout_"+models.URLHash("https://jane.dev/work/checkout")+"_20240501_130405.jpg", p)
	assert.Equal(t, p, Path("job-1", "https://jane.dev/work/checkout", created))
}

func TestTakeKeepsSamePrefixPagesApart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	one := "https://myportfolio.designer-name.com/case-studies/project-one"
	two := "https://myportfolio.designer-name.com/case-studies/project-two"
	s := NewService(pageCapturer{
		one: testPNG(t, 64, 64, false),
		two: testPNG(t, 64, 64, true),
	}, store, Options{})

	require.NotEqual(t, Path("job", one, created), Path("job", two, created))

	first, err := s.Take(ctx, "job", one, created)
	require.NoError(t, err)
	second, err := s.Take(ctx, "job", two, created)
	require.NoError(t, err)
	assert.NotEqual(t, first.URL, second.URL)

	data, err := store.Get(ctx, first.Path)
	require.NoError(t, err)
	assert.Equal(t, first.Data, data)
	assert.NotEqual(t, second.Data, data)

	objects, err := store.List(ctx, "job/screenshots/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestTakeDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	raw := testPNG(t, 64, 64, false)
	created := time.Now()

	s := NewService(fakeCapturer{data: raw}, store, Options{})
	first, err := s.Take(ctx, "job-1", "https://jane.dev/a", created)
	require.NoError(t, err)
	assert.False(t, first.Reused)

	// A fresh service has an empty hash cache and must compare against the
	// stored object.
	s2 := NewService(fakeCapturer{data: raw}, store, Options{})
	second, err := s2.Take(ctx, "job-1", "https://jane.dev/a", created)
	require.NoError(t, err)
	assert.True(t, second.Reused)

	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, 1, store.Puts(first.Path))
	objects, err := store.List(ctx, "job-1/screenshots/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestStoreReplacesChangedContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	s := NewService(nil, store, Options{})

	_, err := s.Store(ctx, "j/screenshots/a.jpg", []byte("one"))
	require.NoError(t, err)
	shot, err := s.Store(ctx, "j/screenshots/a.jpg", []byte("two"))
	require.NoError(t, err)
	assert.False(t, shot.Reused)

	data, err := store.Get(ctx, "j/screenshots/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, 2, store.Puts("j/screenshots/a.jpg"))
}

func TestConcurrentStoresOfSameContentUploadOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	s := NewService(nil, store, Options{})

	var wg sync.WaitGroup
	urls := make([]string, 8)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			shot, err := s.Store(ctx, "j/screenshots/same.jpg", []byte("same"))
			if assert.NoError(t, err) {
				urls[i] = shot.URL
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Puts("j/screenshots/same.jpg"))
	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}
	assert.Empty(t, s.locks.locks)
}

func TestTakeCaptureError(t *testing.T) {
	s := NewService(fakeCapturer{err: errors.New("boom")}, storage.NewMemoryStorage(), Options{})
	_, err := s.Take(context.Background(), "j", "https://a.dev", time.Now())
	assert.EqualError(t, err, "boom")
}
