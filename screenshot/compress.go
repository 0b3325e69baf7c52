package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	startQuality = 95
	qualityStep  = 5
	minQuality   = 30
)

// Compress re-encodes an image as JPEG. Images wider than maxWidth are
// scaled down first. Quality starts at 95 and drops by 5 until the result
// is smaller than maxBytes or quality falls below 30.
func Compress(raw []byte, maxBytes, maxWidth int) ([]byte, int, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("decode screenshot: %w", err)
	}
	img = downscale(img, maxWidth)

	var buf bytes.Buffer
	quality := startQuality
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, 0, fmt.Errorf("encode screenshot: %w", err)
		}
		if buf.Len() < maxBytes || quality < minQuality {
			break
		}
		quality -= qualityStep
	}
	return buf.Bytes(), quality, nil
}

func downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
