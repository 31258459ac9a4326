// Package imaging turns uploaded bytes into a canonical pixel buffer and
// re-encodes it for downstream model calls.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"github.com/timmy/assetlens/internal/domain"
)

const (
	// MaxPixels bounds width*height before a full decode is attempted.
	MaxPixels = 50_000_000

	// DefaultJPEGQuality is used when a caller passes quality <= 0.
	DefaultJPEGQuality = 85
)

// Image is a decoded, opaque RGB image. Alpha is always 255 in Pixels.
type Image struct {
	Pixels *image.RGBA
	Format string
}

// Width returns the image width in pixels.
func (i *Image) Width() int { return i.Pixels.Bounds().Dx() }

// Height returns the image height in pixels.
func (i *Image) Height() int { return i.Pixels.Bounds().Dy() }

// Decode parses data in any registered format (jpeg, png, gif, webp, bmp, tiff)
// and flattens it onto a white background.
// Parameters:
//   - data: raw uploaded bytes.
//
// Returns:
//   - *Image: opaque canonical image.
//   - error: wraps domain.ErrDecode on empty, oversized or unparseable input.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", domain.ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	return &Image{Pixels: Flatten(src), Format: format}, nil
}

// Flatten composites src over white and returns an opaque RGBA copy
// anchored at the origin. Grayscale, paletted and CMYK inputs come out as RGB.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// Fit scales img down so that its larger side is at most maxDim, keeping the
// aspect ratio. Images already within bounds, and maxDim <= 0, return img unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		nh = maxDim
		nw = int(float64(w) * float64(maxDim) / float64(h))
	}
	nw, nh = max(nw, 1), max(nh, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// EncodeJPEG encodes img as baseline JPEG. quality <= 0 uses DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	quality = min(quality, 100)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Prepare fits img to maxDim and encodes it as JPEG at quality.
func Prepare(img image.Image, maxDim, quality int) ([]byte, error) {
	return EncodeJPEG(Fit(img, maxDim), quality)
}
