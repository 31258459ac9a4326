package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/timmy/assetlens/internal/domain"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeCompositesAlphaOntoWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})     // fully transparent
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 128}) // half red

	img, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if img.Format != "png" {
		t.Errorf("expected format png, got %q", img.Format)
	}

	got := img.Pixels.RGBAAt(0, 0)
	if got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("expected transparent pixel to become white, got %+v", got)
	}

	blended := img.Pixels.RGBAAt(1, 0)
	if blended.A != 255 {
		t.Errorf("expected opaque output, got alpha %d", blended.A)
	}
	if blended.R != 255 || blended.G < 120 || blended.G > 135 {
		t.Errorf("expected red blended with white, got %+v", blended)
	}
}

func TestDecodeConvertsGrayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 3))
	src.SetGray(1, 1, color.Gray{Y: 100})

	img, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	px := img.Pixels.RGBAAt(1, 1)
	if px.R != 100 || px.G != 100 || px.B != 100 || px.A != 255 {
		t.Errorf("expected gray 100 as RGB, got %+v", px)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": encodePNG(t, image.NewRGBA(image.Rect(0, 0, 8, 8)))[:20],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			if !errors.Is(err, domain.ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"landscape downscale", 1024, 512, 512, 512, 256},
		{"portrait downscale", 300, 900, 300, 100, 300},
		{"never upscale", 100, 50, 512, 100, 50},
		{"unbounded", 4000, 3000, 0, 4000, 3000},
		{"extreme aspect keeps one pixel", 5000, 2, 100, 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Fit(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.maxDim)
			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
		})
	}
}

func TestPrepareProducesJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 800, 600))
	data, err := Prepare(src, 400, 85)
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("expected 400x300, got %dx%d", b.Dx(), b.Dy())
	}
}
