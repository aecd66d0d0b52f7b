// Package thumbnail downsizes stored images for the gallery grid.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxEdge bounds the longer side of a thumbnail in pixels.
const DefaultMaxEdge = 320

// MaxPixels bounds the decoded size of a source image.
const MaxPixels = 50_000_000

var (
	// ErrUnsupported is returned for payloads the decoders do not
	// understand (SVG for example). Callers serve the original bytes instead.
	ErrUnsupported = errors.New("thumbnail: unsupported image format")
	// ErrTooLarge is returned when the source exceeds MaxPixels.
	ErrTooLarge = errors.New("thumbnail: image too large")
)

// Raster reports whether mediaType is a format browsers render as a plain
// bitmap, with no scripting.
func Raster(mediaType string) bool {
	switch mediaType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp", "image/avif", "image/x-icon", "image/vnd.microsoft.icon":
		return true
	}
	return false
}

// Result is an encoded thumbnail.
type Result struct {
	ContentType string
	Data        []byte
}

// Make scales raw image bytes so neither side exceeds maxEdge and encodes
// the result as JPEG. Images already small enough are re-encoded without
// scaling. Images above MaxPixels are refused before decoding.
func Make(payload []byte, maxEdge int) (Result, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if errors.Is(err, image.ErrFormat) {
		return Result{}, ErrUnsupported
	}
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: decode: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: decode: %w", err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; paint a white background first.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return Result{}, fmt.Errorf("thumbnail: encode: %w", err)
	}
	return Result{ContentType: "image/jpeg", Data: buf.Bytes()}, nil
}

// fit scales w x h down so the longer edge equals maxEdge, keeping the
// aspect ratio. Sizes already within bounds are returned unchanged.
func fit(w, h, maxEdge int) (int, int) {
	if w <= maxEdge && h <= maxEdge {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return maxEdge, max(h*maxEdge/w, 1)
	}
	return max(w*maxEdge/h, 1), maxEdge
}
