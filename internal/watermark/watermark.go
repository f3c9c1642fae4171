// Package watermark renders the public preview of a listing: the original
// image re-encoded as JPEG with a diagonal text mark tiled across it.
package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

var (
	ErrDecode   = errors.New("failed to decode image")
	ErrTooLarge = errors.New("image dimensions exceed limit")
)

const (
	DefaultQuality   = 70
	DefaultMaxPixels = 40_000_000

	// angle of the mark, negative is counter-clockwise on screen
	angle = -30 * math.Pi / 180
)

var markColor = color.NRGBA{R: 255, G: 255, B: 255, A: 96}

type Options struct {
	Text        string
	Quality     int
	MaxPixels   int
	Concurrency int64 // images rendered at once, 0 means 2
}

// Watermarker is safe for concurrent use. Output depends only on the input
// bytes and the configured text and quality.
type Watermarker struct {
	text      string
	quality   int
	maxPixels int
	sem       *semaphore.Weighted
}

func New(opts Options) *Watermarker {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &Watermarker{
		text:      opts.Text,
		quality:   opts.Quality,
		maxPixels: opts.MaxPixels,
		sem:       semaphore.NewWeighted(opts.Concurrency),
	}
}

func (w *Watermarker) Text() string {
	return w.text
}

// Apply returns the watermarked JPEG preview of original.
func (w *Watermarker) Apply(ctx context.Context, original []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if cfg.Width*cfg.Height > w.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)

	src, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	w.tile(canvas)

	var buf bytes.Buffer
	err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: w.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// tile stamps the mark on a staggered grid whose pitch is a quarter of the
// image width, overshooting the edges so no border strip is left clean.
func (w *Watermarker) tile(dst *image.RGBA) {
	if w.text == "" {
		return
	}
	stamp := renderStamp(w.text)
	sw, sh := float64(stamp.Bounds().Dx()), float64(stamp.Bounds().Dy())

	width, height := dst.Bounds().Dx(), dst.Bounds().Dy()
	spacing := max(width/4, 32)
	scale := 0.8 * float64(spacing) / sw

	sin, cos := math.Sincos(angle)
	a, b := scale*cos, -scale*sin
	d, e := scale*sin, scale*cos

	row := 0
	for y := -spacing; y <= height+spacing; y += spacing / 2 {
		offset := 0
		if row%2 == 1 {
			offset = spacing / 2
		}
		for x := -spacing + offset; x <= width+spacing; x += spacing {
			cx, cy := float64(x), float64(y)
			m := f64.Aff3{
				a, b, cx - a*sw/2 - b*sh/2,
				d, e, cy - d*sw/2 - e*sh/2,
			}
			draw.ApproxBiLinear.Transform(dst, m, stamp, stamp.Bounds(), draw.Over, nil)
		}
		row++
	}
}

func renderStamp(text string) *image.NRGBA {
	face := basicfont.Face7x13
	const pad = 4

	textWidth := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	stamp := image.NewNRGBA(image.Rect(0, 0, textWidth+2*pad, textHeight+2*pad))
	drawer := font.Drawer{
		Dst:  stamp,
		Src:  image.NewUniform(markColor),
		Face: face,
		Dot:  fixed.P(pad, pad+metrics.Ascent.Ceil()),
	}
	drawer.DrawString(text)
	return stamp
}
