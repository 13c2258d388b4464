package bitmap

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// MaxAlpha is the fully transparent alpha value in the 0..127 alpha scale
// used by operation arguments.
const MaxAlpha = 127

// Background converts an r,g,b colour with an alpha in 0 (opaque) .. 127
// (transparent) to a colour usable as a canvas fill.
func Background(r, g, b, a int) color.NRGBA {
	a = clamp(a, 0, MaxAlpha)

	return color.NRGBA{
		R: uint8(clamp(r, 0, 255)),
		G: uint8(clamp(g, 0, 255)),
		B: uint8(clamp(b, 0, 255)),
		A: uint8(255 - a*255/MaxAlpha),
	}
}

// ParseHex parses "#rrggbb", "rrggbb" or "#rgb" into an opaque colour.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}

	r, g, b := c.RGB255()

	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// Canvas creates a w x h bitmap filled with bg.
// A non-positive side yields an empty bitmap.
func Canvas(w, h int, bg color.Color) *image.NRGBA {
	return imaging.New(w, h, bg)
}

// Paste copies src onto dst at pt without blending. Pixels falling outside
// dst are clipped.
func Paste(dst, src image.Image, pt image.Point) *image.NRGBA {
	return imaging.Paste(dst, src, pt)
}

// Composite draws src over dst at pt honouring src alpha.
func Composite(dst, src image.Image, pt image.Point) image.Image {
	dc := gg.NewContextForImage(dst)
	dc.DrawImage(src, pt.X, pt.Y)

	return dc.Image()
}

// Blend mixes src into dst at pt with pct percent weight (0..100).
func Blend(dst, src image.Image, pt image.Point, pct int) *image.NRGBA {
	pct = clamp(pct, 0, 100)

	return imaging.Overlay(dst, src, pt, float64(pct)/100)
}

// Scale resamples img to exactly w x h.
func Scale(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// SubImage returns a copy of the rect region of img.
func SubImage(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
