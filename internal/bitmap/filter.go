package bitmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

var (
	// ErrUnknownFilter is returned for filter ids that are not registered.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrFilterArgs is returned when a filter receives the wrong number of parameters.
	ErrFilterArgs = errors.New("invalid filter arguments")
)

// Filter identifies a named pixel filter.
type Filter string

const (
	Brightness    Filter = "brightness"
	Contrast      Filter = "contrast"
	Grayscale     Filter = "grayscale"
	Negate        Filter = "negate"
	Colorize      Filter = "colorize"
	EdgeDetect    Filter = "edgedetect"
	Emboss        Filter = "emboss"
	GaussianBlur  Filter = "gaussian_blur"
	SelectiveBlur Filter = "selective_blur"
	MeanRemoval   Filter = "mean_removal"
	Smooth        Filter = "smooth"
	Pixelate      Filter = "pixelate"
)

type filterFunc func(img image.Image, p []float64) image.Image

type filterSpec struct {
	min, max int
	apply    filterFunc
}

var filters = map[Filter]filterSpec{
	Brightness:    {1, 1, brightness},
	Contrast:      {1, 1, contrast},
	Grayscale:     {0, 0, func(img image.Image, _ []float64) image.Image { return imaging.Grayscale(img) }},
	Negate:        {0, 0, func(img image.Image, _ []float64) image.Image { return effect.Invert(img) }},
	Colorize:      {3, 4, colorize},
	EdgeDetect:    {0, 0, func(img image.Image, _ []float64) image.Image { return effect.EdgeDetection(img, 1) }},
	Emboss:        {0, 0, func(img image.Image, _ []float64) image.Image { return effect.Emboss(img) }},
	GaussianBlur:  {0, 0, func(img image.Image, _ []float64) image.Image { return blur.Gaussian(img, 1) }},
	SelectiveBlur: {0, 0, func(img image.Image, _ []float64) image.Image { return effect.Median(img, 1) }},
	MeanRemoval:   {0, 0, meanRemoval},
	Smooth:        {1, 1, smooth},
	Pixelate:      {1, 2, pixelate},
}

// Filters returns the known filter ids in sorted order.
func Filters() []Filter {
	out := make([]Filter, 0, len(filters))
	for f := range filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// Arity returns the accepted parameter count range for f.
func Arity(f Filter) (lo, hi int, ok bool) {
	def, ok := filters[f]
	return def.min, def.max, ok
}

// ApplyFilter runs filter f with params over img and returns a new bitmap.
func ApplyFilter(img image.Image, f Filter, params ...float64) (image.Image, error) {
	def, ok := filters[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, f)
	}

	if len(params) < def.min || len(params) > def.max {
		return nil, fmt.Errorf("%w: %s takes %d..%d parameters, got %d",
			ErrFilterArgs, f, def.min, def.max, len(params))
	}

	if IsEmpty(img) {
		return nil, ErrEmptyImage
	}

	return def.apply(img, params), nil
}

// brightness shifts every channel by level (-255..255).
func brightness(img image.Image, p []float64) image.Image {
	level := int(p[0])

	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: channel(int(c.R) + level),
			G: channel(int(c.G) + level),
			B: channel(int(c.B) + level),
			A: c.A,
		}
	})
}

// contrast takes a level in -100..100 where negative values increase contrast.
func contrast(img image.Image, p []float64) image.Image {
	return adjust.Contrast(img, -p[0]/100)
}

// colorize adds r,g,b (and optionally alpha on the 0..127 scale) to every pixel.
func colorize(img image.Image, p []float64) image.Image {
	r, g, b := int(p[0]), int(p[1]), int(p[2])

	da := 0
	if len(p) == 4 {
		da = int(p[3]) * 255 / MaxAlpha
	}

	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: channel(int(c.R) + r),
			G: channel(int(c.G) + g),
			B: channel(int(c.B) + b),
			A: channel(int(c.A) - da),
		}
	})
}

func meanRemoval(img image.Image, _ []float64) image.Image {
	return imaging.Convolve3x3(img, [9]float64{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1,
	}, nil)
}

// smooth applies a weighted 3x3 average with level as the centre weight.
func smooth(img image.Image, p []float64) image.Image {
	return imaging.Convolve3x3(img, [9]float64{
		1, 1, 1,
		1, p[0], 1,
		1, 1, 1,
	}, &imaging.ConvolveOptions{Normalize: true})
}

// pixelate replaces each block of size p[0] with a single colour. When the
// optional second parameter is non-zero the block average is used, otherwise
// a sampled pixel.
func pixelate(img image.Image, p []float64) image.Image {
	size := int(p[0])
	if size <= 1 {
		return imaging.Clone(img)
	}

	advanced := len(p) == 2 && p[1] != 0

	b := img.Bounds()
	w := (b.Dx() + size - 1) / size
	h := (b.Dy() + size - 1) / size

	filter := imaging.NearestNeighbor
	if advanced {
		filter = imaging.Box
	}

	small := imaging.Resize(img, w, h, filter)

	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}

func channel(v int) uint8 {
	return uint8(clamp(v, 0, 255))
}
