// Package thumb builds lazy image operation pipelines and serves their
// results through a content-addressed file cache.
//
// A Thumb records operations without running them. Save, Output and Cache
// derive a cache file name from the source path and the recorded queue; when
// that file exists the cached bytes are used, otherwise the queue is replayed
// by a Processor and the result is stored.
package thumb

import (
	"bytes"
	"io"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/geometry"
)

// fileStorage defines the file access needed by the cache gateway.
type fileStorage interface {
	Exists(path string) (bool, error)
	Open(path string) (io.ReadCloser, error)
	ReadFile(path string) ([]byte, error)
	Save(path string, src io.Reader) error
	Copy(src, dst string) error
	RemoveGlob(pattern string) (int, error)
}

// Options configures a Thumb.
type Options struct {
	// CacheDir is the directory holding cache entries.
	CacheDir string

	// Registry resolves operation names. Nil means DefaultRegistry().
	Registry *Registry

	// DefaultQuality is the JPEG quality used until a quality operation
	// changes it. Zero means bitmap.DefaultQuality.
	DefaultQuality int

	// MaxPixels bounds the area of any bitmap an operation creates.
	// Zero means DefaultMaxPixels; negative disables the limit.
	MaxPixels int
}

// Thumb is a request-scoped pipeline builder. It must not be shared
// between goroutines.
type Thumb struct {
	store     fileStorage
	registry  *Registry
	cacheDir  string
	quality   int
	maxPixels int

	source      string
	format      bitmap.Format
	cacheFormat bitmap.Format
	ops         Queue
	ignoreCache bool
}

// New creates a new Thumb.
func New(store fileStorage, opts Options) *Thumb {
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}

	quality := opts.DefaultQuality
	if quality == 0 {
		quality = bitmap.DefaultQuality
	}

	maxPixels := opts.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}

	return &Thumb{
		store:     store,
		registry:  reg,
		cacheDir:  opts.CacheDir,
		quality:   quality,
		maxPixels: maxPixels,
	}
}

// Load sets the source image and sniffs its format. It never fails:
// a missing or unreadable source surfaces when the pipeline runs.
func (t *Thumb) Load(path string) *Thumb {
	t.source = path
	t.format = bitmap.Unknown

	r, err := t.store.Open(path)
	if err != nil {
		return t
	}
	defer r.Close()

	if f, err := bitmap.DetectFormat(r); err == nil {
		t.format = f
	}

	return t
}

// Source returns the loaded source path.
func (t *Thumb) Source() string {
	return t.source
}

// Format returns the format detected at Load time.
func (t *Thumb) Format() bitmap.Format {
	return t.format
}

// Operations returns a copy of the recorded queue.
func (t *Thumb) Operations() Queue {
	return t.ops.Clone()
}

// IgnoreCache makes every render recompute and overwrite the cache entry.
func (t *Thumb) IgnoreCache(ignore bool) *Thumb {
	t.ignoreCache = ignore
	return t
}

// Append records an arbitrary operation.
func (t *Thumb) Append(op Operation) *Thumb {
	t.ops = append(t.ops, Operation{Name: op.Name, Args: append([]any(nil), op.Args...)})
	return t
}

func (t *Thumb) push(name string, args ...any) *Thumb {
	t.ops = append(t.ops, Operation{Name: name, Args: append([]any(nil), args...)})
	return t
}

// Resize scales the image into width x height. A zero width or height
// leaves that side free. With forceAspect the result is padded to exactly
// width x height using bg.
func (t *Thumb) Resize(width, height int, mode geometry.Mode, forceAspect bool, bg Background) *Thumb {
	return t.push(OpResize, append([]any{width, height, int(mode), forceAspect}, bg.args()...)...)
}

// Crop cuts a width x height region starting at (x, y). Parts of the region
// outside the image are filled with bg.
func (t *Thumb) Crop(x, y, width, height int, bg Background) *Thumb {
	return t.push(OpCrop, append([]any{x, y, width, height}, bg.args()...)...)
}

// Offset pads (or, with negative values, trims) each side of the image.
func (t *Thumb) Offset(top, right, bottom, left int, bg Background) *Thumb {
	return t.push(OpOffset, append([]any{top, right, bottom, left}, bg.args()...)...)
}

// ZoomCrop scales the image to cover width x height and crops the excess
// around gravity.
func (t *Thumb) ZoomCrop(width, height int, gravity geometry.Gravity) *Thumb {
	return t.push(OpZoomCrop, width, height, string(gravity))
}

// Quality sets the JPEG quality (1..100) for the output.
func (t *Thumb) Quality(q int) *Thumb {
	return t.push(OpQuality, q)
}

// Filter records a named pixel filter.
func (t *Thumb) Filter(f bitmap.Filter, params ...any) *Thumb {
	return t.push(OpFilter, append([]any{string(f)}, params...)...)
}

// Brightness shifts brightness by level (-255..255).
func (t *Thumb) Brightness(level int) *Thumb {
	return t.Filter(bitmap.Brightness, level)
}

// Contrast changes contrast by level (-100..100, negative is more contrast).
func (t *Thumb) Contrast(level int) *Thumb {
	return t.Filter(bitmap.Contrast, level)
}

// Grayscale removes colour.
func (t *Thumb) Grayscale() *Thumb { return t.Filter(bitmap.Grayscale) }

// Negate inverts every colour channel.
func (t *Thumb) Negate() *Thumb { return t.Filter(bitmap.Negate) }

// Colorize adds r, g, b to every pixel; alpha is on the 0..127 scale.
func (t *Thumb) Colorize(r, g, b, alpha int) *Thumb {
	return t.Filter(bitmap.Colorize, r, g, b, alpha)
}

// EdgeDetect highlights edges.
func (t *Thumb) EdgeDetect() *Thumb { return t.Filter(bitmap.EdgeDetect) }

// Emboss gives the image a raised relief look.
func (t *Thumb) Emboss() *Thumb { return t.Filter(bitmap.Emboss) }

// GaussianBlur applies a small gaussian blur.
func (t *Thumb) GaussianBlur() *Thumb { return t.Filter(bitmap.GaussianBlur) }

// SelectiveBlur smooths noise while keeping edges (median filter).
func (t *Thumb) SelectiveBlur() *Thumb { return t.Filter(bitmap.SelectiveBlur) }

// MeanRemoval sharpens with a mean removal kernel.
func (t *Thumb) MeanRemoval() *Thumb { return t.Filter(bitmap.MeanRemoval) }

// Smooth blurs with the given centre weight.
func (t *Thumb) Smooth(level int) *Thumb {
	return t.Filter(bitmap.Smooth, level)
}

// Pixelate replaces blocks of blockSize pixels with one colour.
func (t *Thumb) Pixelate(blockSize int, advanced bool) *Thumb {
	return t.Filter(bitmap.Pixelate, blockSize, advanced)
}

// Overlay alpha-composites the image at path onto the current bitmap.
func (t *Thumb) Overlay(path string, o OverlayOptions) *Thumb {
	return t.push(OpOverlay, path, o.DstX, o.DstY, o.SrcX, o.SrcY, o.DstW, o.DstH, o.SrcW, o.SrcH)
}

// Merge blends the image at path onto the current bitmap with o.Pct weight.
func (t *Thumb) Merge(path string, o MergeOptions) *Thumb {
	return t.push(OpMerge, path, o.DstX, o.DstY, o.SrcX, o.SrcY, o.SrcW, o.SrcH, o.Pct)
}

// Callback records a user transform. Only cb.ID and args take part in
// the cache key.
func (t *Thumb) Callback(cb Callback, args ...any) *Thumb {
	return t.push(OpCallback, append([]any{cb}, args...)...)
}

// Plugin records an operation handled by the handler registered as name.
func (t *Thumb) Plugin(name string, args ...any) *Thumb {
	return t.push(name, args...)
}

// Key returns the cache key of the recorded queue.
func (t *Thumb) Key() (string, error) {
	return CacheKey(t.ops)
}

// CacheFilename returns the cache path for the given output format.
// Unknown resolves like every render does.
func (t *Thumb) CacheFilename(format bitmap.Format) (string, error) {
	return CacheFilename(t.cacheDir, t.source, t.ops, t.resolveFormat(format))
}

// resolveFormat picks the explicit format, then the one made sticky by
// Cache, then the detected one, then JPEG.
func (t *Thumb) resolveFormat(format bitmap.Format) bitmap.Format {
	switch {
	case format != bitmap.Unknown:
		return format
	case t.cacheFormat != bitmap.Unknown:
		return t.cacheFormat
	case t.format != bitmap.Unknown:
		return t.format
	default:
		return bitmap.JPEG
	}
}

func (t *Thumb) newProcessor() *Processor {
	p := NewProcessor(t.store, t.registry)
	p.Quality = t.quality
	p.MaxPixels = t.maxPixels
	return p
}

func encodeBytes(p *Processor, format bitmap.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
