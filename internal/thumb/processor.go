package thumb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
)

// DefaultMaxPixels is the largest bitmap area an operation may create
// unless configured otherwise.
const DefaultMaxPixels = 64 << 20

// imageStore defines the file access the processor needs.
type imageStore interface {
	Open(path string) (io.ReadCloser, error)
	Save(path string, src io.Reader) error
}

// Processor executes an operation queue against a single bitmap.
//
// A processor goes through Load, any number of Apply calls and a final
// Encode or Save, after which the bitmap is released. It is not safe for
// concurrent use.
type Processor struct {
	// Quality is the JPEG output quality. The quality operation changes it
	// mid-queue.
	Quality int

	// MaxPixels bounds the area of every bitmap an operation may create.
	// Zero or less disables the check.
	MaxPixels int

	// Lenient makes Load keep going on undecodable content. The bitmap
	// stays empty and any operation or finalize reports ErrInvalidImage.
	Lenient bool

	store    imageStore
	registry *Registry

	source  string
	format  bitmap.Format
	img     image.Image
	loadErr error
}

// NewProcessor creates a new Processor reading and writing through store
// and dispatching operations through reg.
func NewProcessor(store imageStore, reg *Registry) *Processor {
	if reg == nil {
		reg = DefaultRegistry()
	}

	return &Processor{
		Quality:   bitmap.DefaultQuality,
		MaxPixels: DefaultMaxPixels,
		store:     store,
		registry:  reg,
	}
}

// Load reads and decodes the source image at path.
func (p *Processor) Load(path string) error {
	img, format, err := p.decode(path)
	p.source = path
	p.format = format

	if err != nil {
		if p.Lenient && errors.Is(err, ErrInvalidImage) {
			p.img = nil
			p.loadErr = err
			return nil
		}
		return err
	}

	p.img = img
	p.loadErr = nil

	return nil
}

// OpenImage decodes an auxiliary image (e.g. an overlay) through the same
// store. Its lifetime is the caller's concern.
func (p *Processor) OpenImage(path string) (image.Image, error) {
	img, _, err := p.decode(path)
	return img, err
}

func (p *Processor) decode(path string) (image.Image, bitmap.Format, error) {
	r, err := p.store.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, bitmap.Unknown, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, bitmap.Unknown, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer r.Close()

	img, format, err := bitmap.Decode(r)
	if err != nil {
		if errors.Is(err, bitmap.ErrUnsupportedFormat) {
			return nil, format, fmt.Errorf("%s: %w", path, err)
		}
		return nil, format, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}

	return img, format, nil
}

// Source returns the path passed to Load.
func (p *Processor) Source() string {
	return p.source
}

// Format returns the format detected at load time.
func (p *Processor) Format() bitmap.Format {
	return p.format
}

// Image returns the current bitmap. It fails with ErrInvalidImage when no
// bitmap is held.
func (p *Processor) Image() (image.Image, error) {
	if p.img == nil {
		if p.loadErr != nil {
			return nil, p.loadErr
		}
		return nil, fmt.Errorf("%w: no image loaded", ErrInvalidImage)
	}

	return p.img, nil
}

// Replace makes img the current bitmap and drops the superseded one.
func (p *Processor) Replace(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil replacement", ErrInvalidImage)
	}

	p.img = img

	return nil
}

// Release drops the current bitmap.
func (p *Processor) Release() {
	p.img = nil
}

// Apply replays q in order. It stops at the first failing operation.
func (p *Processor) Apply(ctx context.Context, q Queue) error {
	for _, op := range q {
		if err := ctx.Err(); err != nil {
			return err
		}

		h, ok := p.registry.Lookup(op.Name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOperation, op.Name)
		}

		if err := p.apply(h, op); err != nil {
			return err
		}
	}

	return nil
}

// apply runs one handler. A panicking handler fails the operation instead
// of the caller.
func (p *Processor) apply(h Handler, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrPluginFailed, op.Name, r)
		}
	}()

	if err := h.Apply(p, op.Args); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPluginFailed, op.Name, err)
	}

	return nil
}

// checkSize fails with ErrInvalidArgument when a w x h bitmap would
// exceed MaxPixels.
func (p *Processor) checkSize(op string, w, h int) error {
	limit := p.MaxPixels
	if limit <= 0 {
		return nil
	}

	if w > limit || h > limit || int64(w)*int64(h) > int64(limit) {
		return fmt.Errorf("%w: %s: %dx%d exceeds the %d pixel limit", ErrInvalidArgument, op, w, h, limit)
	}

	return nil
}

// Encode writes the current bitmap to w. An Unknown format means the
// detected source format, or JPEG when detection failed. The bitmap is
// released whatever the outcome.
func (p *Processor) Encode(w io.Writer, format bitmap.Format) error {
	defer p.Release()

	img, err := p.Image()
	if err != nil {
		return err
	}

	if bitmap.IsEmpty(img) {
		return fmt.Errorf("%w: empty bitmap", ErrInvalidImage)
	}

	if err := bitmap.Encode(w, img, p.outputFormat(format), p.Quality); err != nil {
		if errors.Is(err, bitmap.ErrUnsupportedFormat) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

// Save encodes the current bitmap and writes it atomically to path,
// creating parent directories.
func (p *Processor) Save(path string, format bitmap.Format) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf, format); err != nil {
		return err
	}

	if err := p.store.Save(path, &buf); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

func (p *Processor) outputFormat(format bitmap.Format) bitmap.Format {
	if format != bitmap.Unknown {
		return format
	}
	if p.format != bitmap.Unknown {
		return p.format
	}
	return bitmap.JPEG
}
