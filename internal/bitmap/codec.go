package bitmap

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Decode reads an image and reports its detected format.
func Decode(r io.Reader) (image.Image, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Unknown, fmt.Errorf("failed to read image: %w", err)
	}

	format, err := DetectFormat(bytes.NewReader(data))
	if err != nil {
		return nil, Unknown, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return img, format, nil
}

// Encode writes img to w in the given format.
// Quality only affects JPEG; values outside 1..100 fall back to DefaultQuality.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	if IsEmpty(img) {
		return ErrEmptyImage
	}

	f, ok := format.imaging()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	if err := imaging.Encode(w, img, f, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}

	return nil
}

// IsEmpty reports whether img is nil or has no pixels.
func IsEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}
