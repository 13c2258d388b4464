// Package bitmap wraps the raster primitives used by the thumbnail pipeline:
// format detection, decoding, encoding, canvases, compositing and filters.
package bitmap

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	// ErrDecode is returned when content cannot be decoded as an image.
	ErrDecode = errors.New("cannot decode image")

	// ErrUnsupportedFormat is returned for formats outside JPEG, PNG and GIF.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrEmptyImage is returned when encoding a nil or zero-area bitmap.
	ErrEmptyImage = errors.New("empty image")
)

// Format is an output/input image format.
type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
	GIF
)

// String returns the lower-case format name.
func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	case GIF:
		return "gif"
	default:
		return "unknown"
	}
}

// Extension returns the cache file extension including the leading dot.
// Unknown formats have no extension.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case GIF:
		return ".gif"
	default:
		return ""
	}
}

// MimeType returns the content type used when serving the format.
func (f Format) MimeType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat maps a name or extension ("jpg", ".png", "image/gif") to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	s = strings.TrimPrefix(s, "image/")

	switch s {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) imaging() (imaging.Format, bool) {
	switch f {
	case JPEG:
		return imaging.JPEG, true
	case PNG:
		return imaging.PNG, true
	case GIF:
		return imaging.GIF, true
	default:
		return 0, false
	}
}

// DetectFormat sniffs the format from the stream header.
// Only the content is inspected, never a file name.
func DetectFormat(r io.Reader) (Format, error) {
	_, name, err := image.DecodeConfig(r)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	f, err := ParseFormat(name)
	if err != nil {
		return Unknown, err
	}

	return f, nil
}
