package thumb

import (
	"errors"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
)

var (
	// ErrNotFound is returned when the source image does not exist.
	ErrNotFound = errors.New("image not found")

	// ErrInvalidImage is returned when content cannot be decoded or an
	// operation runs against a missing bitmap.
	ErrInvalidImage = errors.New("invalid image")

	// ErrUnsupportedFormat is returned for formats other than JPEG, PNG and GIF.
	ErrUnsupportedFormat = bitmap.ErrUnsupportedFormat

	// ErrIO is returned when a directory or file cannot be written.
	ErrIO = errors.New("i/o failure")

	// ErrPluginFailed wraps any error raised by an operation handler.
	ErrPluginFailed = errors.New("operation failed")

	// ErrUnknownOperation is returned when no handler is registered for an operation.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidArgument is returned when an operation receives bad arguments.
	ErrInvalidArgument = errors.New("invalid operation argument")

	// ErrUnserializable is returned when an operation argument cannot take
	// part in a cache key.
	ErrUnserializable = errors.New("unserializable operation argument")
)
