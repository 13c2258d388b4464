package thumb

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
)

// Rendered is the result of Output.
type Rendered struct {
	Data      []byte
	Format    bitmap.Format
	Key       string
	FromCache bool
}

// Save writes the result to dst (the source path when empty) and returns
// the path written. A cache hit is copied; a miss runs the pipeline, stores
// the cache entry and writes dst.
func (t *Thumb) Save(ctx context.Context, dst string) (string, error) {
	if dst == "" {
		dst = t.source
	}

	format := t.resolveFormat(bitmap.Unknown)

	cacheFile, err := t.CacheFilename(format)
	if err != nil {
		return "", err
	}

	if t.hit(cacheFile) {
		err := t.store.Copy(cacheFile, dst)
		if err == nil {
			zlog.Logger.Debug().Str("source", t.source).Str("cache", cacheFile).Msg("thumbnail cache hit")
			return dst, nil
		}
		zlog.Logger.Warn().Err(err).Str("cache", cacheFile).Msg("failed to copy cache entry, recomputing")
	}

	data, err := t.render(ctx, format, cacheFile)
	if err != nil {
		return "", err
	}

	if err := t.store.Save(dst, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	return dst, nil
}

// Output returns the encoded result in format (Unknown resolves to the
// sticky, then detected format). Unreadable cache entries are recomputed.
func (t *Thumb) Output(ctx context.Context, format bitmap.Format) (*Rendered, error) {
	format = t.resolveFormat(format)

	key, err := t.Key()
	if err != nil {
		return nil, err
	}

	cacheFile, err := t.CacheFilename(format)
	if err != nil {
		return nil, err
	}

	if t.hit(cacheFile) {
		data, err := t.store.ReadFile(cacheFile)
		if err == nil {
			zlog.Logger.Debug().Str("source", t.source).Str("cache", cacheFile).Msg("thumbnail cache hit")
			return &Rendered{Data: data, Format: format, Key: key, FromCache: true}, nil
		}
		zlog.Logger.Warn().Err(err).Str("cache", cacheFile).Msg("failed to read cache entry, recomputing")
	}

	data, err := t.render(ctx, format, cacheFile)
	if err != nil {
		return nil, err
	}

	return &Rendered{Data: data, Format: format, Key: key}, nil
}

// Cache makes sure the cache entry for format exists, rendering it when
// missing or when the cache is ignored. An explicit format becomes the
// default for later calls on t.
func (t *Thumb) Cache(ctx context.Context, format bitmap.Format) error {
	if format != bitmap.Unknown {
		t.cacheFormat = format
	}

	cacheFile, err := t.CacheFilename(format)
	if err != nil {
		return err
	}

	if t.hit(cacheFile) {
		return nil
	}

	_, err = t.render(ctx, t.resolveFormat(format), cacheFile)
	return err
}

// CleanCached removes every cache entry of the source, whatever its queue
// or format, and returns how many files were deleted.
func (t *Thumb) CleanCached() (int, error) {
	pattern := filepath.Join(t.cacheDir, CachePrefix(t.source)+"*")

	n, err := t.store.RemoveGlob(pattern)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}

	zlog.Logger.Debug().Str("source", t.source).Int("removed", n).Msg("thumbnail cache cleaned")

	return n, nil
}

func (t *Thumb) hit(cacheFile string) bool {
	if t.ignoreCache {
		return false
	}

	ok, err := t.store.Exists(cacheFile)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("cache", cacheFile).Msg("failed to stat cache entry")
		return false
	}

	return ok
}

// render runs the pipeline and stores the result under cacheFile.
func (t *Thumb) render(ctx context.Context, format bitmap.Format, cacheFile string) ([]byte, error) {
	zlog.Logger.Debug().Str("source", t.source).Str("cache", cacheFile).Msg("thumbnail cache miss")

	p := t.newProcessor()
	defer p.Release()

	if err := p.Load(t.source); err != nil {
		return nil, err
	}

	if err := p.Apply(ctx, t.ops); err != nil {
		return nil, err
	}

	data, err := encodeBytes(p, format)
	if err != nil {
		return nil, err
	}

	if err := t.store.Save(cacheFile, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return data, nil
}
