package thumb

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
)

// cacheFilePrefix starts every cache file name.
const cacheFilePrefix = "thumbcache_"

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// CachePrefix returns the file name prefix shared by every cache entry of
// source. Removing all files with this prefix invalidates the source.
func CachePrefix(source string) string {
	return cacheFilePrefix + md5hex([]byte(source)) + "_"
}

// CacheKey returns the digest of the canonical encoding of q.
func CacheKey(q Queue) (string, error) {
	data, err := q.MarshalCanonical()
	if err != nil {
		return "", err
	}

	return md5hex(data), nil
}

// CacheFilename returns {cacheDir}/thumbcache_{md5(source)}_{md5(queue)}{ext}.
func CacheFilename(cacheDir, source string, q Queue, format bitmap.Format) (string, error) {
	key, err := CacheKey(q)
	if err != nil {
		return "", err
	}

	return filepath.Join(cacheDir, CachePrefix(source)+key+format.Extension()), nil
}
