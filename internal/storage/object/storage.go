package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage publishes rendered thumbnails to an S3-compatible bucket (MinIO).
// Objects are stored under a fixed key prefix inside the bucket.
type Storage struct {
	client     *minio.Client
	bucketName string
	prefix     string
}

// NewStorage connects to the MinIO server and makes sure the bucket exists.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName, prefix string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Publish uploads data under name and returns the object key.
func (s *Storage) Publish(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := s.key(name)

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish %s: %w", key, err)
	}

	return key, nil
}

// Load returns a reader for a published object.
func (s *Storage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	return obj, nil
}

// Delete removes a published object.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// DeletePrefix removes every object whose name starts with namePrefix and
// returns how many were removed.
func (s *Storage) DeletePrefix(ctx context.Context, namePrefix string) (int, error) {
	objects := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    s.key(namePrefix),
		Recursive: true,
	})

	removed := 0
	for obj := range objects {
		if obj.Err != nil {
			return removed, fmt.Errorf("failed to list objects: %w", obj.Err)
		}

		if err := s.Delete(ctx, obj.Key); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

func (s *Storage) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
