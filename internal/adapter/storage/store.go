// Package storage wraps the MinIO client behind the narrow object-store
// contract the ingestion and sync paths rely on.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"paperbase/backend/internal/apperr"
)

type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Bucket() string {
	return s.bucket
}

// Locator is the fully-qualified pointer stored in documents.file_path.
func (s *Store) Locator(objectName string) string {
	return fmt.Sprintf("minio://%s/%s", s.bucket, objectName)
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: checking bucket: %v", apperr.ErrExternal, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("%w: creating bucket: %v", apperr.ErrExternal, err)
	}
	slog.InfoContext(ctx, "bucket created", "bucket", s.bucket)
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: listing objects: %v", apperr.ErrExternal, obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (s *Store) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat object: %v", apperr.ErrExternal, err)
	}
	return true, nil
}

// Get reads an object fully into memory. Returns apperr.ErrNotFound when the
// object does not exist.
func (s *Store) Get(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get object: %v", apperr.ErrExternal, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: object %q", apperr.ErrNotFound, objectName)
		}
		return nil, fmt.Errorf("%w: read object: %v", apperr.ErrExternal, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%w: put object: %v", apperr.ErrExternal, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove object: %v", apperr.ErrExternal, err)
	}
	return nil
}

func (s *Store) PresignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: presign url: %v", apperr.ErrExternal, err)
	}
	return u.String(), nil
}
