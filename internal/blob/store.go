package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docuchat-blob")

// Store is content-addressed binary storage for original and normalized
// file bytes, backed by a single MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New initializes the blob store and creates the bucket if it is missing.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	s := &Store{
		client: client,
		bucket: bucket,
		logger: slog.With("component", "blob"),
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		s.logger.Info("creating bucket", "bucket", bucket)
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return s, nil
}

// Put stores an object under the given key, overwriting any previous
// content. Overwrite semantics keep retried conversions idempotent.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := tracer.Start(ctx, "blob.put",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return nil
}

// Get fetches an object's full content.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "blob.get",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

// FetchToTemp downloads an object to a temporary file and returns its
// path. The caller owns the file and must remove it when done; keep the
// lifetime of these files short.
func (s *Store) FetchToTemp(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "blob.fetch_to_temp",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	f, err := os.CreateTemp("", "docuchat-*")
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := s.client.FGetObject(ctx, s.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		span.RecordError(err)
		os.Remove(path)
		return "", fmt.Errorf("failed to download object %s: %w", key, err)
	}
	return path, nil
}

// Remove deletes an object. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "blob.remove",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}
