package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docuchat/ingest/internal/db"
)

// ErrUnsupportedType is returned for uploads the pipeline cannot ingest.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrFileNotFound is returned when removing a file that does not exist.
var ErrFileNotFound = errors.New("file not found")

// Records is the slice of the record store intake needs.
type Records interface {
	GetFile(ctx context.Context, id uuid.UUID) (*db.FileRecord, error)
	GetFileByHash(ctx context.Context, hash string) (*db.FileRecord, error)
	CreateFile(ctx context.Context, id uuid.UUID, mimeType string, fileSize int64, path, hash, namespace string) (*db.FileRecord, error)
	DeleteFile(ctx context.Context, id uuid.UUID) error
}

// BlobStore is intake's view of binary storage.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Service is the upload-side collaborator of the pipeline: it admits
// files into the queue and removes them again. Identical content is
// deduplicated by hash, so re-uploading a known file costs nothing.
type Service struct {
	records   Records
	blob      BlobStore
	namespace string
	logger    *slog.Logger
}

// NewService creates an intake service registering files into the given
// index namespace.
func NewService(records Records, blob BlobStore, namespace string) *Service {
	return &Service{
		records:   records,
		blob:      blob,
		namespace: namespace,
		logger:    slog.With("component", "intake"),
	}
}

// RegisterUpload stores the uploaded bytes and creates a pending file
// record for the workers to pick up. If a record with the same content
// hash already exists, it is returned unchanged.
func (s *Service) RegisterUpload(ctx context.Context, mimeType string, data []byte) (*db.FileRecord, error) {
	if !db.SupportedMimeType(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.records.GetFileByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("duplicate upload, reusing record", "file_id", existing.ID)
		return existing, nil
	}

	id := uuid.New()
	key := uploadKey(id, mimeType)
	if err := s.blob.Put(ctx, key, data, mimeType); err != nil {
		return nil, err
	}

	file, err := s.records.CreateFile(ctx, id, mimeType, int64(len(data)), key, hash, s.namespace)
	if err != nil {
		// Likely a concurrent upload of the same content; drop our copy
		// so the losing side leaves nothing behind.
		if rerr := s.blob.Remove(ctx, key); rerr != nil {
			s.logger.Warn("failed to remove orphaned upload", "key", key, "err", rerr)
		}
		return nil, err
	}

	s.logger.Info("registered upload", "file_id", file.ID, "mime_type", mimeType, "size", len(data))
	return file, nil
}

// RemoveFile deletes the record (its chunks cascade out of the vector
// index with it) and then the stored blobs. Blob removal failures are
// logged, not escalated: once the record is gone the file is gone.
func (s *Service) RemoveFile(ctx context.Context, id uuid.UUID) error {
	file, err := s.records.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if file == nil {
		return ErrFileNotFound
	}

	if err := s.records.DeleteFile(ctx, id); err != nil {
		return err
	}

	if err := s.blob.Remove(ctx, file.Path); err != nil {
		s.logger.Warn("failed to remove original blob", "key", file.Path, "err", err)
	}
	if file.PDFPath != nil && *file.PDFPath != file.Path {
		if err := s.blob.Remove(ctx, *file.PDFPath); err != nil {
			s.logger.Warn("failed to remove converted blob", "key", *file.PDFPath, "err", err)
		}
	}

	s.logger.Info("removed file", "file_id", id)
	return nil
}

func uploadKey(id uuid.UUID, mimeType string) string {
	ext := ".pdf"
	if mimeType == db.MimeTypeDOCX {
		ext = ".docx"
	}
	return fmt.Sprintf("uploads/%s%s", id, ext)
}
