package convert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuchat/ingest/internal/db"
)

// Claim is the slice of the record store's claim protocol the converter
// needs: the locked record, its stage transitions, and transaction control.
type Claim interface {
	Record() *db.FileRecord
	SetConverted(ctx context.Context, pdfPath string) error
	SetFailed(ctx context.Context, detail string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

// ClaimFunc claims the next file awaiting conversion, or nil when the
// queue is empty.
type ClaimFunc func(ctx context.Context) (Claim, error)

// BlobStore is the converter's view of binary storage.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// DocConverter turns office document bytes into PDF bytes.
type DocConverter interface {
	ConvertDOCX(ctx context.Context, docx []byte) ([]byte, error)
}

// Converter normalizes uploaded files into PDF. PDF uploads pass
// through untouched; DOCX uploads go through the conversion service.
type Converter struct {
	claim    ClaimFunc
	blob     BlobStore
	docs     DocConverter
	validate func([]byte) error
	logger   *slog.Logger
}

// NewConverter wires a converter from its collaborators.
func NewConverter(claim ClaimFunc, blob BlobStore, docs DocConverter) *Converter {
	return &Converter{
		claim:    claim,
		blob:     blob,
		docs:     docs,
		validate: validatePDF,
		logger:   slog.With("component", "converter"),
	}
}

// PollOnce claims and processes at most one file. Per-record conversion
// failures are terminal: the record goes to failed with a diagnostic and
// is never retried automatically. Only infrastructure errors around the
// claim itself are returned to the supervising loop.
func (c *Converter) PollOnce(ctx context.Context) (bool, error) {
	claim, err := c.claim(ctx)
	if err != nil {
		return false, err
	}
	if claim == nil {
		return false, nil
	}
	defer claim.Rollback(ctx)

	file := claim.Record()
	switch file.MimeType {
	case db.MimeTypePDF:
		// Already the normalized format; the original doubles as the
		// conversion output.
		if err := claim.SetConverted(ctx, file.Path); err != nil {
			return true, err
		}
	case db.MimeTypeDOCX:
		c.logger.Info("converting file", "file_id", file.ID)
		if err := c.convertDOCX(ctx, claim); err != nil {
			return true, err
		}
	default:
		// Intake admits only the types above; anything else is a bug.
		panic(fmt.Sprintf("unreachable: unsupported mime type %q", file.MimeType))
	}

	if err := claim.Commit(ctx); err != nil {
		return true, fmt.Errorf("failed to commit conversion: %w", err)
	}
	return true, nil
}

func (c *Converter) convertDOCX(ctx context.Context, claim Claim) error {
	file := claim.Record()

	pdfPath := derivedPDFKey(file)
	pdf, err := c.producePDF(ctx, file.Path)
	if err != nil {
		c.logger.Error("conversion failed", "file_id", file.ID, "err", err)
		return claim.SetFailed(ctx, err.Error())
	}

	// A stored blob whose record update never commits is accepted
	// garbage; the record's pdf_path stays the source of truth.
	if err := c.blob.Put(ctx, pdfPath, pdf, db.MimeTypePDF); err != nil {
		c.logger.Error("failed to store converted file", "file_id", file.ID, "err", err)
		return claim.SetFailed(ctx, err.Error())
	}

	c.logger.Info("finished converting file", "file_id", file.ID)
	return claim.SetConverted(ctx, pdfPath)
}

func (c *Converter) producePDF(ctx context.Context, originalKey string) ([]byte, error) {
	docx, err := c.blob.Get(ctx, originalKey)
	if err != nil {
		return nil, err
	}
	pdf, err := c.docs.ConvertDOCX(ctx, docx)
	if err != nil {
		return nil, err
	}
	if err := c.validate(pdf); err != nil {
		return nil, err
	}
	return pdf, nil
}

// derivedPDFKey is deterministic per file, so a crash-and-retry
// overwrites the same object instead of accumulating copies.
func derivedPDFKey(file *db.FileRecord) string {
	return fmt.Sprintf("uploads/%s.pdf", file.ID)
}
