package db

import (
	"time"

	"github.com/google/uuid"
)

// IndexingStatus tracks a file's progress through the ingestion pipeline.
type IndexingStatus string

const (
	StatusPending IndexingStatus = "pending"
	StatusIndexed IndexingStatus = "indexed"
	StatusFailed  IndexingStatus = "failed"
)

// Supported upload MIME types. The converter dispatches on these; intake
// rejects everything else, so the converter never sees another value.
const (
	MimeTypePDF  = "application/pdf"
	MimeTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// SupportedMimeType reports whether the pipeline can ingest the given MIME type.
func SupportedMimeType(mime string) bool {
	return mime == MimeTypePDF || mime == MimeTypeDOCX
}

// FileRecord represents one uploaded file's processing state.
// PDFPath is nil until conversion succeeds; for PDF uploads it is set
// to Path directly. IndexingError is non-nil iff the status is failed.
type FileRecord struct {
	ID             uuid.UUID
	MimeType       string
	FileSize       int64
	Path           string
	PDFPath        *string
	Hash           string
	IndexingStatus IndexingStatus
	IndexingError  *string
	Namespace      string
	Created        time.Time
	Modified       time.Time
}

// StatusCounts summarizes the queue for the admin dashboard.
type StatusCounts struct {
	Pending       int64
	AwaitingIndex int64
	Indexed       int64
	Failed        int64
}
