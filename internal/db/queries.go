package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const fileColumns = `id, mime_type, file_size, path, pdf_path, hash, indexing_status, indexing_error, namespace, created, modified`

func scanFile(row pgx.Row) (*FileRecord, error) {
	var f FileRecord
	err := row.Scan(
		&f.ID, &f.MimeType, &f.FileSize, &f.Path, &f.PDFPath,
		&f.Hash, &f.IndexingStatus, &f.IndexingError, &f.Namespace,
		&f.Created, &f.Modified,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFile creates a new file record in pending state
func (db *DB) CreateFile(ctx context.Context, id uuid.UUID, mimeType string, fileSize int64, path, hash, namespace string) (*FileRecord, error) {
	file, err := scanFile(db.pool.QueryRow(ctx,
		`INSERT INTO files (id, mime_type, file_size, path, hash, namespace)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+fileColumns,
		id, mimeType, fileSize, path, hash, namespace,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}
	return file, nil
}

// GetFile retrieves a file record by id
func (db *DB) GetFile(ctx context.Context, id uuid.UUID) (*FileRecord, error) {
	file, err := scanFile(db.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

// GetFileByHash retrieves a file record by its content hash
func (db *DB) GetFileByHash(ctx context.Context, hash string) (*FileRecord, error) {
	file, err := scanFile(db.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE hash = $1`, hash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by hash: %w", err)
	}
	return file, nil
}

// DeleteFile deletes a file record. Chunk rows go with it via ON DELETE CASCADE.
func (db *DB) DeleteFile(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	return err
}

// QueueCounts returns how many files sit in each stage of the pipeline
func (db *DB) QueueCounts(ctx context.Context) (*StatusCounts, error) {
	var c StatusCounts
	err := db.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE indexing_status = 'pending' AND pdf_path IS NULL),
			COUNT(*) FILTER (WHERE indexing_status = 'pending' AND pdf_path IS NOT NULL),
			COUNT(*) FILTER (WHERE indexing_status = 'indexed'),
			COUNT(*) FILTER (WHERE indexing_status = 'failed')
		 FROM files`,
	).Scan(&c.Pending, &c.AwaitingIndex, &c.Indexed, &c.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	return &c, nil
}

// CountReindexable counts files whose chunks live outside the given namespace
func (db *DB) CountReindexable(ctx context.Context, namespace string) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM files WHERE namespace IS DISTINCT FROM $1`,
		namespace,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reindexable files: %w", err)
	}
	return count, nil
}

// ReassignNamespace moves every file outside the given namespace into it
// and resets it to pending in one statement. Converted files keep their
// pdf_path, so they re-enter the indexer queue directly. Returns the
// number of files queued for reindexing.
func (db *DB) ReassignNamespace(ctx context.Context, namespace string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE files
		 SET indexing_status = 'pending', namespace = $1, modified = NOW()
		 WHERE namespace IS DISTINCT FROM $1`,
		namespace,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign namespace: %w", err)
	}
	return tag.RowsAffected(), nil
}
