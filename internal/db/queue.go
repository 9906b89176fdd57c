package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Claim protocol for the two worker pools. A claim wraps an open
// transaction holding a row-level lock on exactly one file record.
// SKIP LOCKED makes rows held by other in-flight claims invisible, so
// concurrent pollers never block on each other and never receive the
// same record. If the claiming process dies before commit, Postgres
// releases the lock on connection teardown and the record becomes
// claimable again on the next poll.

// Claim is an exclusively locked file record plus the transaction that
// holds the lock. Callers must finish with Commit or Rollback; the lock
// is released either way.
type Claim struct {
	file *FileRecord
	tx   pgx.Tx
}

func (db *DB) claimNext(ctx context.Context, predicate string) (*Claim, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}

	file, err := scanFile(tx.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE `+predicate+`
		 ORDER BY created
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to claim file: %w", err)
	}

	return &Claim{file: file, tx: tx}, nil
}

// ClaimNextForConversion claims the oldest pending file that has no
// normalized PDF yet. Returns nil if no unlocked eligible row exists.
func (db *DB) ClaimNextForConversion(ctx context.Context) (*Claim, error) {
	return db.claimNext(ctx, `indexing_status = 'pending' AND pdf_path IS NULL`)
}

// ClaimNextForIndexing claims the oldest pending file whose normalized
// PDF is ready. Returns nil if no unlocked eligible row exists.
func (db *DB) ClaimNextForIndexing(ctx context.Context) (*Claim, error) {
	return db.claimNext(ctx, `indexing_status = 'pending' AND pdf_path IS NOT NULL`)
}

// Record returns the claimed file record.
func (c *Claim) Record() *FileRecord {
	return c.file
}

// SetConverted records the normalized PDF location. The file stays
// pending so the indexer picks it up on its next poll.
func (c *Claim) SetConverted(ctx context.Context, pdfPath string) error {
	_, err := c.tx.Exec(ctx,
		`UPDATE files SET pdf_path = $1, indexing_error = NULL, modified = NOW() WHERE id = $2`,
		pdfPath, c.file.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to set pdf path: %w", err)
	}
	c.file.PDFPath = &pdfPath
	c.file.IndexingError = nil
	return nil
}

// SetIndexed marks the file as fully indexed and clears any stale error.
func (c *Claim) SetIndexed(ctx context.Context) error {
	_, err := c.tx.Exec(ctx,
		`UPDATE files SET indexing_status = 'indexed', indexing_error = NULL, modified = NOW() WHERE id = $1`,
		c.file.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file indexed: %w", err)
	}
	c.file.IndexingStatus = StatusIndexed
	c.file.IndexingError = nil
	return nil
}

// SetFailed marks the file as terminally failed with a diagnostic.
// Recovery is an explicit administrative reindex, never automatic.
func (c *Claim) SetFailed(ctx context.Context, detail string) error {
	_, err := c.tx.Exec(ctx,
		`UPDATE files SET indexing_status = 'failed', indexing_error = $1, modified = NOW() WHERE id = $2`,
		detail, c.file.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file failed: %w", err)
	}
	c.file.IndexingStatus = StatusFailed
	c.file.IndexingError = &detail
	return nil
}

// Commit commits the claim transaction and releases the row lock.
func (c *Claim) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

// Rollback abandons the claim. Safe to defer after Commit; rolling back
// a committed transaction is a no-op.
func (c *Claim) Rollback(ctx context.Context) {
	_ = c.tx.Rollback(ctx)
}
