package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/docuchat/ingest/internal/chunker"
)

// ChunkEmbedding pairs a text chunk with its embedding for insertion.
type ChunkEmbedding struct {
	Chunk  chunker.Chunk
	Vector pgvector.Vector
}

// ChunkResult is a retrieved chunk with its similarity distance.
type ChunkResult struct {
	ID       uuid.UUID
	FileID   uuid.UUID
	Page     int
	Content  string
	Distance float64
}

// ReplaceChunks swaps the file's full chunk set inside the claim
// transaction: delete everything previously indexed for this file id,
// in any namespace, then insert the new set under the record's current
// namespace. Running it twice for the same input is a no-op, and a
// reindex into a new namespace leaves nothing behind in the old one.
// The caller's Commit makes the swap and the status update atomic.
func (c *Claim) ReplaceChunks(ctx context.Context, items []ChunkEmbedding) error {
	if _, err := c.tx.Exec(ctx, `DELETE FROM chunks WHERE file_id = $1`, c.file.ID); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(
			`INSERT INTO chunks (id, file_id, namespace, page, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), c.file.ID, c.file.Namespace, item.Chunk.Page, i, item.Chunk.Text, item.Vector,
		)
	}
	br := c.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(items); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// SearchChunks finds the closest chunks to the given embedding within a
// namespace. This is the query surface the chat retrieval path consumes.
func (db *DB) SearchChunks(ctx context.Context, namespace string, embedding pgvector.Vector, limit int) ([]*ChunkResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, file_id, page, content, embedding <=> $2
		 FROM chunks
		 WHERE namespace = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		namespace, embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []*ChunkResult
	for rows.Next() {
		var r ChunkResult
		if err := rows.Scan(&r.ID, &r.FileID, &r.Page, &r.Content, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ChunkCount returns how many chunks a file has in the given namespace.
func (db *DB) ChunkCount(ctx context.Context, fileID uuid.UUID, namespace string) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE file_id = $1 AND namespace = $2`,
		fileID, namespace,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
