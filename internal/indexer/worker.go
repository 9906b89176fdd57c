package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docuchat/ingest/internal/chunker"
	"github.com/docuchat/ingest/internal/db"
)

// Claim is the slice of the record store's claim protocol the indexer
// needs. ReplaceChunks shares the claim's transaction, so the chunk
// swap and the final status write commit or roll back together.
type Claim interface {
	Record() *db.FileRecord
	ReplaceChunks(ctx context.Context, items []db.ChunkEmbedding) error
	SetIndexed(ctx context.Context) error
	SetFailed(ctx context.Context, detail string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

// ClaimFunc claims the next converted file awaiting indexing, or nil
// when the queue is empty.
type ClaimFunc func(ctx context.Context) (Claim, error)

// BlobStore is the indexer's view of binary storage: it only ever
// materializes the normalized PDF into a scratch file.
type BlobStore interface {
	FetchToTemp(ctx context.Context, key string) (string, error)
}

// FileChunker splits a local PDF into provenance-tagged text windows.
type FileChunker interface {
	ChunkFile(path string, fileID uuid.UUID) ([]chunker.Chunk, error)
}

// Embedder computes embeddings for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// Indexer turns normalized files into searchable chunks and finalizes
// their status: indexed on success, failed with a diagnostic otherwise.
type Indexer struct {
	claim  ClaimFunc
	blob   BlobStore
	chunks FileChunker
	embed  Embedder
	logger *slog.Logger
}

// NewIndexer wires an indexer from its collaborators.
func NewIndexer(claim ClaimFunc, blob BlobStore, chunks FileChunker, embed Embedder) *Indexer {
	return &Indexer{
		claim:  claim,
		blob:   blob,
		chunks: chunks,
		embed:  embed,
		logger: slog.With("component", "indexer"),
	}
}

// PollOnce claims and indexes at most one file. Any error while
// chunking, embedding or writing chunks marks the record failed; both
// outcomes commit within the claim transaction. Only infrastructure
// errors around the claim itself are returned to the supervising loop.
func (ix *Indexer) PollOnce(ctx context.Context) (bool, error) {
	claim, err := ix.claim(ctx)
	if err != nil {
		return false, err
	}
	if claim == nil {
		return false, nil
	}
	defer claim.Rollback(ctx)

	file := claim.Record()
	ix.logger.Info("indexing file", "file_id", file.ID, "namespace", file.Namespace)

	if err := ix.indexFile(ctx, claim); err != nil {
		ix.logger.Error("failed to index file", "file_id", file.ID, "err", err)
		if ferr := claim.SetFailed(ctx, err.Error()); ferr != nil {
			return true, ferr
		}
	} else {
		ix.logger.Info("indexed file", "file_id", file.ID)
		if serr := claim.SetIndexed(ctx); serr != nil {
			return true, serr
		}
	}

	if err := claim.Commit(ctx); err != nil {
		return true, fmt.Errorf("failed to commit indexing result: %w", err)
	}
	return true, nil
}

func (ix *Indexer) indexFile(ctx context.Context, claim Claim) error {
	file := claim.Record()
	if file.PDFPath == nil {
		return errors.New("file has no normalized pdf")
	}

	path, err := ix.blob.FetchToTemp(ctx, *file.PDFPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			// Cleanup problems never override the indexing outcome.
			ix.logger.Warn("failed to delete scratch file", "path", path, "err", err)
		}
	}()

	chunks, err := ix.chunks.ChunkFile(path, file.ID)
	if err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	var vectors []pgvector.Vector
	if len(texts) > 0 {
		vectors, err = ix.embed.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
	}

	items := make([]db.ChunkEmbedding, len(chunks))
	for i := range chunks {
		items[i] = db.ChunkEmbedding{Chunk: chunks[i], Vector: vectors[i]}
	}
	return claim.ReplaceChunks(ctx, items)
}
