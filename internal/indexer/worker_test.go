package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/ingest/internal/chunker"
	"github.com/docuchat/ingest/internal/db"
)

// chunkStore stands in for the vector index: one chunk set per file id,
// replacement is total, namespace travels with the set.
type chunkStore struct {
	sets       map[uuid.UUID][]db.ChunkEmbedding
	namespaces map[uuid.UUID]string
}

func newChunkStore() *chunkStore {
	return &chunkStore{
		sets:       map[uuid.UUID][]db.ChunkEmbedding{},
		namespaces: map[uuid.UUID]string{},
	}
}

type fakeClaim struct {
	record     *db.FileRecord
	store      *chunkStore
	committed  bool
	rolledBack bool

	// staged chunk writes, applied on commit like the real transaction
	staged    []db.ChunkEmbedding
	hasStaged bool
}

func (f *fakeClaim) Record() *db.FileRecord { return f.record }

func (f *fakeClaim) ReplaceChunks(_ context.Context, items []db.ChunkEmbedding) error {
	f.staged = items
	f.hasStaged = true
	return nil
}

func (f *fakeClaim) SetIndexed(context.Context) error {
	f.record.IndexingStatus = db.StatusIndexed
	f.record.IndexingError = nil
	return nil
}

func (f *fakeClaim) SetFailed(_ context.Context, detail string) error {
	f.record.IndexingStatus = db.StatusFailed
	f.record.IndexingError = &detail
	return nil
}

func (f *fakeClaim) Commit(context.Context) error {
	f.committed = true
	if f.hasStaged {
		f.store.sets[f.record.ID] = f.staged
		f.store.namespaces[f.record.ID] = f.record.Namespace
	}
	return nil
}

func (f *fakeClaim) Rollback(context.Context) {
	if !f.committed {
		f.rolledBack = true
	}
}

func queueOf(claims ...*fakeClaim) ClaimFunc {
	i := 0
	return func(context.Context) (Claim, error) {
		if i >= len(claims) {
			return nil, nil
		}
		c := claims[i]
		i++
		return c, nil
	}
}

type fakeBlob struct {
	err   error
	paths []string
}

func (b *fakeBlob) FetchToTemp(context.Context, string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	f, err := os.CreateTemp("", "indexer-test-*")
	if err != nil {
		return "", err
	}
	f.Close()
	b.paths = append(b.paths, f.Name())
	return f.Name(), nil
}

type fakeChunker struct {
	chunks []chunker.Chunk
	err    error
}

func (c *fakeChunker) ChunkFile(_ string, fileID uuid.UUID) ([]chunker.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]chunker.Chunk, len(c.chunks))
	for i, ch := range c.chunks {
		ch.FileID = fileID
		out[i] = ch
	}
	return out, nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([]pgvector.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([]pgvector.Vector, len(texts))
	for i := range texts {
		vectors[i] = pgvector.NewVector([]float32{float32(i), 0.5})
	}
	return vectors, nil
}

func convertedFile(namespace string) *db.FileRecord {
	id := uuid.New()
	pdfPath := fmt.Sprintf("uploads/%s.pdf", id)
	return &db.FileRecord{
		ID:             id,
		MimeType:       db.MimeTypePDF,
		Path:           pdfPath,
		PDFPath:        &pdfPath,
		IndexingStatus: db.StatusPending,
		Namespace:      namespace,
	}
}

func someChunks() []chunker.Chunk {
	return []chunker.Chunk{
		{Text: "first window", Page: 1},
		{Text: "second window", Page: 1},
		{Text: "third window", Page: 2},
	}
}

func TestPollOnceEmptyQueue(t *testing.T) {
	ix := NewIndexer(queueOf(), &fakeBlob{}, &fakeChunker{}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestPollOnceHappyPath(t *testing.T) {
	store := newChunkStore()
	claim := &fakeClaim{record: convertedFile("documents"), store: store}
	blob := &fakeBlob{}
	ix := NewIndexer(queueOf(claim), blob, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	assert.Equal(t, db.StatusIndexed, claim.record.IndexingStatus)
	assert.Nil(t, claim.record.IndexingError)
	assert.True(t, claim.committed)

	set := store.sets[claim.record.ID]
	require.Len(t, set, 3)
	assert.Equal(t, "documents", store.namespaces[claim.record.ID])
	for _, item := range set {
		assert.Equal(t, claim.record.ID, item.Chunk.FileID)
	}

	// Scratch file must be gone regardless of outcome.
	require.Len(t, blob.paths, 1)
	_, statErr := os.Stat(blob.paths[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestPollOnceChunkerFailure(t *testing.T) {
	store := newChunkStore()
	claim := &fakeClaim{record: convertedFile("documents"), store: store}
	ix := NewIndexer(queueOf(claim), &fakeBlob{}, &fakeChunker{err: errors.New("broken pdf")}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
	require.NotNil(t, claim.record.IndexingError)
	assert.Contains(t, *claim.record.IndexingError, "broken pdf")
	assert.True(t, claim.committed, "failure must be committed, not rolled back")
	assert.Empty(t, store.sets)
}

func TestPollOnceEmbedderFailure(t *testing.T) {
	store := newChunkStore()
	claim := &fakeClaim{record: convertedFile("documents"), store: store}
	ix := NewIndexer(queueOf(claim), &fakeBlob{}, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{err: errors.New("embedding service down")})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
	assert.Empty(t, store.sets)
}

func TestPollOnceBlobFailure(t *testing.T) {
	claim := &fakeClaim{record: convertedFile("documents"), store: newChunkStore()}
	ix := NewIndexer(queueOf(claim), &fakeBlob{err: errors.New("object store down")}, &fakeChunker{}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
}

func TestPollOnceTextlessFileIndexes(t *testing.T) {
	store := newChunkStore()
	claim := &fakeClaim{record: convertedFile("documents"), store: store}
	ix := NewIndexer(queueOf(claim), &fakeBlob{}, &fakeChunker{}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	// A scanned PDF with no extractable text still finishes as indexed,
	// just with an empty chunk set.
	assert.Equal(t, db.StatusIndexed, claim.record.IndexingStatus)
	assert.Empty(t, store.sets[claim.record.ID])
}

func TestReindexIsIdempotent(t *testing.T) {
	store := newChunkStore()
	record := convertedFile("documents")

	first := &fakeClaim{record: record, store: store}
	ix := NewIndexer(queueOf(first), &fakeBlob{}, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{})
	_, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, store.sets[record.ID], 3)

	// Crash-and-retry: the same file is claimed and indexed again.
	second := &fakeClaim{record: record, store: store}
	ix = NewIndexer(queueOf(second), &fakeBlob{}, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{})
	_, err = ix.PollOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.sets[record.ID], 3, "re-indexing must replace, not duplicate")
}

func TestReindexMovesNamespace(t *testing.T) {
	store := newChunkStore()
	record := convertedFile("documents")

	first := &fakeClaim{record: record, store: store}
	ix := NewIndexer(queueOf(first), &fakeBlob{}, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{})
	_, err := ix.PollOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, db.StatusIndexed, record.IndexingStatus)

	// Administrative reindex: back to pending under a new namespace.
	record.IndexingStatus = db.StatusPending
	record.Namespace = "documents-v2"

	second := &fakeClaim{record: record, store: store}
	ix = NewIndexer(queueOf(second), &fakeBlob{}, &fakeChunker{chunks: someChunks()}, &fakeEmbedder{})
	_, err = ix.PollOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, db.StatusIndexed, record.IndexingStatus)
	assert.Equal(t, "documents-v2", store.namespaces[record.ID])
	assert.Len(t, store.sets[record.ID], 3)
}

func TestPollOnceClaimError(t *testing.T) {
	claimErr := errors.New("database gone")
	ix := NewIndexer(func(context.Context) (Claim, error) {
		return nil, claimErr
	}, &fakeBlob{}, &fakeChunker{}, &fakeEmbedder{})

	worked, err := ix.PollOnce(context.Background())
	assert.ErrorIs(t, err, claimErr)
	assert.False(t, worked)
}
