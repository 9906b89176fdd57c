package convert

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/ingest/internal/db"
)

type fakeClaim struct {
	record     *db.FileRecord
	committed  bool
	rolledBack bool
}

func (f *fakeClaim) Record() *db.FileRecord { return f.record }

func (f *fakeClaim) SetConverted(_ context.Context, pdfPath string) error {
	f.record.PDFPath = &pdfPath
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
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (b *fakeBlob) Get(_ context.Context, key string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return data, nil
}

func (b *fakeBlob) Put(_ context.Context, key string, data []byte, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = data
	return nil
}

type fakeDocs struct {
	output []byte
	err    error
}

func (d *fakeDocs) ConvertDOCX(context.Context, []byte) ([]byte, error) {
	return d.output, d.err
}

func pendingFile(mimeType string) *db.FileRecord {
	id := uuid.New()
	ext := ".pdf"
	if mimeType == db.MimeTypeDOCX {
		ext = ".docx"
	}
	return &db.FileRecord{
		ID:             id,
		MimeType:       mimeType,
		Path:           fmt.Sprintf("uploads/%s%s", id, ext),
		IndexingStatus: db.StatusPending,
		Namespace:      "documents",
	}
}

func newTestConverter(claim ClaimFunc, blob BlobStore, docs DocConverter) *Converter {
	c := NewConverter(claim, blob, docs)
	c.validate = func([]byte) error { return nil }
	return c
}

func TestPollOnceEmptyQueue(t *testing.T) {
	c := newTestConverter(queueOf(), newFakeBlob(), &fakeDocs{})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestPollOncePDFPassthrough(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypePDF)}
	c := newTestConverter(queueOf(claim), newFakeBlob(), &fakeDocs{})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.NotNil(t, claim.record.PDFPath)
	assert.Equal(t, claim.record.Path, *claim.record.PDFPath)
	assert.Equal(t, db.StatusPending, claim.record.IndexingStatus)
	assert.True(t, claim.committed)
}

func TestPollOnceConvertsDOCX(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypeDOCX)}
	blob := newFakeBlob()
	blob.objects[claim.record.Path] = []byte("docx bytes")
	c := newTestConverter(queueOf(claim), blob, &fakeDocs{output: []byte("pdf bytes")})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	wantKey := fmt.Sprintf("uploads/%s.pdf", claim.record.ID)
	require.NotNil(t, claim.record.PDFPath)
	assert.Equal(t, wantKey, *claim.record.PDFPath)
	assert.Equal(t, []byte("pdf bytes"), blob.objects[wantKey])
	assert.Equal(t, db.StatusPending, claim.record.IndexingStatus)
	assert.True(t, claim.committed)
}

func TestPollOnceConversionFailureIsTerminal(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypeDOCX)}
	blob := newFakeBlob()
	blob.objects[claim.record.Path] = []byte("corrupt")
	c := newTestConverter(queueOf(claim), blob, &fakeDocs{err: errors.New("conversion blew up")})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
	assert.Nil(t, claim.record.PDFPath)
	require.NotNil(t, claim.record.IndexingError)
	assert.Contains(t, *claim.record.IndexingError, "conversion blew up")
	assert.True(t, claim.committed, "failure must be committed, not rolled back")
}

func TestPollOnceMissingOriginalFails(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypeDOCX)}
	c := newTestConverter(queueOf(claim), newFakeBlob(), &fakeDocs{output: []byte("pdf")})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
	assert.Nil(t, claim.record.PDFPath)
}

func TestPollOnceInvalidOutputFails(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypeDOCX)}
	blob := newFakeBlob()
	blob.objects[claim.record.Path] = []byte("docx bytes")
	c := NewConverter(queueOf(claim), blob, &fakeDocs{output: []byte("not a pdf")})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
	require.NotNil(t, claim.record.IndexingError)
	assert.Nil(t, claim.record.PDFPath)
}

func TestPollOnceStoreFailureIsTerminal(t *testing.T) {
	claim := &fakeClaim{record: pendingFile(db.MimeTypeDOCX)}
	blob := newFakeBlob()
	blob.objects[claim.record.Path] = []byte("docx bytes")
	blob.putErr = errors.New("object store down")
	c := newTestConverter(queueOf(claim), blob, &fakeDocs{output: []byte("pdf")})

	worked, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, db.StatusFailed, claim.record.IndexingStatus)
}

func TestPollOnceClaimError(t *testing.T) {
	claimErr := errors.New("database gone")
	c := newTestConverter(func(context.Context) (Claim, error) {
		return nil, claimErr
	}, newFakeBlob(), &fakeDocs{})

	worked, err := c.PollOnce(context.Background())
	assert.ErrorIs(t, err, claimErr)
	assert.False(t, worked)
}

func TestPollOnceUnsupportedMimePanics(t *testing.T) {
	claim := &fakeClaim{record: pendingFile("text/plain")}
	c := newTestConverter(queueOf(claim), newFakeBlob(), &fakeDocs{})

	assert.Panics(t, func() {
		_, _ = c.PollOnce(context.Background())
	})
	assert.True(t, claim.rolledBack)
}
