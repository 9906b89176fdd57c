package chunker

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
)

// Chunk is one bounded text window extracted from a page of normalized
// content. Chunks are transient; they only persist inside the vector index.
type Chunk struct {
	Text   string
	FileID uuid.UUID
	Page   int // 1-based, document order
}

// Chunker splits per-page PDF text into overlapping windows.
type Chunker struct {
	windowSize int
	overlap    int
}

// New creates a chunker. windowSize and overlap are character counts;
// overlap must be smaller than windowSize.
func New(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("overlap must be in [0, window size), got %d", overlap)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// ChunkFile extracts text from every page of the PDF at path and splits
// it into windows tagged with the file id and 1-based page number.
// Pages with no extractable text are dropped.
func (c *Chunker) ChunkFile(path string, fileID uuid.UUID) ([]Chunk, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var chunks []Chunk
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		for _, window := range c.split(text) {
			chunks = append(chunks, Chunk{
				Text:   window,
				FileID: fileID,
				Page:   i + 1,
			})
		}
	}
	return chunks, nil
}

// split cuts text into windows of windowSize characters where each pair
// of consecutive windows shares exactly overlap characters. Text that
// fits in a single window is returned whole.
func (c *Chunker) split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.windowSize {
		return []string{text}
	}

	step := c.windowSize - c.overlap
	var windows []string
	for start := 0; ; start += step {
		end := start + c.windowSize
		if end >= len(runes) {
			windows = append(windows, string(runes[start:]))
			break
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows
}
