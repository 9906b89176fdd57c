package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// TextEmbedder generates text embeddings via an Ollama-compatible API.
type TextEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewTextEmbedder creates a new text embedder. The timeout bounds each
// embedding call; an expired timeout surfaces as an ordinary error.
func NewTextEmbedder(baseURL, model string, timeout time.Duration) *TextEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &TextEmbedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed generates an embedding for the given text
func (e *TextEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return pgvector.Vector{}, fmt.Errorf("text cannot be empty")
	}

	payload := map[string]any{
		"model":  e.model,
		"prompt": text,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return pgvector.Vector{}, fmt.Errorf("embedding API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding returned")
	}

	return pgvector.NewVector(result.Embedding), nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *TextEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
