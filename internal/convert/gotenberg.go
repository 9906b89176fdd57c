package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Gotenberg converts office documents to PDF via a Gotenberg server's
// LibreOffice route.
type Gotenberg struct {
	baseURL    string
	httpClient *http.Client
}

// NewGotenberg creates a conversion client. The timeout bounds each
// conversion call end to end.
func NewGotenberg(baseURL string, timeout time.Duration) *Gotenberg {
	if baseURL == "" {
		baseURL = "http://localhost:3100"
	}
	return &Gotenberg{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ConvertDOCX sends DOCX bytes through the LibreOffice route and
// returns the produced PDF bytes.
func (g *Gotenberg) ConvertDOCX(ctx context.Context, docx []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("files", "document.docx")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(docx); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	url := fmt.Sprintf("%s/forms/libreoffice/convert", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gotenberg error: %d - %s", resp.StatusCode, string(msg))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted output: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("gotenberg returned empty output")
	}
	return pdf, nil
}
