package convert

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// validatePDF rejects structurally broken conversion output before it
// reaches the blob store, so the indexer only ever sees openable PDFs.
func validatePDF(data []byte) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), cfg); err != nil {
		return fmt.Errorf("converted output is not a valid PDF: %w", err)
	}
	return nil
}
