package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads the plain text of a PDF page by page. Pages without
// extractable text are skipped.
type PDFExtractor struct {
	logger *slog.Logger
}

func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// ExtractText returns the text of every non-blank page, each followed by a
// newline.
func (e *PDFExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	e.logger.Info("reading pdf", "path", path)

	var b strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			e.logger.Warn("page text extraction failed", "path", path, "page", i, "err", err)
			continue
		}
		e.logger.Debug("page text extracted", "path", path, "page", i, "length", len(text))
		if strings.TrimSpace(text) == "" {
			e.logger.Info("skipping blank or non-textual page", "path", path, "page", i)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
