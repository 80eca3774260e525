package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// Extractor pulls plain text from PDF files. Scanned PDFs without a
// text layer yield empty text rather than an error.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, storageKey, filename string) (string, map[string]string, error) {
	reader, err := e.storage.Open(ctx, storageKey)
	if err != nil {
		return "", nil, fmt.Errorf("open source file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, fmt.Errorf("read source file: %w", err)
	}

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", nil, fmt.Errorf("parse pdf %s: %w", filename, err)
	}

	var builder strings.Builder
	pages := doc.NumPage()
	for n := 1; n <= pages; n++ {
		page := doc.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the document.
			continue
		}
		builder.WriteString(text)
		builder.WriteByte('\n')
	}

	metadata := map[string]string{
		"extractor": "pdf",
		"pages":     strconv.Itoa(pages),
		"bytes":     strconv.Itoa(len(raw)),
	}
	return strings.TrimSpace(builder.String()), metadata, nil
}
