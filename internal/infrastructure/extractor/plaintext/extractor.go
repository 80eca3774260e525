package plaintext

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// Extractor handles UTF-8 text formats: .txt, .md and anything else
// that turns out to be valid text.
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

	if !utf8.Valid(raw) {
		return "", nil, fmt.Errorf("not valid utf-8 text: %s", filename)
	}

	text := strings.TrimSpace(string(raw))
	metadata := map[string]string{
		"extractor": "plaintext",
		"bytes":     strconv.Itoa(len(raw)),
	}
	return text, metadata, nil
}
