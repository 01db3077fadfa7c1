// Package parser extracts text from uploaded PDFs and splits it for retrieval.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// PageSeparator follows every page in extracted text.
const PageSeparator = "\n\n"

var (
	// ErrNotFound indicates the PDF path does not exist.
	ErrNotFound = errors.New("pdf not found")

	// ErrExtraction indicates the file could not be decoded as a PDF.
	ErrExtraction = errors.New("pdf extraction failed")
)

// pageLoader yields one document per page, in page order.
type pageLoader interface {
	Load(ctx context.Context) ([]schema.Document, error)
}

// newPageLoader is swapped out in tests.
var newPageLoader = func(r io.ReaderAt, size int64) pageLoader {
	return documentloaders.NewPDF(r, size)
}

// Extract returns the text of every page, each followed by PageSeparator.
func Extract(ctx context.Context, r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: decoder panic: %v", ErrExtraction, rec)
		}
	}()

	pages, err := newPageLoader(r, size).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	var b strings.Builder
	for _, page := range pages {
		b.WriteString(page.PageContent)
		b.WriteString(PageSeparator)
	}
	return b.String(), nil
}

// ExtractFile opens path and extracts its text.
func ExtractFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	text, err := Extract(ctx, f, info.Size())
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("pdf extracted", "path", path, "bytes", info.Size(), "text_len", len(text))
	return text, nil
}
