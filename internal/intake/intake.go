package intake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"

	// DefaultMaxPages bounds how many PDF pages are read.
	DefaultMaxPages = 50
)

// Document is the result of reading one input.
type Document struct {
	ID          string `json:"document_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Pages       int    `json:"pages"`
	PagesRead   int    `json:"pages_read"`
	Text        string `json:"-"`
}

// Reader extracts text from text and PDF documents.
type Reader struct {
	maxPages int
	logger   *slog.Logger
}

// New creates a Reader. A non-positive maxPages uses DefaultMaxPages.
func New(maxPages int, logger *slog.Logger) *Reader {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Reader{
		maxPages: maxPages,
		logger:   logger.With("system", "intake"),
	}
}

// DocumentID derives a document id from a file name by dropping the
// directory and extension.
func DocumentID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile reads the document at path.
func (r *Reader) ReadFile(ctx context.Context, path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return r.Read(ctx, filepath.Base(path), data)
}

// Read extracts text from data. name supplies the extension hint and the
// document id. An empty result is not an error.
func (r *Reader) Read(ctx context.Context, name string, data []byte) (Document, error) {
	doc := Document{
		ID:          DocumentID(name),
		Filename:    name,
		ContentType: detectContentType(name, data),
	}

	switch doc.ContentType {
	case ContentTypePDF:
		text, pages, read, err := r.readPDF(data)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, name, err)
		}
		doc.Text, doc.Pages, doc.PagesRead = text, pages, read
	case ContentTypeText:
		doc.Text = string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
		doc.Pages, doc.PagesRead = 1, 1
	default:
		return Document{}, fmt.Errorf("%w: %s (%s)", ErrUnsupported, name, doc.ContentType)
	}

	r.logger.InfoContext(
		ctx, "document read",
		"document_id", doc.ID,
		"content_type", doc.ContentType,
		"pages", doc.Pages,
		"pages_read", doc.PagesRead,
		"chars", utf8.RuneCountInString(doc.Text),
	)
	return doc, nil
}

func detectContentType(name string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return ContentTypePDF
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ContentTypePDF
	case ".txt", ".text", ".md":
		return ContentTypeText
	}

	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "text/plain") {
		return ContentTypeText
	}
	return ct
}
