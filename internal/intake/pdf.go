package intake

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// readPDF validates the document and counts its pages with pdfcpu, then
// reads the plain text of the first maxPages pages.
func (r *Reader) readPDF(data []byte) (text string, pages, read int, err error) {
	pages, err = api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", 0, 0, fmt.Errorf("page count: %w", err)
	}
	if pages == 0 {
		return "", 0, 0, nil
	}

	read = min(pages, r.maxPages)
	if read < pages {
		r.logger.Warn("pdf truncated to page limit", "pages", pages, "max_pages", r.maxPages)
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, 0, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= read; i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(pageFonts(page))
		if err != nil {
			r.logger.Warn("pdf page text unreadable", "page", i, "error", err)
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), pages, read, nil
}

func pageFonts(page pdf.Page) map[string]*pdf.Font {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}
	return fonts
}
