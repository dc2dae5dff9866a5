package server

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageSeparator joins extracted pages in page order.
const pageSeparator = "\n\n"

// extractPDFText pulls the plain text out of a PDF, page by page. Corrupt
// or unreadable files return an error; pages that fail individually are
// skipped so one bad page does not sink the whole statement.
func extractPDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs instead of
	// returning an error.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("open pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	fonts := make(map[string]*pdf.Font)
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(fonts)
		if pageErr != nil {
			continue
		}
		trimmed := strings.TrimSpace(pageText)
		if trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	combined := strings.TrimSpace(strings.Join(pages, pageSeparator))
	if combined == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return combined, nil
}
