package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/classpulse/clo-analysis/internal/fault"
)

// extractPDF pulls plain text out of a PDF, page by page. Pages whose text
// cannot be decoded (image-only pages, odd encodings) are skipped rather
// than failing the whole document; a structurally unreadable file is a
// CorruptDocument.
func extractPDF(data []byte) (text string, pages int, err error) {
	// The pdf library panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.CorruptDocument, "cannot read PDF structure: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fault.Wrap(fault.CorruptDocument, err, "cannot open PDF")
	}

	pages = reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageText)
	}

	if pages > 0 && b.Len() == 0 {
		return "", 0, fault.New(fault.CorruptDocument, "no extractable text in %d pages (scanned or encrypted PDF?)", pages)
	}
	return b.String(), pages, nil
}
