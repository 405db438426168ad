// Package pdfx derives page-scoped plain text from PDF bytes.
package pdfx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Page struct {
	Number int
	Text   string
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the ordered (page number, text) pairs of a PDF. Pages whose
// text is only whitespace are dropped; a document with no extractable text
// yields an empty slice. Page numbers are 1-based.
func (e *Extractor) Extract(data []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}

	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			// One unreadable page does not fail the document.
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: txt})
	}
	return pages, nil
}
