package filesystem

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFPageOCR recovers text from a rendered page when the embedded text
// layer is empty (scanned documents). Optional; nil disables the
// fallback.
type PDFPageOCR func(ctx context.Context, path string, pageNum int) (string, error)

// PageResult is one page's extraction outcome. Err is per-page so a
// single corrupt page does not discard the rest of the document.
type PageResult struct {
	PageNum int // 1-based
	Text    string
	Err     error
}

// extractPDF joins all pages' text with blank lines between pages. A
// page-level failure skips that page; only a document-level failure
// (unreadable file, reported as PageNum 0) is an error.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	var pages []string
	for page := range e.ExtractPDFPages(ctx, path) {
		if page.Err != nil {
			if page.PageNum == 0 {
				return "", page.Err
			}
			continue
		}
		if page.Text != "" {
			pages = append(pages, page.Text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// ExtractPDFPages lazily yields per-page results in page order. Pages
// whose text layer is empty are retried through the configured OCR
// fallback when one is present. The consumer can stop early; remaining
// pages are never touched.
func (e *Extractor) ExtractPDFPages(ctx context.Context, path string) iter.Seq[PageResult] {
	return func(yield func(PageResult) bool) {
		f, r, err := openPDF(path)
		if err != nil {
			yield(PageResult{PageNum: 0, Err: err})
			return
		}
		defer f.Close()

		for i := 1; i <= r.NumPage(); i++ {
			if ctx.Err() != nil {
				yield(PageResult{PageNum: i, Err: ctx.Err()})
				return
			}
			res := PageResult{PageNum: i}
			res.Text, res.Err = extractPage(r, i)
			if res.Err == nil && res.Text == "" && e.PageOCR != nil {
				if ocrText, ocrErr := e.PageOCR(ctx, path, i); ocrErr == nil {
					res.Text = ocrText
				}
			}
			if !yield(res) {
				return
			}
		}
	}
}

func openPDF(path string) (closer interface{ Close() error }, r *pdf.Reader, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return f, r, nil
}

// extractPage isolates the library's panic-prone page parsing.
func extractPage(r *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf page %d: %v", pageNum, rec)
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("pdf page %d: %w", pageNum, err)
	}
	return strings.TrimSpace(content), nil
}
