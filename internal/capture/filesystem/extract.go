package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding/charmap"

	"github.com/unified-ai/core/internal/storage"
)

// Extension sets, keyed without the leading dot.
var (
	textExtensions = extSet("txt", "md", "markdown", "rst")
	codeExtensions = extSet(
		"py", "js", "ts", "jsx", "tsx", "java", "c", "cpp", "h",
		"cs", "go", "rs", "rb", "php", "swift", "kt", "scala",
		"r", "m", "sh", "bash", "zsh", "fish", "sql", "html",
		"css", "scss", "sass", "less", "xml", "json", "yaml", "yml",
		"toml", "ini", "conf", "cfg",
	)
	documentExtensions = extSet("pdf", "docx", "doc", "rtf", "odt")
)

func extSet(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

// KindOf classifies a path by extension.
func KindOf(path string) storage.FileKind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "pdf" {
		return storage.FileKindPDF
	}
	if _, ok := documentExtensions[ext]; ok {
		return storage.FileKindDocument
	}
	if _, ok := codeExtensions[ext]; ok {
		return storage.FileKindCode
	}
	if _, ok := textExtensions[ext]; ok {
		return storage.FileKindText
	}
	return storage.FileKindUnknown
}

// Supported reports whether the path's extension is one the extractor
// can read. Unsupported files are skipped entirely, not stored as
// unknown blobs.
func Supported(path string, allowed []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	if len(allowed) > 0 {
		for _, a := range allowed {
			if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
				return true
			}
		}
		return false
	}
	if _, ok := textExtensions[ext]; ok {
		return true
	}
	if _, ok := codeExtensions[ext]; ok {
		return true
	}
	_, ok := documentExtensions[ext]
	return ok
}

// ExtractionResult is one file's extracted text, or the reason there is
// none.
type ExtractionResult struct {
	Path string
	Text string
	Kind storage.FileKind
	Err  error
}

// Extractor reads text out of supported formats. The zero value works;
// OCR fields only matter for scanned PDFs.
type Extractor struct {
	// PageOCR, when non-nil, is tried on PDF pages whose embedded text
	// layer is empty. Absent OCR those pages stay empty.
	PageOCR PDFPageOCR
}

// Extract reads one file's text. Plain text and code read directly with
// a latin-1 fallback for non-UTF-8 bytes; structured formats go through
// their format-specific readers.
func (e *Extractor) Extract(ctx context.Context, path string) ExtractionResult {
	kind := KindOf(path)
	res := ExtractionResult{Path: path, Kind: kind}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "pdf":
		res.Text, res.Err = e.extractPDF(ctx, path)
	case "docx":
		res.Text, res.Err = extractDOCX(path)
	case "doc":
		// Legacy binary .doc has no pure-Go reader; the docx reader
		// rejects it. Record the event with empty text rather than
		// skipping the file.
		res.Text, res.Err = "", nil
	case "rtf":
		res.Text, res.Err = extractRTF(path)
	case "odt":
		res.Text, res.Err = extractODT(path)
	default:
		res.Text, res.Err = readTextFile(path)
	}
	return res
}

// ExtractBatch extracts up to maxConcurrent paths in parallel, returning
// results in input order. Individual failures land in their result's Err
// field; the only call-level error is context cancellation.
func (e *Extractor) ExtractBatch(ctx context.Context, paths []string, maxConcurrent int) ([]ExtractionResult, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	results := make([]ExtractionResult, len(paths))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = e.Extract(ctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readTextFile reads a file as UTF-8, decoding as latin-1 when the bytes
// are not valid UTF-8.
func readTextFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// HashText is the canonical content hash: SHA-256 over the UTF-8 bytes,
// lowercase hex.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
