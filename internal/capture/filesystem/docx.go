package filesystem

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxTagPattern    = regexp.MustCompile(`<[^>]+>`)
	docxParaPattern   = regexp.MustCompile(`</w:p>`)
	docxRowPattern    = regexp.MustCompile(`</w:tr>`)
	docxCellPattern   = regexp.MustCompile(`</w:tc>`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)
	docxEntityReplace = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'",
	)
)

// extractDOCX reads a .docx file's paragraph and table text. Table cells
// join with " | " and rows with newlines, so tabular content stays
// line-oriented for the FTS index.
func extractDOCX(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx %s: %w", path, err)
	}
	defer doc.Close()

	// The library exposes the raw document XML; structure markers are
	// rewritten to text separators before the tags are stripped.
	raw := doc.Editable().GetContent()
	raw = docxCellPattern.ReplaceAllString(raw, " | </w:tc>")
	raw = docxRowPattern.ReplaceAllString(raw, "\n</w:tr>")
	raw = docxParaPattern.ReplaceAllString(raw, "\n</w:p>")
	text := docxTagPattern.ReplaceAllString(raw, "")
	text = docxEntityReplace.Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "|"))
		lines = append(lines, line)
	}
	out := multiNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out), nil
}
