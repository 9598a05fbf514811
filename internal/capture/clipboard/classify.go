package clipboard

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/unified-ai/core/internal/storage"
)

var (
	urlPattern   = regexp.MustCompile(`^(?:https?://\S+|www\.\S+)$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,}$`)
	pathPattern  = regexp.MustCompile(`^(?:/|[A-Za-z]:\\|~/).*$`)

	// codeIndicators are signatures of common languages; one hit
	// classifies the content as code.
	codeIndicators = []*regexp.Regexp{
		regexp.MustCompile(`\bdef\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunction\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunc\s+\w+\s*\(`),
		regexp.MustCompile(`\bclass\s+\w+`),
		regexp.MustCompile(`\bimport\s+\w+`),
		regexp.MustCompile(`\bfrom\s+\w+\s+import\b`),
		regexp.MustCompile(`\bconst\s+\w+\s*=`),
		regexp.MustCompile(`\blet\s+\w+\s*=`),
		regexp.MustCompile(`\bvar\s+\w+\s*=`),
		regexp.MustCompile(`=>`),
		regexp.MustCompile(`[{}\[\];]`),
	}
)

// Classify buckets clipboard text into one content type with a fixed
// rule order: url, email, phone, path, structured data (JSON, XML, CSV),
// code (30% indent ratio over more than two lines, or a signature hit),
// then text. The first matching rule wins.
func Classify(content string) storage.ClipboardType {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return storage.ClipText
	}

	if urlPattern.MatchString(strings.ToLower(trimmed)) {
		return storage.ClipURL
	}
	if emailPattern.MatchString(trimmed) {
		return storage.ClipEmail
	}
	if phonePattern.MatchString(trimmed) {
		return storage.ClipPhone
	}
	if pathPattern.MatchString(trimmed) &&
		(strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`)) {
		return storage.ClipPath
	}

	if isStructuredData(content, trimmed) {
		return storage.ClipData
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 2 {
		indented := 0
		for _, line := range lines {
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				indented++
			}
		}
		if float64(indented) > float64(len(lines))*0.3 {
			return storage.ClipCode
		}
	}
	for _, pattern := range codeIndicators {
		if pattern.MatchString(content) {
			return storage.ClipCode
		}
	}

	return storage.ClipText
}

// isStructuredData recognizes JSON (must parse), XML-ish content, and
// CSV (consistent comma counts across the first lines).
func isStructuredData(content, trimmed string) bool {
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return true
		}
	}
	if strings.HasPrefix(trimmed, "<") {
		return true
	}

	if strings.Contains(content, ",") && strings.Contains(content, "\n") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) > 1 {
			sample := lines
			if len(sample) > 5 {
				sample = sample[:5]
			}
			first := strings.Count(sample[0], ",")
			if first == 0 {
				return false
			}
			for _, line := range sample[1:] {
				if strings.Count(line, ",") != first {
					return false
				}
			}
			return true
		}
	}
	return false
}
