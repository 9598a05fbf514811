package privacy

import (
	"regexp"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// credentialFinding is a Gitleaks detection converted into this
// package's offset-based finding shape.
type credentialFinding struct {
	Kind     string // gitleaks rule ID, e.g. "github-pat"
	RuleDesc string
	Start    int
	End      int
	Match    string
}

// detectCredentials scans content with Gitleaks' default 800+ pattern
// ruleset. Findings carry byte offsets rather than line/column so they
// can be merged with patternRules matches in the same coordinate space.
func detectCredentials(content string, allowlist *Allowlist) ([]credentialFinding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}

	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}

	gitleaksFindings := detector.DetectString(content)

	result := make([]credentialFinding, 0, len(gitleaksFindings))
	for _, f := range gitleaksFindings {
		start, end := findByteOffset(content, f.StartLine, f.StartColumn, f.EndLine, f.EndColumn, f.Secret)
		if start < 0 {
			continue
		}
		result = append(result, credentialFinding{
			Kind:     f.RuleID,
			RuleDesc: f.Description,
			Start:    start,
			End:      end,
			Match:    f.Secret,
		})
	}
	return result, nil
}

// findByteOffset recovers byte offsets for a Gitleaks finding, which
// reports 1-indexed line/column pairs rather than byte offsets. Falls
// back to a direct substring search for the matched secret when the
// line/column math doesn't line up; Gitleaks and this package can
// disagree on CRLF line splitting.
func findByteOffset(content string, startLine, startCol, endLine, endCol int, secret string) (int, int) {
	lines := splitLinesKeepEnds(content)
	if startLine < 1 || startLine > len(lines) {
		return fallbackSearch(content, secret)
	}

	offset := 0
	for i := 0; i < startLine-1; i++ {
		offset += len(lines[i])
	}
	start := offset + startCol
	var end int
	if endLine == startLine {
		end = offset + endCol
	} else if endLine >= 1 && endLine <= len(lines) {
		endOffset := 0
		for i := 0; i < endLine-1; i++ {
			endOffset += len(lines[i])
		}
		end = endOffset + endCol
	} else {
		end = start + len(secret)
	}

	if start < 0 || end > len(content) || start >= end {
		return fallbackSearch(content, secret)
	}
	return start, end
}

func fallbackSearch(content, secret string) (int, int) {
	if secret == "" {
		return -1, -1
	}
	idx := strings.Index(content, secret)
	if idx < 0 {
		return -1, -1
	}
	return idx, idx + len(secret)
}

func splitLinesKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// applyAllowlist merges allowlist patterns into a Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{Description: "unified-ai user/project allowlist"}

	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
}
