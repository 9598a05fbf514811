package entities

import (
	"context"
	"regexp"
	"strings"

	"github.com/unified-ai/core/internal/storage"
)

// HeuristicExtractor tags entities with compiled patterns and small
// gazetteers. It is deliberately conservative: a precision-leaning rule
// set beats a recall-leaning one here, because false spans pollute the
// entity graph permanently while missed spans cost nothing.
type HeuristicExtractor struct {
	datePattern   *regexp.Regexp
	moneyPattern  *regexp.Regexp
	properPattern *regexp.Regexp
	orgSuffixes   []string
	geo           map[string]struct{}
}

var dateWords = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|` +
	`Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

// NewHeuristicExtractor compiles the rule set.
func NewHeuristicExtractor() *HeuristicExtractor {
	geoNames := []string{
		"United States", "United Kingdom", "Germany", "France", "Japan", "China",
		"India", "Canada", "Australia", "Brazil", "Russia", "Mexico",
		"London", "Paris", "Berlin", "Tokyo", "Beijing", "Moscow",
		"New York", "San Francisco", "Washington", "Seattle", "Austin", "Boston",
		"Europe", "Asia", "Africa", "America",
	}
	geo := make(map[string]struct{}, len(geoNames))
	for _, n := range geoNames {
		geo[n] = struct{}{}
	}
	return &HeuristicExtractor{
		datePattern: regexp.MustCompile(
			`\b(?:\d{4}-\d{2}-\d{2}` + // ISO dates
				`|\d{1,2}/\d{1,2}/\d{2,4}` + // US dates
				`|` + dateWords + `\.? \d{1,2}(?:st|nd|rd|th)?(?:,? \d{4})?` + // "March 3, 2026"
				`|\d{1,2}:\d{2}(?::\d{2})?\s?(?:AM|PM|am|pm)?` + // times
				`)\b`),
		moneyPattern: regexp.MustCompile(
			`(?:[$€£¥]\s?\d[\d,]*(?:\.\d+)?[kKmMbB]?` +
				`|\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|JPY|dollars|euros|pounds)\b)`),
		properPattern: regexp.MustCompile(
			`\b[A-Z][a-z]+(?:[ \t][A-Z][a-z]+)*\b`),
		orgSuffixes: []string{
			"Inc", "Inc.", "Corp", "Corp.", "LLC", "Ltd", "Ltd.", "GmbH",
			"Co", "Co.", "Labs", "Systems", "Technologies", "Software",
		},
		geo: geo,
	}
}

func (e *HeuristicExtractor) IsAvailable() bool { return true }

// Extract runs all rules and returns sorted, non-overlapping spans.
// Pattern kinds (date, money) win over proper-noun guesses on overlap
// because they are the more reliable signal.
func (e *HeuristicExtractor) Extract(_ context.Context, text string) ([]storage.EntityMention, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var mentions []storage.EntityMention
	add := func(start, end int, kind storage.EntityKind, label string) {
		mentions = append(mentions, storage.EntityMention{
			Text:        text[start:end],
			Kind:        kind,
			SpanStart:   start,
			SpanEnd:     end,
			SourceLabel: label,
		})
	}

	for _, m := range e.datePattern.FindAllStringIndex(text, -1) {
		add(m[0], m[1], storage.EntityDate, "DATE")
	}
	for _, m := range e.moneyPattern.FindAllStringIndex(text, -1) {
		add(m[0], m[1], storage.EntityMoney, "MONEY")
	}

	for _, m := range e.properPattern.FindAllStringIndex(text, -1) {
		span := text[m[0]:m[1]]
		switch {
		case e.isGeo(span):
			add(m[0], m[1], storage.EntityGeopolitical, "GPE")
		case e.hasOrgSuffix(span):
			add(m[0], m[1], storage.EntityOrg, "ORG")
		case strings.Contains(span, " ") && m[0] > 0 && !startsSentence(text, m[0]):
			// Multi-word title-cased runs mid-sentence read as names.
			// Sentence-initial runs are skipped: ordinary words are
			// capitalized there too.
			add(m[0], m[1], storage.EntityPerson, "PERSON")
		case isLikelyName(span) && m[0] > 0 && !startsSentence(text, m[0]):
			add(m[0], m[1], storage.EntityPerson, "PERSON")
		}
	}

	return sortAndDropOverlaps(mentions), nil
}

func (e *HeuristicExtractor) isGeo(span string) bool {
	_, ok := e.geo[span]
	return ok
}

func (e *HeuristicExtractor) hasOrgSuffix(span string) bool {
	words := strings.Fields(span)
	if len(words) < 2 {
		return false
	}
	last := words[len(words)-1]
	for _, suffix := range e.orgSuffixes {
		if last == suffix {
			return true
		}
	}
	return false
}

// commonCapitalized filters single capitalized words that are almost
// never person names in captured text.
var commonCapitalized = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Those": {}, "There": {},
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {}, "Friday": {},
	"Saturday": {}, "Sunday": {}, "Today": {}, "Tomorrow": {}, "Yesterday": {},
	"Hello": {}, "Dear": {}, "Thanks": {}, "Regards": {}, "Meeting": {},
	"January": {}, "February": {}, "March": {}, "April": {}, "May": {},
	"June": {}, "July": {}, "August": {}, "September": {}, "October": {},
	"November": {}, "December": {},
}

func isLikelyName(span string) bool {
	if strings.Contains(span, " ") {
		return false
	}
	if _, common := commonCapitalized[span]; common {
		return false
	}
	return len(span) >= 3
}

// startsSentence reports whether offset sits at a sentence boundary:
// preceded only by whitespace after ., !, ?, a newline, or start of text.
func startsSentence(text string, offset int) bool {
	i := offset - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\t') {
		i--
	}
	if i < 0 {
		return true
	}
	switch text[i] {
	case '.', '!', '?', '\n', '\r':
		return true
	}
	return false
}
