package privacy

import (
	"sort"
	"strings"
)

// Finding is a single PII or credential detection, in the content's own
// byte-offset coordinate space.
type Finding struct {
	Kind  string // "EMAIL", "CREDIT_CARD", or a gitleaks rule ID
	Start int
	End   int
}

// Filter composes Gitleaks' credential detector with the pattern-based
// PII detectors for kinds Gitleaks does not cover, merging the two
// finding sets into a single redaction pass.
type Filter struct {
	EnabledKinds map[string]bool
	Allowlist    *Allowlist
}

// NewFilter builds a Filter that only redacts the given PII kinds
// (credential kinds from Gitleaks are always enabled since they have no
// corresponding entry in enabledKinds; leaking a credential is worse
// than over-redacting it).
func NewFilter(enabledKinds []string, allowlist *Allowlist) *Filter {
	enabled := make(map[string]bool, len(enabledKinds))
	for _, k := range enabledKinds {
		enabled[k] = true
	}
	return &Filter{EnabledKinds: enabled, Allowlist: allowlist}
}

// Redact scans content for credentials and PII, replaces each with a
// `[<KIND> REDACTED]` token, and returns the redacted text plus the
// findings that were redacted (without their matched values, so the
// findings themselves never carry the secret).
//
// On overlap, the Gitleaks credential match wins over a pattern match
// since credential patterns are more specific than generic PII shapes.
// Replacement walks right-to-left so earlier offsets stay valid.
func (f *Filter) Redact(content string) (string, []Finding) {
	creds, err := detectCredentials(content, f.Allowlist)
	if err != nil {
		creds = nil
	}

	var findings []Finding
	for _, c := range creds {
		findings = append(findings, Finding{Kind: c.Kind, Start: c.Start, End: c.End})
	}

	for _, rule := range patternRules() {
		if !f.kindEnabled(rule.Kind) {
			continue
		}
		matches := rule.pattern.FindAllStringIndex(content, -1)
		for _, m := range matches {
			if rule.Kind == "CREDIT_CARD" && !LuhnCheck(content[m[0]:m[1]]) {
				continue
			}
			findings = append(findings, Finding{Kind: rule.Kind, Start: m[0], End: m[1]})
		}
	}

	if len(findings) == 0 {
		return content, nil
	}

	findings = dropOverlaps(findings)

	sort.Slice(findings, func(i, j int) bool { return findings[i].Start > findings[j].Start })

	redacted := content
	for _, find := range findings {
		if find.Start < 0 || find.End > len(redacted) || find.Start >= find.End {
			continue
		}
		token := tokenFor(find.Kind)
		redacted = redacted[:find.Start] + token + redacted[find.End:]
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return redacted, findings
}

// Detect returns the findings Redact would act on, without altering the
// content. Useful for callers that only need to know whether text is
// sensitive.
func (f *Filter) Detect(content string) []Finding {
	_, findings := f.Redact(content)
	return findings
}

func (f *Filter) kindEnabled(kind string) bool {
	if len(f.EnabledKinds) == 0 {
		return true
	}
	return f.EnabledKinds[toLowerKind(kind)]
}

func toLowerKind(kind string) string {
	switch kind {
	case "EMAIL":
		return "email"
	case "PHONE":
		return "phone"
	case "INTL_PHONE":
		return "intl_phone"
	case "SSN":
		return "ssn"
	case "CREDIT_CARD":
		return "credit_card"
	case "IP_ADDRESS":
		return "ip_address"
	default:
		return kind
	}
}

func tokenFor(kind string) string {
	switch kind {
	case "IP_ADDRESS":
		return "[IP REDACTED]"
	case "EMAIL", "PHONE", "INTL_PHONE", "SSN", "CREDIT_CARD":
		return "[" + kind + " REDACTED]"
	default:
		return "[" + credentialKind(kind) + " REDACTED]"
	}
}

// credentialKind maps a Gitleaks rule ID onto a named credential kind so
// different credential classes stay distinguishable in redacted text.
// The rule ID itself is never echoed back into captured content; rules
// outside the named classes collapse to the generic CREDENTIAL.
func credentialKind(ruleID string) string {
	switch {
	case strings.Contains(ruleID, "github"):
		return "GITHUB_TOKEN"
	case strings.Contains(ruleID, "aws"):
		return "AWS_KEY"
	case strings.Contains(ruleID, "jwt"):
		return "JWT"
	case strings.Contains(ruleID, "password"):
		return "PASSWORD"
	case strings.Contains(ruleID, "bearer"), strings.Contains(ruleID, "auth-header"):
		return "BEARER_TOKEN"
	case strings.Contains(ruleID, "api-key"), strings.Contains(ruleID, "api-token"),
		strings.Contains(ruleID, "apikey"):
		return "API_KEY"
	default:
		return "CREDENTIAL"
	}
}

// dropOverlaps removes pattern-rule findings that overlap a credential
// (gitleaks) finding, keeping the credential finding. Findings are
// assumed unsorted on entry.
func dropOverlaps(findings []Finding) []Finding {
	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })

	isCredential := func(kind string) bool {
		switch kind {
		case "EMAIL", "PHONE", "INTL_PHONE", "SSN", "CREDIT_CARD", "IP_ADDRESS":
			return false
		default:
			return true
		}
	}

	var credentials, patterns []Finding
	for _, find := range findings {
		if isCredential(find.Kind) {
			credentials = append(credentials, find)
		} else {
			patterns = append(patterns, find)
		}
	}

	kept := make([]Finding, 0, len(findings))
	kept = append(kept, credentials...)

	for _, p := range patterns {
		overlaps := false
		for _, c := range credentials {
			if p.Start < c.End && c.Start < p.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, p)
		}
	}

	return mergeFindingOverlaps(kept)
}

// mergeFindingOverlaps merges overlapping or adjacent findings of the
// same resulting token so a single redaction token replaces them,
// preserving idempotence when content is redacted twice.
func mergeFindingOverlaps(findings []Finding) []Finding {
	if len(findings) <= 1 {
		return findings
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })

	merged := []Finding{findings[0]}
	for _, f := range findings[1:] {
		last := &merged[len(merged)-1]
		if f.Start <= last.End {
			if f.End > last.End {
				last.End = f.End
			}
			continue
		}
		merged = append(merged, f)
	}
	return merged
}
