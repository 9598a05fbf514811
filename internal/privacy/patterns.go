package privacy

import "regexp"

// patternRule is a hand-written detector for PII kinds Gitleaks does not
// cover (it is tuned for credentials, not personal data): an ID, a
// compiled pattern, and a redaction token.
type patternRule struct {
	Kind    string
	pattern *regexp.Regexp
	// luhnGroup, if >= 0, names a submatch group that must pass a Luhn
	// checksum for the match to count (used by the credit-card rule to
	// avoid flagging arbitrary 16-digit numbers).
	luhnGroup int
}

// patternRules returns the compiled PII detectors. Ordered roughly by
// specificity; order does not affect correctness since all matches are
// collected before any replacement happens.
func patternRules() []patternRule {
	return []patternRule{
		{
			Kind:      "EMAIL",
			pattern:   regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			luhnGroup: -1,
		},
		{
			// International numbers lead with an E.164 country prefix.
			Kind:      "INTL_PHONE",
			pattern:   regexp.MustCompile(`\+[0-9]{1,3}[-.\s]?\(?[0-9]{2,4}\)?(?:[-.\s]?[0-9]{2,4}){1,4}`),
			luhnGroup: -1,
		},
		{
			// US numbers without a country prefix.
			Kind:      "PHONE",
			pattern:   regexp.MustCompile(`\(?\b[0-9]{3}\)?[-.\s][0-9]{3}[-.\s][0-9]{4}\b`),
			luhnGroup: -1,
		},
		{
			Kind:      "SSN",
			pattern:   regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`),
			luhnGroup: -1,
		},
		{
			Kind:      "CREDIT_CARD",
			pattern:   regexp.MustCompile(`\b(?:[0-9]{4}[-\s]?){3}[0-9]{1,4}\b`),
			luhnGroup: 0,
		},
		{
			Kind:      "IP_ADDRESS",
			pattern:   regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
			luhnGroup: -1,
		},
	}
}

// LuhnCheck validates a digit string (spaces/dashes allowed) against the
// Luhn checksum used by payment card numbers.
func LuhnCheck(digits string) bool {
	var clean []byte
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c >= '0' && c <= '9' {
			clean = append(clean, c)
		} else if c == '-' || c == ' ' {
			continue
		} else {
			return false
		}
	}
	if len(clean) < 12 || len(clean) > 19 {
		return false
	}

	sum := 0
	alt := false
	for i := len(clean) - 1; i >= 0; i-- {
		d := int(clean[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
