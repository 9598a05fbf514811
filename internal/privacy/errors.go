// Package privacy implements the capture pipeline's PII/secret redaction
// and window/app suppression filter. Credential detection is backed by
// Gitleaks; personal-data kinds it does not cover come from a pattern
// rule table in this package.
package privacy

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist regex pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidAllowlist indicates an allowlist file could not be parsed.
	ErrInvalidAllowlist = errors.New("invalid allowlist format")
)
