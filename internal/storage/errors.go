package storage

import "errors"

var (
	// ErrNotFound is returned by lookups that matched no row.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyText rejects content with no text; the semantic layer never
	// stores empty records.
	ErrEmptyText = errors.New("content text is empty")

	// ErrDuplicateHash is returned when a source-table insert carries the
	// same hash as the immediately preceding row. Callers treat it as
	// normal control flow (the observation is a re-capture, not an error).
	ErrDuplicateHash = errors.New("hash equals previous row")

	// ErrInvalidSource rejects sources outside {screen, clipboard, file}.
	ErrInvalidSource = errors.New("invalid content source")

	// ErrInvalidSpan rejects entity mentions whose span falls outside the
	// parent text.
	ErrInvalidSpan = errors.New("entity span out of bounds")
)
