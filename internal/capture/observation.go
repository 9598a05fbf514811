// Package capture defines the transient observation record the three
// capture daemons emit and the ingestion pipeline consumes. Observations
// are consumed exactly once and never persisted as-is; what survives is
// the source-table row and content mirror the pipeline derives from
// them.
package capture

import (
	"time"

	"github.com/unified-ai/core/internal/storage"
)

// Observation is one detected change from a capture daemon. Exactly one
// of Screen, Clipboard, File is non-nil, matching Source.
type Observation struct {
	Source     storage.Source
	CapturedAt time.Time

	Screen    *ScreenPayload
	Clipboard *ClipboardPayload
	File      *FilePayload
}

// ScreenPayload carries one OCR'd snapshot.
type ScreenPayload struct {
	Text           string
	PerceptualHash string
	Window         string
	App            string
	Width          int
	Height         int
	MonitorIndex   int
}

// ClipboardPayload carries one clipboard transition.
type ClipboardPayload struct {
	Text           string
	ContentHash    string
	ClassifiedType storage.ClipboardType
	SourceApp      string
	Length         int
	LineCount      int
}

// FilePayload carries one filesystem mutation. Text and ContentHash are
// nil for deletions and unextractable binaries.
type FilePayload struct {
	Path        string
	Name        string
	Operation   storage.FileOperation
	ContentHash *string
	Text        *string
	Kind        storage.FileKind
	SizeBytes   int64
}
