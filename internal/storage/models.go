package storage

import "time"

// Source identifies which capture daemon produced a piece of content.
type Source string

const (
	SourceScreen    Source = "screen"
	SourceClipboard Source = "clipboard"
	SourceFile      Source = "file"
)

// Valid reports whether s is one of the three capture sources.
func (s Source) Valid() bool {
	switch s {
	case SourceScreen, SourceClipboard, SourceFile:
		return true
	}
	return false
}

// Metadata is the opaque key/value bag attached to every record. Values
// are JSON-encoded on write, so ints and bools survive a round trip.
type Metadata map[string]any

// ContentRecord is the unified semantic-layer row every observation is
// mirrored into. SourceRef points at the row in the source-specific
// table (screen_captures, clipboard_entries, file_events) that this
// record was derived from; it may dangle after a retention sweep of the
// source table, which readers must tolerate.
type ContentRecord struct {
	ID         int64
	Text       string
	Source     Source
	SourceRef  *int64
	CapturedAt time.Time
	Metadata   Metadata
}

// EntityKind is the canonical entity label set.
type EntityKind string

const (
	EntityPerson       EntityKind = "person"
	EntityOrg          EntityKind = "org"
	EntityDate         EntityKind = "date"
	EntityMoney        EntityKind = "money"
	EntityGeopolitical EntityKind = "geopolitical"
	EntityProduct      EntityKind = "product"
	EntityOther        EntityKind = "other"
)

// EntityMention is a named-entity span inside one ContentRecord's text.
// Spans are byte offsets into ContentRecord.Text and never overlap
// within a record.
type EntityMention struct {
	ID          int64
	ContentID   int64
	Text        string
	Kind        EntityKind
	SpanStart   int
	SpanEnd     int
	SourceLabel string
}

// ScreenCapture is one OCR'd framebuffer snapshot.
type ScreenCapture struct {
	ID             int64
	CapturedAt     time.Time
	PerceptualHash string
	ExtractedText  string
	ActiveWindow   string
	ActiveApp      string
	Metadata       Metadata
}

// ClipboardType is the deterministic classification of clipboard text.
type ClipboardType string

const (
	ClipText  ClipboardType = "text"
	ClipCode  ClipboardType = "code"
	ClipURL   ClipboardType = "url"
	ClipData  ClipboardType = "data"
	ClipEmail ClipboardType = "email"
	ClipPhone ClipboardType = "phone"
	ClipPath  ClipboardType = "path"
)

// ClipboardEntry is one captured clipboard transition.
type ClipboardEntry struct {
	ID             int64
	CapturedAt     time.Time
	ContentHash    string // SHA-256 hex of the text
	Text           string
	ClassifiedType ClipboardType
	SourceApp      string
	Metadata       Metadata
}

// FileOperation is the kind of filesystem mutation observed.
type FileOperation string

const (
	FileCreated  FileOperation = "created"
	FileModified FileOperation = "modified"
	FileDeleted  FileOperation = "deleted"
)

// FileKind is the coarse format class of a watched file.
type FileKind string

const (
	FileKindText     FileKind = "text"
	FileKindCode     FileKind = "code"
	FileKindPDF      FileKind = "pdf"
	FileKindDocument FileKind = "document"
	FileKindUnknown  FileKind = "unknown"
)

// FileEvent is one create/modify/delete observation in a watched tree.
// ContentHash and Text are nil for deletions and for binaries whose text
// could not be extracted.
type FileEvent struct {
	ID          int64
	CapturedAt  time.Time
	FilePath    string
	FileName    string
	Operation   FileOperation
	ContentHash *string
	Text        *string
	Kind        FileKind
	SizeBytes   int64
	Metadata    Metadata
}

// FileVersion is one entry in a path's modification chain. Versions per
// path are contiguous starting at 1 and a given content hash appears at
// most once per path.
type FileVersion struct {
	ID          int64
	FilePath    string
	Version     int
	ContentHash string
	CapturedAt  time.Time
	SizeBytes   int64
}

// SearchResult is a lexical search hit: the full record plus a short
// highlighted preview produced by the FTS index.
type SearchResult struct {
	Record  ContentRecord
	Preview string
}

// Stats summarizes the store for the CLI's --stats surface.
type Stats struct {
	ContentRecords   int64            `json:"content_records"`
	EntityMentions   int64            `json:"entity_mentions"`
	ScreenCaptures   int64            `json:"screen_captures"`
	ClipboardEntries int64            `json:"clipboard_entries"`
	FileEvents       int64            `json:"file_events"`
	FileVersions     int64            `json:"file_versions"`
	BySource         map[Source]int64 `json:"by_source"`
	OldestContent    *time.Time       `json:"oldest_content,omitempty"`
	NewestContent    *time.Time       `json:"newest_content,omitempty"`
	DBSizeBytes      int64            `json:"db_size_bytes"`
}
