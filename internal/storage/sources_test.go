package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func TestClipboardConsecutiveDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := ClipboardEntry{
		ContentHash:    sha256hex("hello"),
		Text:           "hello",
		ClassifiedType: ClipText,
	}

	_, err := s.InsertClipboardEntry(ctx, entry)
	require.NoError(t, err)

	// Identical hash immediately after: rejected.
	_, err = s.InsertClipboardEntry(ctx, entry)
	assert.ErrorIs(t, err, ErrDuplicateHash)

	// Case differs, hash differs: accepted.
	_, err = s.InsertClipboardEntry(ctx, ClipboardEntry{
		ContentHash:    sha256hex("Hello"),
		Text:           "Hello",
		ClassifiedType: ClipText,
	})
	require.NoError(t, err)

	// The original hash is no longer "previous", so it is accepted again.
	_, err = s.InsertClipboardEntry(ctx, entry)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.ClipboardEntries)
}

func TestClipboardKnownHashLiteral(t *testing.T) {
	// SHA-256("hello"), pinned for cross-build stability.
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		sha256hex("hello"))
}

func TestScreenConsecutiveDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cap1 := ScreenCapture{PerceptualHash: "abc123", ExtractedText: "terminal"}
	_, err := s.InsertScreenCapture(ctx, cap1)
	require.NoError(t, err)

	_, err = s.InsertScreenCapture(ctx, cap1)
	assert.ErrorIs(t, err, ErrDuplicateHash)

	_, err = s.InsertScreenCapture(ctx, ScreenCapture{PerceptualHash: "def456"})
	require.NoError(t, err)
}

func TestFileVersionChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/watch/notes.txt"

	strp := func(v string) *string { return &v }

	// Create: no version row.
	h1 := sha256hex("v1")
	_, version, err := s.InsertFileEvent(ctx, FileEvent{
		FilePath: path, FileName: "notes.txt", Operation: FileCreated,
		ContentHash: strp(h1), Text: strp("v1"), Kind: FileKindText, SizeBytes: 2,
	})
	require.NoError(t, err)
	assert.Zero(t, version)

	// First modify: version 1.
	h2 := sha256hex("v2")
	_, version, err = s.InsertFileEvent(ctx, FileEvent{
		FilePath: path, FileName: "notes.txt", Operation: FileModified,
		ContentHash: strp(h2), Text: strp("v2"), Kind: FileKindText, SizeBytes: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// Second modify: version 2.
	h3 := sha256hex("v3")
	_, version, err = s.InsertFileEvent(ctx, FileEvent{
		FilePath: path, FileName: "notes.txt", Operation: FileModified,
		ContentHash: strp(h3), Text: strp("v3"), Kind: FileKindText, SizeBytes: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// Re-modify with an already-versioned hash: no new version row.
	_, version, err = s.InsertFileEvent(ctx, FileEvent{
		FilePath: path, FileName: "notes.txt", Operation: FileModified,
		ContentHash: strp(h3), Text: strp("v3"), Kind: FileKindText, SizeBytes: 2,
	})
	require.NoError(t, err)
	assert.Zero(t, version)

	// Delete carries null text and hash, no version row.
	_, version, err = s.InsertFileEvent(ctx, FileEvent{
		FilePath: path, FileName: "notes.txt", Operation: FileDeleted,
	})
	require.NoError(t, err)
	assert.Zero(t, version)

	versions, err := s.FileVersions(ctx, path)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version, "versions must be contiguous from 1")
	}
	assert.Equal(t, h2, versions[0].ContentHash)
	assert.Equal(t, h3, versions[1].ContentHash)
}

func TestFileEventSearchCoversNameAndPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	text := "quarterly revenue forecast"
	_, _, err := s.InsertFileEvent(ctx, FileEvent{
		FilePath: "/docs/finance/q3-forecast.txt", FileName: "q3-forecast.txt",
		Operation: FileCreated, Text: &text, Kind: FileKindText,
	})
	require.NoError(t, err)

	byText, err := s.SearchFileEvents(ctx, "revenue", 5)
	require.NoError(t, err)
	require.Len(t, byText, 1)

	byName, err := s.SearchFileEvents(ctx, "forecast", 5)
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestMissingContentRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.InsertClipboardEntry(ctx, ClipboardEntry{
		ContentHash: sha256hex("a"), Text: "a", ClassifiedType: ClipText,
	})
	require.NoError(t, err)
	id2, err := s.InsertClipboardEntry(ctx, ClipboardEntry{
		ContentHash: sha256hex("b"), Text: "b", ClassifiedType: ClipText,
	})
	require.NoError(t, err)

	// Mirror only the first entry into the semantic layer.
	_, _, err = s.AddContent(ctx, ContentInput{
		Text: "a", Source: SourceClipboard, SourceRef: &id1,
	})
	require.NoError(t, err)

	missing, err := s.MissingContentRefs(ctx, SourceClipboard, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{id2}, missing)
}

func TestSourceRowLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertScreenCapture(ctx, ScreenCapture{
		PerceptualHash: "h1", ExtractedText: "editor", ActiveWindow: "main.go", ActiveApp: "vim",
		Metadata: Metadata{"monitor_index": 1},
	})
	require.NoError(t, err)

	got, err := s.GetScreenCapture(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "editor", got.ExtractedText)
	assert.Equal(t, "vim", got.ActiveApp)
	// Metadata round-trips through JSON; numbers come back as float64.
	assert.EqualValues(t, 1, got.Metadata["monitor_index"])

	_, err = s.GetScreenCapture(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}
