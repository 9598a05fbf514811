package clipboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    storage.ClipboardType
	}{
		{"http url", "https://example.com/page?q=1", storage.ClipURL},
		{"www url", "www.example.com", storage.ClipURL},
		{"email", "user@example.com", storage.ClipEmail},
		{"phone", "+1 (555) 123-4567", storage.ClipPhone},
		{"unix path", "/home/user/documents/report.pdf", storage.ClipPath},
		{"windows path", `C:\Users\user\notes.txt`, storage.ClipPath},
		{"home path", "~/projects/readme.md", storage.ClipPath},
		{"json", `{"name": "test", "value": 42}`, storage.ClipData},
		{"xml", `<note><to>Alice</to></note>`, storage.ClipData},
		{"csv", "name,age\nalice,30\nbob,41", storage.ClipData},
		{"python code", "def main():\n    pass", storage.ClipCode},
		{"go code", "func main() {\n\tfmt.Println(1)\n}", storage.ClipCode},
		{"arrow fn", "items.map(x => x * 2)", storage.ClipCode},
		{"plain text", "remember to buy milk tomorrow", storage.ClipText},
		{"empty", "   ", storage.ClipText},
		// URL wins over path even though both could match a scheme-less heuristic.
		{"url not path", "https://example.com/a/b/c", storage.ClipURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.content))
		})
	}
}

type scriptedReader struct {
	texts []string
	i     int
	err   error
}

func newScriptedReader(texts ...string) *scriptedReader {
	return &scriptedReader{texts: texts}
}

func (r *scriptedReader) ReadAll() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.i >= len(r.texts) {
		return r.texts[len(r.texts)-1], nil
	}
	text := r.texts[r.i]
	r.i++
	return text, nil
}

func newTestMonitor(cfg Config, out chan capture.Observation) *Monitor {
	if cfg.ResolveApp == nil {
		cfg.ResolveApp = func(context.Context) string { return "TestApp" }
	}
	return New(cfg, out, zap.NewNop())
}

func TestPollDedupesUnchangedContent(t *testing.T) {
	out := make(chan capture.Observation, 4)
	m := newTestMonitor(Config{Reader: newScriptedReader("hello", "hello", "Hello")}, out)
	ctx := context.Background()

	obs, ok := m.poll(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", obs.Clipboard.Text)
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		obs.Clipboard.ContentHash)

	// Same content: suppressed.
	_, ok = m.poll(ctx)
	assert.False(t, ok)

	// Case change is a different hash: emitted.
	obs, ok = m.poll(ctx)
	require.True(t, ok)
	assert.NotEqual(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		obs.Clipboard.ContentHash)
}

func TestPollSkipsEmptyClipboard(t *testing.T) {
	out := make(chan capture.Observation, 4)
	m := newTestMonitor(Config{Reader: newScriptedReader("", "  \n\t ")}, out)

	_, ok := m.poll(context.Background())
	assert.False(t, ok)
	_, ok = m.poll(context.Background())
	assert.False(t, ok)
}

func TestPollSurvivesReadErrors(t *testing.T) {
	out := make(chan capture.Observation, 4)
	reader := newScriptedReader("later")
	reader.err = errors.New("no clipboard on this host")
	m := newTestMonitor(Config{Reader: reader}, out)

	_, ok := m.poll(context.Background())
	assert.False(t, ok)

	// Clipboard comes back: polling resumes normally.
	reader.err = nil
	obs, ok := m.poll(context.Background())
	require.True(t, ok)
	assert.Equal(t, "later", obs.Clipboard.Text)
}

func TestPollTruncatesOversizedContent(t *testing.T) {
	out := make(chan capture.Observation, 4)
	big := strings.Repeat("x", 100)
	m := newTestMonitor(Config{MaxBytes: 10, Reader: newScriptedReader(big, big)}, out)

	obs, ok := m.poll(context.Background())
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("x", 10)+truncationMarker, obs.Clipboard.Text)

	// The hash covers the original bytes, so the same oversized copy
	// still dedupes.
	_, ok = m.poll(context.Background())
	assert.False(t, ok)
}

func TestPollPayloadFields(t *testing.T) {
	out := make(chan capture.Observation, 4)
	m := newTestMonitor(Config{Reader: newScriptedReader("line one\nline two")}, out)

	obs, ok := m.poll(context.Background())
	require.True(t, ok)
	assert.Equal(t, storage.SourceClipboard, obs.Source)
	assert.Equal(t, 2, obs.Clipboard.LineCount)
	assert.Equal(t, len("line one\nline two"), obs.Clipboard.Length)
	assert.Equal(t, "TestApp", obs.Clipboard.SourceApp)
	assert.Equal(t, storage.ClipText, obs.Clipboard.ClassifiedType)
}

func TestRunStopsWithinOnePollInterval(t *testing.T) {
	out := make(chan capture.Observation, 4)
	m := newTestMonitor(Config{
		PollInterval: 10 * time.Millisecond,
		Reader:       newScriptedReader("steady"),
	}, out)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop within one polling interval")
	}
}
