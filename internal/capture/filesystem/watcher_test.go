package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/storage"
)

func startWatcher(t *testing.T, root string, cfg Config) chan capture.Observation {
	t.Helper()
	cfg.Roots = []string{root}
	if cfg.FallbackExcludes == nil {
		cfg.FallbackExcludes = []string{".git", "node_modules"}
	}
	cfg.SettleDelay = 50 * time.Millisecond

	out := make(chan capture.Observation, 32)
	w, err := New(cfg, out, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	// Give the notifier a beat to arm before the test mutates the tree.
	time.Sleep(50 * time.Millisecond)
	return out
}

func waitObs(t *testing.T, out chan capture.Observation) capture.Observation {
	t.Helper()
	select {
	case obs := <-out:
		return obs
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for observation")
		return capture.Observation{}
	}
}

func TestWatcherCreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root, Config{})

	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	obs := waitObs(t, out)
	require.NotNil(t, obs.File)
	assert.Equal(t, storage.SourceFile, obs.Source)
	assert.Equal(t, storage.FileCreated, obs.File.Operation)
	assert.Equal(t, "notes.txt", obs.File.Name)
	require.NotNil(t, obs.File.Text)
	assert.Equal(t, "v1", *obs.File.Text)
	require.NotNil(t, obs.File.ContentHash)
	assert.Equal(t, HashText("v1"), *obs.File.ContentHash)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	obs = waitObs(t, out)
	assert.Equal(t, storage.FileModified, obs.File.Operation)
	assert.Equal(t, HashText("v2"), *obs.File.ContentHash)

	require.NoError(t, os.Remove(path))
	obs = waitObs(t, out)
	assert.Equal(t, storage.FileDeleted, obs.File.Operation)
	assert.Nil(t, obs.File.Text)
	assert.Nil(t, obs.File.ContentHash)
	assert.Equal(t, path, obs.File.Path)
}

func TestWatcherIgnoresUnsupportedAndExcluded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o700))
	out := startWatcher(t, root, Config{})

	// Unsupported extension: silent drop.
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{1, 2, 3}, 0o600))
	// Inside an excluded directory: silent drop.
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "node_modules", "pkg.txt"), []byte("dep"), 0o600))
	// A supported file afterwards proves the watcher is still alive.
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("kept"), 0o600))

	obs := waitObs(t, out)
	assert.Equal(t, "real.txt", obs.File.Name)
	assert.Empty(t, out)
}

func TestWatcherSizeBoundary(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root, Config{MaxFileSize: 8})

	// Exactly at the limit: accepted.
	require.NoError(t, os.WriteFile(filepath.Join(root, "at.txt"), []byte("12345678"), 0o600))
	obs := waitObs(t, out)
	assert.Equal(t, "at.txt", obs.File.Name)

	// One byte over: rejected, next file still observed.
	require.NoError(t, os.WriteFile(filepath.Join(root, "over.txt"), []byte("123456789"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "after.txt"), []byte("ok"), 0o600))
	obs = waitObs(t, out)
	assert.Equal(t, "after.txt", obs.File.Name)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root, Config{})

	sub := filepath.Join(root, "projects")
	require.NoError(t, os.Mkdir(sub, 0o700))
	// Let the watcher pick up the new directory before writing into it.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "plan.md"), []byte("roadmap"), 0o600))
	obs := waitObs(t, out)
	assert.Equal(t, "plan.md", obs.File.Name)
}

func TestWatcherRejectsAllMissingRoots(t *testing.T) {
	out := make(chan capture.Observation, 1)
	_, err := New(Config{Roots: []string{"/does/not/exist"}}, out, zap.NewNop())
	assert.Error(t, err)
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"**/node_modules/**", "node_modules/pkg/index.js", true},
		{"**/node_modules/**", "src/node_modules/x", true},
		{"**/node_modules/**", "src/main.go", false},
		{"**/*.log", "deep/nested/run.log", true},
		{"build/**", "build/out.bin", true},
		{"build/**", "src/build.go", false},
		{"**/.git/**", ".git/HEAD", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globMatch(tt.pattern, tt.path),
			"%s vs %s", tt.pattern, tt.path)
	}
}
