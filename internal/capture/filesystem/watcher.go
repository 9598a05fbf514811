// Package filesystem implements the directory watcher daemon: recursive
// change notification over the configured roots, format-aware text
// extraction, content hashing, and emission into the ingestion channel.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/ignore"
	"github.com/unified-ai/core/internal/storage"
)

// Config configures a Watcher.
type Config struct {
	// Roots are the directory trees to watch.
	Roots []string

	// IgnoreFiles and FallbackExcludes configure the per-root ignore
	// parser (gitignore-style files, with a fixed exclude set when a
	// root carries none).
	IgnoreFiles      []string
	FallbackExcludes []string

	// MaxFileSize rejects larger files before extraction. Files at
	// exactly this size are accepted. Default 10 MiB.
	MaxFileSize int64

	// Extensions restricts capture to these extensions when non-empty;
	// otherwise the built-in supported set applies.
	Extensions []string

	// Extractor defaults to a zero-value Extractor (no PDF page OCR).
	Extractor *Extractor

	// settleDelay coalesces the burst of write events editors produce
	// for one save. Tests shorten it.
	SettleDelay time.Duration
}

// Watcher is the filesystem capture daemon.
type Watcher struct {
	cfg      Config
	out      chan<- capture.Observation
	logger   *zap.Logger
	notifier *fsnotify.Watcher

	// ignore patterns per root, resolved at startup.
	patterns map[string][]string

	// lastHash tracks each path's last extracted content hash so no-op
	// saves do not produce modify events.
	lastHash map[string]string

	// pending coalesces the create+write bursts one save produces.
	pending map[string]*pendingChange
	settled chan settledChange
}

// pendingChange is a path waiting out its settle window. The operation
// sticks at created when the path was first seen as a create, no matter
// how many writes follow before the window closes.
type pendingChange struct {
	op    storage.FileOperation
	timer *time.Timer
}

type settledChange struct {
	path string
	op   storage.FileOperation
}

// New builds a filesystem watcher emitting into out. Roots that do not
// exist are skipped with a warning; at least one must survive.
func New(cfg Config, out chan<- capture.Observation, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	if cfg.Extractor == nil {
		cfg.Extractor = &Extractor{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 400 * time.Millisecond
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filesystem: init watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		out:      out,
		logger:   logger,
		notifier: notifier,
		patterns: make(map[string][]string),
		lastHash: make(map[string]string),
		pending:  make(map[string]*pendingChange),
		settled:  make(chan settledChange, 64),
	}

	parser := ignore.NewParser(cfg.IgnoreFiles, cfg.FallbackExcludes)
	added := 0
	for _, root := range cfg.Roots {
		root = filepath.Clean(root)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logger.Warn("watch root unavailable, skipping", zap.String("root", root), zap.Error(err))
			continue
		}
		patterns, err := parser.ParseProject(root)
		if err != nil {
			logger.Warn("ignore parse failed, using fallback excludes",
				zap.String("root", root), zap.Error(err))
			patterns = cfg.FallbackExcludes
		}
		w.patterns[root] = patterns
		if err := w.addTree(root); err != nil {
			notifier.Close()
			return nil, err
		}
		added++
	}
	if added == 0 {
		notifier.Close()
		return nil, fmt.Errorf("filesystem: no watchable roots among %v", cfg.Roots)
	}
	return w, nil
}

// addTree registers root and every non-ignored subdirectory.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.notifier.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("filesystem watcher started", zap.Int("roots", len(w.patterns)))
	defer w.notifier.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("filesystem watcher stopped")
			return ctx.Err()

		case event, ok := <-w.notifier.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case change := <-w.settled:
			w.emitChange(ctx, change.path, change.op)

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.ignored(path) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Follow newly created trees.
			if err := w.addTree(path); err != nil {
				w.logger.Warn("cannot watch new directory", zap.String("path", path), zap.Error(err))
			}
			return
		}
		w.schedule(ctx, path, storage.FileCreated)

	case event.Op.Has(fsnotify.Write):
		w.schedule(ctx, path, storage.FileModified)

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.emitDelete(ctx, path)
	}
}

// schedule (re)starts path's settle window. A save arrives as a create
// plus a burst of writes; the window coalesces them into one
// observation, and the first-seen operation wins so the burst after a
// create still reads as a create.
func (w *Watcher) schedule(ctx context.Context, path string, op storage.FileOperation) {
	if prev, ok := w.pending[path]; ok {
		prev.timer.Stop()
		op = prev.op
	}
	change := settledChange{path: path, op: op}
	w.pending[path] = &pendingChange{
		op: op,
		timer: time.AfterFunc(w.cfg.SettleDelay, func() {
			select {
			case w.settled <- change:
			case <-ctx.Done():
			}
		}),
	}
}

// emitChange extracts the file and sends a created/modified observation.
// Unsupported, oversized, and vanished files are dropped silently; they
// are normal control flow, not faults.
func (w *Watcher) emitChange(ctx context.Context, path string, op storage.FileOperation) {
	delete(w.pending, path)

	if !Supported(path, w.cfg.Extensions) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if info.Size() > w.cfg.MaxFileSize {
		w.logger.Debug("file exceeds size limit, skipping",
			zap.String("path", path), zap.Int64("size", info.Size()))
		return
	}

	res := w.cfg.Extractor.Extract(ctx, path)
	if res.Err != nil {
		w.logger.Warn("extraction failed", zap.String("path", path), zap.Error(res.Err))
		return
	}

	hash := HashText(res.Text)
	if op == storage.FileModified && w.lastHash[path] == hash {
		// A no-op save; nothing to record.
		return
	}
	w.lastHash[path] = hash

	text := res.Text
	obs := capture.Observation{
		Source:     storage.SourceFile,
		CapturedAt: time.Now(),
		File: &capture.FilePayload{
			Path:        path,
			Name:        filepath.Base(path),
			Operation:   op,
			ContentHash: &hash,
			Text:        &text,
			Kind:        res.Kind,
			SizeBytes:   info.Size(),
		},
	}
	w.send(ctx, obs)
}

// emitDelete sends a deletion observation with null text and hash.
func (w *Watcher) emitDelete(ctx context.Context, path string) {
	if prev, ok := w.pending[path]; ok {
		prev.timer.Stop()
		delete(w.pending, path)
	}
	if !Supported(path, w.cfg.Extensions) {
		return
	}
	delete(w.lastHash, path)

	obs := capture.Observation{
		Source:     storage.SourceFile,
		CapturedAt: time.Now(),
		File: &capture.FilePayload{
			Path:      path,
			Name:      filepath.Base(path),
			Operation: storage.FileDeleted,
			Kind:      KindOf(path),
		},
	}
	w.send(ctx, obs)
}

// send blocks when the ingest channel is full: file events carry version
// history, so the watcher slows down rather than dropping one.
func (w *Watcher) send(ctx context.Context, obs capture.Observation) {
	select {
	case w.out <- obs:
	case <-ctx.Done():
	}
}

// ignored reports whether path matches any ignore pattern of the root
// that contains it.
func (w *Watcher) ignored(path string) bool {
	for root, patterns := range w.patterns {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if globMatch(pattern, rel) {
				return true
			}
		}
	}
	return false
}

// globMatch matches a gitignore-derived glob (with ** spanning path
// segments) against a slash-separated relative path.
func globMatch(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		// "**" matches zero or more leading segments.
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}
