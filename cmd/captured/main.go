// Command captured is the capture daemon: it runs the screen, clipboard,
// and filesystem capture loops, the ingestion pipeline, and the local
// HTTP API the CLI and desktop shell query.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unified-ai/core/internal/capture/clipboard"
	"github.com/unified-ai/core/internal/capture/filesystem"
	"github.com/unified-ai/core/internal/capture/screen"
	"github.com/unified-ai/core/internal/config"
	"github.com/unified-ai/core/internal/embeddings"
	"github.com/unified-ai/core/internal/entities"
	"github.com/unified-ai/core/internal/eventbus"
	"github.com/unified-ai/core/internal/ingest"
	"github.com/unified-ai/core/internal/logging"
	"github.com/unified-ai/core/internal/privacy"
	"github.com/unified-ai/core/internal/rag"
	"github.com/unified-ai/core/internal/retrieval"
	"github.com/unified-ai/core/internal/server"
	"github.com/unified-ai/core/internal/storage"
	"github.com/unified-ai/core/internal/telemetry"
	"github.com/unified-ai/core/internal/vectorindex"
)

// Exit codes: 0 clean shutdown, 1 configuration or runtime error, 130
// interrupted by SIGINT.
const (
	exitOK    = 0
	exitError = 1
	exitInt   = 130
)

var version = "dev"

type flags struct {
	configPath string
	interval   time.Duration
	mode       string
	dirs       []string

	// One-shot query flags; when set the daemon does not start.
	search string
	recent int
	stats  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags

	rootCmd := &cobra.Command{
		Use:     "captured",
		Short:   "Local-first personal capture daemon",
		Long:    "captured observes screen, clipboard, and watched directories, and indexes everything into a local searchable store.",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return execute(cmd.Context(), f)
		},
	}

	rootCmd.Flags().StringVar(&f.configPath, "config", "", "path to settings.json (default: env + built-in defaults)")
	rootCmd.Flags().DurationVar(&f.interval, "interval", 0, "screen capture interval override")
	rootCmd.Flags().StringVar(&f.mode, "mode", "", "screen capture mode: primary|all|specific|combined")
	rootCmd.Flags().StringSliceVar(&f.dirs, "dirs", nil, "directories to watch (overrides configuration)")
	rootCmd.Flags().StringVar(&f.search, "search", "", "run a search against the store and exit")
	rootCmd.Flags().IntVar(&f.recent, "recent", 0, "print the N most recent records and exit")
	rootCmd.Flags().BoolVar(&f.stats, "stats", false, "print store statistics and exit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var sawInt atomic.Bool
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		if sig == syscall.SIGINT {
			sawInt.Store(true)
		}
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "captured:", err)
		return exitError
	}
	if sawInt.Load() {
		return exitInt
	}
	return exitOK
}

func execute(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if f.search != "" || f.recent > 0 || f.stats {
		return oneShot(ctx, cfg, f)
	}
	return runDaemon(ctx, cfg)
}

func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadWithFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Load()
	}

	if f.interval > 0 {
		cfg.Capture.Screen.Interval = f.interval
	}
	if f.mode != "" {
		cfg.Capture.Screen.Mode = f.mode
	}
	if len(f.dirs) > 0 {
		cfg.Capture.Filesystem.WatchRoots = f.dirs
		cfg.Capture.Filesystem.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// oneShot serves --search/--recent/--stats against the store directly,
// without starting any capture loop.
func oneShot(ctx context.Context, cfg *config.Config, f flags) error {
	store, err := openStore(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case f.stats:
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("content records:   %d\n", stats.ContentRecords)
		fmt.Printf("entity mentions:   %d\n", stats.EntityMentions)
		fmt.Printf("screen captures:   %d\n", stats.ScreenCaptures)
		fmt.Printf("clipboard entries: %d\n", stats.ClipboardEntries)
		fmt.Printf("file events:       %d\n", stats.FileEvents)
		fmt.Printf("file versions:     %d\n", stats.FileVersions)
		fmt.Printf("db size:           %d bytes\n", stats.DBSizeBytes)

	case f.search != "":
		results, err := store.LexicalSearch(ctx, f.search, "", 20)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, hit := range results {
			fmt.Printf("[%s] #%d %s\n    %s\n",
				hit.Record.Source, hit.Record.ID,
				hit.Record.CapturedAt.Format(time.RFC3339), hit.Preview)
		}

	case f.recent > 0:
		records, err := store.Timeline(ctx, 365, "", f.recent)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("[%s] #%d %s\n    %s\n",
				rec.Source, rec.ID, rec.CapturedAt.Format(time.RFC3339), firstLine(rec.Text))
		}
	}
	return nil
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zlog := logger.Underlying()

	zlog.Info("captured starting", zap.String("version", version))

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.ServiceVersion = version
	telCfg.Endpoint = cfg.Observability.OTLPEndpoint
	telCfg.Insecure = cfg.Observability.OTLPInsecure
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		zlog.Warn("telemetry init failed, running without export", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(shutdownCtx)
		}()
	}

	store, err := openStore(cfg, zlog)
	if err != nil {
		// Fatal: an unwritable store means nothing downstream can work.
		return err
	}
	defer store.Close()

	// Degradable subsystems below this line: each falls back and the
	// daemon runs on.
	var embedder vectorindex.Embedder
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		zlog.Warn("embedding provider unavailable, semantic search disabled", zap.Error(err))
		provider = embeddings.NullProvider{}
	}
	defer provider.Close()
	if provider.IsAvailable() {
		embedder = provider
	}

	chromemPath, err := config.ExpandPath(cfg.VectorIndex.Chromem.Path)
	if err != nil {
		chromemPath = cfg.VectorIndex.Chromem.Path
	}
	openCtx, cancelOpen := context.WithTimeout(ctx, 10*time.Second)
	index := vectorindex.Open(openCtx, vectorindex.Config{
		Provider: cfg.VectorIndex.Provider,
		Chromem: vectorindex.ChromemConfig{
			Path:       chromemPath,
			Compress:   cfg.VectorIndex.Chromem.Compress,
			Collection: cfg.VectorIndex.Chromem.Collection,
			VectorSize: cfg.VectorIndex.Chromem.VectorSize,
		},
		Qdrant: vectorindex.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: cfg.Qdrant.VectorSize,
			APIKey:     cfg.Qdrant.APIKey.Value(),
		},
	}, embedder, zlog)
	cancelOpen()
	defer index.Close()

	var bus eventbus.Bus
	embedded, err := eventbus.NewEmbedded(eventbus.Config{Port: 0}, zlog)
	if err != nil {
		zlog.Warn("event bus unavailable, capture events disabled", zap.Error(err))
		bus = eventbus.NullBus{}
	} else {
		bus = embedded
	}
	defer bus.Close()

	backend := buildBackend(cfg, zlog)
	extractorCfg := entities.Config{Provider: cfg.Entities.Provider}
	if extractorCfg.Provider == "llm" && backend != nil {
		extractorCfg.Generator = rag.GeneratorFunc{Backend: backend, Timeout: 30 * time.Second}
		extractorCfg.Model = rag.Tiers(cfg.RAG.Tiers).Route("fast")
	}
	extractor := entities.New(extractorCfg, zlog)

	filter := privacy.NewFilter(cfg.Privacy.EnabledKinds, nil)
	embedWorker := ingest.NewEmbedWorker(index, 2, 256, zlog)

	pipeline := ingest.New(ingest.Config{
		ChannelCapacity:    cfg.Storage.IngestChannelCapacity,
		EnablePII:          cfg.Privacy.EnablePIIDetection,
		ExcludedApps:       cfg.Privacy.ExcludedAppNames,
		ExcludedTitleWords: cfg.Privacy.ExcludedTitleWords,
	}, store, filter, extractor, embedWorker, bus, zlog)

	if n, err := pipeline.Resync(ctx); err != nil {
		zlog.Warn("startup resync failed", zap.Error(err))
	} else if n > 0 {
		zlog.Info("startup resync complete", zap.Int("backfilled", n))
	}

	engine := retrieval.New(store, index, zlog)
	orchestrator := rag.New(engine, backend, rag.Config{
		Tiers: rag.Tiers(cfg.RAG.Tiers),
	}, zlog)

	httpServer := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, store, engine, orchestrator, zlog)

	g, gctx := errgroup.WithContext(ctx)
	embedWorker.Start(gctx, 2)
	defer embedWorker.Close()

	g.Go(func() error { return ignoreCancel(pipeline.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(httpServer.Start(gctx)) })

	if cfg.Capture.Screen.Enabled {
		capturer, err := screen.New(screen.Config{
			Interval: cfg.Capture.Screen.Interval,
			Mode:     screen.Mode(cfg.Capture.Screen.Mode),
			Monitors: cfg.Capture.Screen.Monitors,
			OCR:      buildOCR(cfg),
		}, pipeline.Channel(), zlog)
		if err != nil {
			return fmt.Errorf("screen capturer: %w", err)
		}
		g.Go(func() error { return ignoreCancel(capturer.Run(gctx)) })
	}

	if cfg.Capture.Clipboard.Enabled {
		monitor := clipboard.New(clipboard.Config{
			PollInterval: cfg.Capture.Clipboard.PollInterval,
			MaxBytes:     cfg.Capture.Clipboard.MaxBytes,
		}, pipeline.Channel(), zlog)
		g.Go(func() error { return ignoreCancel(monitor.Run(gctx)) })
	}

	if cfg.Capture.Filesystem.Enabled {
		roots := cfg.Capture.Filesystem.WatchRoots
		if len(roots) == 0 {
			roots = defaultWatchRoots()
		}
		watcher, err := filesystem.New(filesystem.Config{
			Roots:            roots,
			IgnoreFiles:      cfg.Capture.Filesystem.IgnoreFiles,
			FallbackExcludes: cfg.Capture.Filesystem.FallbackExcludes,
			MaxFileSize:      10 << 20,
		}, pipeline.Channel(), zlog)
		if err != nil {
			zlog.Warn("filesystem watcher unavailable", zap.Error(err))
		} else {
			g.Go(func() error { return ignoreCancel(watcher.Run(gctx)) })
		}
	}

	if cfg.Storage.AutoCleanup {
		g.Go(func() error {
			return retentionLoop(gctx, store, index, storage.RetentionPolicy{
				MaxRecords: cfg.Storage.MaxRecords,
				MaxAgeDays: cfg.Storage.MaxAgeDays,
				Interval:   time.Hour,
			}, zlog)
		})
	}

	zlog.Info("captured running")
	if err := g.Wait(); err != nil {
		return err
	}
	zlog.Info("captured stopped")
	return nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*storage.Store, error) {
	dbPath, err := config.ExpandPath(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	store, err := storage.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func buildBackend(cfg *config.Config, logger *zap.Logger) rag.Backend {
	switch cfg.RAG.Provider {
	case "anthropic":
		if !cfg.RAG.APIKey.IsSet() {
			logger.Warn("anthropic backend configured without api key, answers degrade to offline")
			return nil
		}
		return rag.NewAnthropicBackend(cfg.RAG.APIKey.Value())
	case "ollama", "":
		return rag.NewOllamaBackend(cfg.RAG.BaseURL)
	default:
		logger.Warn("unknown llm provider, answers degrade to offline",
			zap.String("provider", cfg.RAG.Provider))
		return nil
	}
}

func buildOCR(cfg *config.Config) screen.OCREngine {
	if !cfg.Capture.Screen.OCREnabled {
		return screen.NullOCR{}
	}
	return screen.NewTesseractOCR(cfg.Capture.Screen.TesseractPath)
}

// retentionLoop sweeps periodically and purges swept vectors.
func retentionLoop(ctx context.Context, store *storage.Store, index vectorindex.Index, policy storage.RetentionPolicy, logger *zap.Logger) error {
	interval := policy.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		dropped, err := store.Sweep(ctx, policy)
		if err != nil {
			logger.Warn("retention sweep failed", zap.Error(err))
			continue
		}
		if len(dropped) == 0 {
			continue
		}
		ids := make([]string, len(dropped))
		for i, id := range dropped {
			ids[i] = fmt.Sprintf("%d", id)
		}
		if err := index.Delete(ctx, ids); err != nil {
			logger.Debug("vector purge after sweep failed", zap.Error(err))
		}
	}
}

func defaultWatchRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var roots []string
	for _, name := range []string{"Documents", "Desktop", "Downloads"} {
		path := filepath.Join(home, name)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			roots = append(roots, path)
		}
	}
	return roots
}

// ignoreCancel keeps context cancellation out of the errgroup's error:
// a signal-driven stop is a clean shutdown, not a failure.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 120 {
		text = text[:120] + "…"
	}
	return text
}
