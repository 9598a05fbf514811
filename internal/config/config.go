// Package config provides configuration loading for the unified-ai capture
// daemon and CLI.
//
// Configuration is loaded from environment variables with sensible
// defaults, and optionally from a JSON settings file via LoadWithFile
// (see loader.go). Precedence is defaults, then environment, then the
// settings file when one is supplied.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete capture-daemon configuration.
type Config struct {
	Server      ServerConfig
	Observability ObservabilityConfig
	Storage     StorageConfig
	VectorIndex VectorIndexConfig
	Qdrant      QdrantConfig
	Embeddings  EmbeddingsConfig
	Privacy     PrivacyConfig
	Capture     CaptureConfig
	RAG         RAGConfig
	Entities    EntitiesConfig
}

// ServerConfig holds the local HTTP server configuration (metrics,
// health, and the query endpoint uaictl talks to).
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration. Export is OTLP
// over HTTP to a local collector.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// StorageConfig holds row-store and retention configuration.
type StorageConfig struct {
	// DBPath is the sqlite row-store file (content, entities, captures,
	// clipboard entries, file events, FTS5 tables). Default:
	// ~/.unified-ai/capture.db
	DBPath string `koanf:"db_path"`

	// IngestChannelCapacity bounds the ingestion pipeline's buffered
	// channel (see internal/ingest).
	IngestChannelCapacity int `koanf:"ingest_channel_capacity"`

	// MaxRecords, MaxAgeDays, AutoCleanup implement the retention sweep.
	MaxRecords int  `koanf:"max_records"`
	MaxAgeDays int  `koanf:"max_age_days"`
	AutoCleanup bool `koanf:"auto_cleanup"`
}

// VectorIndexConfig selects and configures the ANN backend.
type VectorIndexConfig struct {
	Provider string        `koanf:"provider"` // "chromem" (default) or "qdrant"
	Chromem  ChromemConfig `koanf:"chromem"`
}

// ChromemConfig holds chromem-go embedded vector database configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector_size must be positive, got %d", c.VectorSize)
	}
	return nil
}

// QdrantConfig holds remote Qdrant vector database configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	APIKey     Secret `koanf:"api_key"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // "fastembed" (default) or "tei"
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// PrivacyConfig controls PII detection/redaction and window suppression.
type PrivacyConfig struct {
	EnablePIIDetection bool     `koanf:"enable_pii_detection"`
	EnabledKinds       []string `koanf:"enabled_kinds"`
	ExcludedAppNames   []string `koanf:"excluded_app_names"`
	ExcludedTitleWords []string `koanf:"excluded_title_words"`
}

// CaptureConfig groups the three capture daemons' configuration.
type CaptureConfig struct {
	Screen     ScreenCaptureConfig     `koanf:"screen"`
	Clipboard  ClipboardCaptureConfig  `koanf:"clipboard"`
	Filesystem FilesystemCaptureConfig `koanf:"filesystem"`
}

// ScreenCaptureConfig configures the screen capture daemon.
type ScreenCaptureConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval"`
	Mode          string        `koanf:"mode"` // primary|all|specific|combined
	Monitors      []int         `koanf:"monitors"`
	OCREnabled    bool          `koanf:"ocr_enabled"`
	TesseractPath string        `koanf:"tesseract_path"`
}

// ClipboardCaptureConfig configures the clipboard monitor.
type ClipboardCaptureConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxBytes     int           `koanf:"max_bytes"`
}

// FilesystemCaptureConfig configures the filesystem watcher.
type FilesystemCaptureConfig struct {
	Enabled          bool     `koanf:"enabled"`
	WatchRoots       []string `koanf:"watch_roots"`
	IgnoreFiles      []string `koanf:"ignore_files"`
	FallbackExcludes []string `koanf:"fallback_excludes"`
	MaxConcurrent    int      `koanf:"max_concurrent_extractions"`
}

// RAGConfig holds the RAG orchestrator's LLM backend configuration.
type RAGConfig struct {
	Provider string            `koanf:"provider"` // "ollama" or "anthropic"
	BaseURL  string            `koanf:"base_url"`
	APIKey   Secret            `koanf:"api_key"`
	Tiers    map[string]string `koanf:"tiers"`
}

// EntitiesConfig selects the named-entity extraction backend.
type EntitiesConfig struct {
	// Provider is "heuristic" (default), "llm" (tags via the RAG
	// backend's fast tier), or "none".
	Provider string `koanf:"provider"`
}

// Load loads configuration from environment variables with defaults.
//
// Quick start env vars:
//   - UAI_STORAGE_DB_PATH: row-store path (default: ~/.unified-ai/capture.db)
//   - UAI_EMBEDDINGS_PROVIDER: fastembed (default) or tei
//   - UAI_VECTORINDEX_PROVIDER: chromem (default) or qdrant
//   - UAI_PRIVACY_ENABLE_PII_DETECTION: redact PII before persisting (default: true)
//   - UAI_RAG_PROVIDER: ollama (default) or anthropic
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("UAI_SERVER_HTTP_PORT", 9090),
			ShutdownTimeout: getEnvDuration("UAI_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("UAI_OTEL_ENABLE", false),
			ServiceName:     getEnvString("UAI_OTEL_SERVICE_NAME", "captured"),
			OTLPEndpoint:    getEnvString("UAI_OTEL_OTLP_ENDPOINT", "localhost:4318"),
			OTLPInsecure:    getEnvBool("UAI_OTEL_OTLP_INSECURE", true),
		},
		Storage: StorageConfig{
			DBPath:                getEnvString("UAI_STORAGE_DB_PATH", "~/.unified-ai/capture.db"),
			IngestChannelCapacity: getEnvInt("UAI_STORAGE_INGEST_CHANNEL_CAPACITY", 1024),
			MaxRecords:            getEnvInt("UAI_STORAGE_MAX_RECORDS", 0),
			MaxAgeDays:            getEnvInt("UAI_STORAGE_MAX_AGE_DAYS", 0),
			AutoCleanup:           getEnvBool("UAI_STORAGE_AUTO_CLEANUP", false),
		},
		VectorIndex: VectorIndexConfig{
			Provider: getEnvString("UAI_VECTORINDEX_PROVIDER", "chromem"),
			Chromem: ChromemConfig{
				Path:       getEnvString("UAI_VECTORINDEX_CHROMEM_PATH", "~/.unified-ai/vectorstore"),
				Compress:   getEnvBool("UAI_VECTORINDEX_CHROMEM_COMPRESS", false),
				Collection: getEnvString("UAI_VECTORINDEX_CHROMEM_COLLECTION", "semantic_embeddings"),
				VectorSize: getEnvInt("UAI_VECTORINDEX_CHROMEM_VECTOR_SIZE", 384),
			},
		},
		Qdrant: QdrantConfig{
			Host:       getEnvString("UAI_QDRANT_HOST", "localhost"),
			Port:       getEnvInt("UAI_QDRANT_PORT", 6334),
			Collection: getEnvString("UAI_QDRANT_COLLECTION", "semantic_embeddings"),
			VectorSize: getEnvInt("UAI_QDRANT_VECTOR_SIZE", 384),
			APIKey:     Secret(getEnvString("UAI_QDRANT_API_KEY", "")),
		},
		Embeddings: EmbeddingsConfig{
			Provider: getEnvString("UAI_EMBEDDINGS_PROVIDER", "fastembed"),
			BaseURL:  getEnvString("UAI_EMBEDDINGS_BASE_URL", "http://localhost:8080"),
			Model:    getEnvString("UAI_EMBEDDINGS_MODEL", "BAAI/bge-small-en-v1.5"),
			CacheDir: getEnvString("UAI_EMBEDDINGS_CACHE_DIR", "~/.cache/unified-ai/models"),
		},
		Privacy: PrivacyConfig{
			EnablePIIDetection: getEnvBool("UAI_PRIVACY_ENABLE_PII_DETECTION", true),
			EnabledKinds: getEnvStringSlice("UAI_PRIVACY_ENABLED_KINDS", []string{
				"email", "phone", "intl_phone", "ssn", "credit_card", "ip_address",
				"api_key", "aws_key", "github_token", "jwt", "password",
			}),
			ExcludedAppNames: getEnvStringSlice("UAI_PRIVACY_EXCLUDED_APP_NAMES", []string{
				"1Password", "Bitwarden", "KeePassXC", "LastPass",
			}),
			ExcludedTitleWords: getEnvStringSlice("UAI_PRIVACY_EXCLUDED_TITLE_WORDS", []string{
				"private browsing", "incognito", "password",
			}),
		},
		Capture: CaptureConfig{
			Screen: ScreenCaptureConfig{
				Enabled:       getEnvBool("UAI_CAPTURE_SCREEN_ENABLED", true),
				Interval:      getEnvDuration("UAI_CAPTURE_SCREEN_INTERVAL", 10*time.Second),
				Mode:          getEnvString("UAI_CAPTURE_SCREEN_MODE", "primary"),
				Monitors:      getEnvIntSlice("UAI_CAPTURE_SCREEN_MONITORS", nil),
				OCREnabled:    getEnvBool("UAI_CAPTURE_SCREEN_OCR_ENABLED", true),
				TesseractPath: getEnvString("UAI_CAPTURE_SCREEN_TESSERACT_PATH", "tesseract"),
			},
			Clipboard: ClipboardCaptureConfig{
				Enabled:      getEnvBool("UAI_CAPTURE_CLIPBOARD_ENABLED", true),
				PollInterval: getEnvDuration("UAI_CAPTURE_CLIPBOARD_POLL_INTERVAL", 1*time.Second),
				MaxBytes:     getEnvInt("UAI_CAPTURE_CLIPBOARD_MAX_BYTES", 1_000_000),
			},
			Filesystem: FilesystemCaptureConfig{
				Enabled:    getEnvBool("UAI_CAPTURE_FILESYSTEM_ENABLED", false),
				WatchRoots: getEnvStringSlice("UAI_CAPTURE_FILESYSTEM_WATCH_ROOTS", nil),
				IgnoreFiles: getEnvStringSlice("UAI_CAPTURE_FILESYSTEM_IGNORE_FILES", []string{
					".gitignore", ".dockerignore", ".unifiedaiignore",
				}),
				FallbackExcludes: getEnvStringSlice("UAI_CAPTURE_FILESYSTEM_FALLBACK_EXCLUDES", []string{
					".git", "node_modules", "vendor", "__pycache__", ".venv",
				}),
				MaxConcurrent: getEnvInt("UAI_CAPTURE_FILESYSTEM_MAX_CONCURRENT", 4),
			},
		},
		Entities: EntitiesConfig{
			Provider: getEnvString("UAI_ENTITIES_PROVIDER", "heuristic"),
		},
		RAG: RAGConfig{
			Provider: getEnvString("UAI_RAG_PROVIDER", "ollama"),
			BaseURL:  getEnvString("UAI_RAG_BASE_URL", "http://localhost:11434"),
			APIKey:   Secret(getEnvString("UAI_RAG_API_KEY", "")),
			Tiers: map[string]string{
				"fast":     getEnvString("UAI_RAG_TIER_FAST", "llama3.2:1b"),
				"balanced": getEnvString("UAI_RAG_TIER_BALANCED", "llama3.2:3b"),
				"powerful": getEnvString("UAI_RAG_TIER_POWERFUL", "llama3.1:8b"),
			},
		},
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if err := validateHostname(c.Qdrant.Host); err != nil {
		return fmt.Errorf("invalid qdrant host: %w", err)
	}
	if err := validatePath(c.Storage.DBPath); err != nil {
		return fmt.Errorf("invalid storage db_path: %w", err)
	}
	if err := validatePath(c.VectorIndex.Chromem.Path); err != nil {
		return fmt.Errorf("invalid vectorindex chromem path: %w", err)
	}
	if c.Embeddings.CacheDir != "" {
		if err := validatePath(c.Embeddings.CacheDir); err != nil {
			return fmt.Errorf("invalid embeddings cache_dir: %w", err)
		}
	}
	if c.Embeddings.BaseURL != "" {
		if err := validateURL(c.Embeddings.BaseURL); err != nil {
			return fmt.Errorf("invalid embeddings base_url: %w", err)
		}
	}
	if err := c.VectorIndex.Chromem.Validate(); c.VectorIndex.Provider == "chromem" && err != nil {
		return fmt.Errorf("invalid chromem config: %w", err)
	}
	switch c.Capture.Screen.Mode {
	case "primary", "all", "specific", "combined":
	default:
		return fmt.Errorf("invalid screen capture mode: %q", c.Capture.Screen.Mode)
	}
	return nil
}

// Helper functions for environment variable parsing.

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := make([]string, 0)
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func getEnvIntSlice(key string, defaultValue []int) []int {
	raw := getEnvStringSlice(key, nil)
	if raw == nil {
		return defaultValue
	}
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		if n, err := strconv.Atoi(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// validateHostname checks if a hostname is safe (no command injection
// attempts).
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}
	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

// validateURL checks if a URL uses an allowed scheme.
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
