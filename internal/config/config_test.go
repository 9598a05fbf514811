package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 10*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Observability.EnableTelemetry {
					t.Error("Observability.EnableTelemetry = true, want false (disabled by default)")
				}
				if cfg.Observability.ServiceName != "captured" {
					t.Errorf("Observability.ServiceName = %q, want captured", cfg.Observability.ServiceName)
				}
				if cfg.Storage.DBPath != "~/.unified-ai/capture.db" {
					t.Errorf("Storage.DBPath = %q, want ~/.unified-ai/capture.db", cfg.Storage.DBPath)
				}
				if cfg.Storage.IngestChannelCapacity != 1024 {
					t.Errorf("Storage.IngestChannelCapacity = %d, want 1024", cfg.Storage.IngestChannelCapacity)
				}
				if !cfg.Privacy.EnablePIIDetection {
					t.Error("Privacy.EnablePIIDetection = false, want true")
				}
				if !cfg.Capture.Screen.Enabled {
					t.Error("Capture.Screen.Enabled = false, want true")
				}
				if cfg.Capture.Screen.Mode != "primary" {
					t.Errorf("Capture.Screen.Mode = %q, want primary", cfg.Capture.Screen.Mode)
				}
				if cfg.Capture.Filesystem.Enabled {
					t.Error("Capture.Filesystem.Enabled = true, want false (opt-in)")
				}
				if cfg.RAG.Provider != "ollama" {
					t.Errorf("RAG.Provider = %q, want ollama", cfg.RAG.Provider)
				}
			},
		},
		{
			name: "server environment overrides",
			env: map[string]string{
				"UAI_SERVER_HTTP_PORT":        "8081",
				"UAI_SERVER_SHUTDOWN_TIMEOUT": "5s",
				"UAI_OTEL_ENABLE":             "true",
				"UAI_OTEL_SERVICE_NAME":       "test-service",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8081 {
					t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 5*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
				}
				if !cfg.Observability.EnableTelemetry {
					t.Error("Observability.EnableTelemetry = false, want true")
				}
				if cfg.Observability.ServiceName != "test-service" {
					t.Errorf("Observability.ServiceName = %q, want test-service", cfg.Observability.ServiceName)
				}
			},
		},
		{
			name: "capture environment overrides",
			env: map[string]string{
				"UAI_CAPTURE_SCREEN_ENABLED":        "false",
				"UAI_CAPTURE_SCREEN_MODE":           "all",
				"UAI_CAPTURE_FILESYSTEM_ENABLED":    "true",
				"UAI_CAPTURE_FILESYSTEM_WATCH_ROOTS": "/home/user/notes,/home/user/code",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Capture.Screen.Enabled {
					t.Error("Capture.Screen.Enabled = true, want false")
				}
				if cfg.Capture.Screen.Mode != "all" {
					t.Errorf("Capture.Screen.Mode = %q, want all", cfg.Capture.Screen.Mode)
				}
				if !cfg.Capture.Filesystem.Enabled {
					t.Error("Capture.Filesystem.Enabled = false, want true")
				}
				if len(cfg.Capture.Filesystem.WatchRoots) != 2 {
					t.Fatalf("Capture.Filesystem.WatchRoots = %v, want 2 entries", cfg.Capture.Filesystem.WatchRoots)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg := Load()
			if cfg == nil {
				t.Fatal("Load() returned nil")
			}

			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port - too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: true,
		},
		{
			name: "empty service name with telemetry enabled",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid qdrant hostname",
			mutate:  func(c *Config) { c.Qdrant.Host = "bad;host" },
			wantErr: true,
		},
		{
			name:    "invalid screen capture mode",
			mutate:  func(c *Config) { c.Capture.Screen.Mode = "bogus" },
			wantErr: true,
		},
		{
			name:    "zero vector size on chromem provider",
			mutate:  func(c *Config) { c.VectorIndex.Chromem.VectorSize = 0 },
			wantErr: true,
		},
		{
			name: "zero vector size ignored for non-chromem provider",
			mutate: func(c *Config) {
				c.VectorIndex.Provider = "qdrant"
				c.VectorIndex.Chromem.VectorSize = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChromemConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChromemConfig
		wantErr bool
	}{
		{
			name: "valid - 384d",
			cfg: ChromemConfig{
				Path:       "~/.unified-ai/vectorstore",
				Compress:   true,
				Collection: "semantic_embeddings",
				VectorSize: 384,
			},
			wantErr: false,
		},
		{
			name: "invalid - zero vector size",
			cfg: ChromemConfig{
				Path:       "~/.unified-ai/vectorstore",
				Collection: "semantic_embeddings",
				VectorSize: 0,
			},
			wantErr: true,
		},
		{
			name: "invalid - negative vector size",
			cfg: ChromemConfig{
				Path:       "~/.unified-ai/vectorstore",
				Collection: "semantic_embeddings",
				VectorSize: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_VectorIndexConfig(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "vectorindex defaults - chromem provider with 384d",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.VectorIndex.Provider != "chromem" {
					t.Errorf("VectorIndex.Provider = %q, want chromem", cfg.VectorIndex.Provider)
				}
				if cfg.VectorIndex.Chromem.Path != "~/.unified-ai/vectorstore" {
					t.Errorf("VectorIndex.Chromem.Path = %q, want ~/.unified-ai/vectorstore", cfg.VectorIndex.Chromem.Path)
				}
				if cfg.VectorIndex.Chromem.Compress {
					t.Error("VectorIndex.Chromem.Compress should be false by default")
				}
				if cfg.VectorIndex.Chromem.Collection != "semantic_embeddings" {
					t.Errorf("VectorIndex.Chromem.Collection = %q, want semantic_embeddings", cfg.VectorIndex.Chromem.Collection)
				}
				if cfg.VectorIndex.Chromem.VectorSize != 384 {
					t.Errorf("VectorIndex.Chromem.VectorSize = %d, want 384", cfg.VectorIndex.Chromem.VectorSize)
				}
			},
		},
		{
			name: "vectorindex environment overrides",
			env: map[string]string{
				"UAI_VECTORINDEX_PROVIDER":            "qdrant",
				"UAI_VECTORINDEX_CHROMEM_PATH":        "/custom/path/vectorstore",
				"UAI_VECTORINDEX_CHROMEM_COLLECTION":  "custom_collection",
				"UAI_VECTORINDEX_CHROMEM_VECTOR_SIZE": "768",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.VectorIndex.Provider != "qdrant" {
					t.Errorf("VectorIndex.Provider = %q, want qdrant", cfg.VectorIndex.Provider)
				}
				if cfg.VectorIndex.Chromem.Path != "/custom/path/vectorstore" {
					t.Errorf("VectorIndex.Chromem.Path = %q, want /custom/path/vectorstore", cfg.VectorIndex.Chromem.Path)
				}
				if cfg.VectorIndex.Chromem.Collection != "custom_collection" {
					t.Errorf("VectorIndex.Chromem.Collection = %q, want custom_collection", cfg.VectorIndex.Chromem.Collection)
				}
				if cfg.VectorIndex.Chromem.VectorSize != 768 {
					t.Errorf("VectorIndex.Chromem.VectorSize = %d, want 768", cfg.VectorIndex.Chromem.VectorSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg := Load()
			if cfg == nil {
				t.Fatal("Load() returned nil")
			}

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_PrivacyConfig(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "privacy defaults include common pii kinds",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				want := map[string]bool{"email": false, "phone": false, "ssn": false, "credit_card": false}
				for _, k := range cfg.Privacy.EnabledKinds {
					if _, ok := want[k]; ok {
						want[k] = true
					}
				}
				for k, found := range want {
					if !found {
						t.Errorf("Privacy.EnabledKinds missing %q", k)
					}
				}
			},
		},
		{
			name: "privacy environment override disables detection",
			env: map[string]string{
				"UAI_PRIVACY_ENABLE_PII_DETECTION": "false",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Privacy.EnablePIIDetection {
					t.Error("Privacy.EnablePIIDetection = true, want false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg := Load()
			if cfg == nil {
				t.Fatal("Load() returned nil")
			}

			tt.validate(t, cfg)
		})
	}
}

// Helper functions to save/restore environment.
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		env[e] = os.Getenv(e)
	}
	return env
}

func restoreEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}
