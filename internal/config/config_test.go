package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TMPSHARE_ADDR", "TMPSHARE_DATA_DIR", "TMPSHARE_FILES_DIR", "TMPSHARE_HOME_PAGE_PATH",
		"TMPSHARE_EXPIRE_SECONDS", "TMPSHARE_CLEANUP_INTERVAL_SECONDS", "TMPSHARE_MAX_CONTENT_LENGTH",
		"TMPSHARE_ENABLE_BG_CLEANUP", "TMPSHARE_SWEEP_ON_REQUEST", "TMPSHARE_METADATA_BACKEND",
		"DATABASE_URL", "TMPSHARE_REDIS_ADDR", "TMPSHARE_REDIS_PASSWORD", "TMPSHARE_REDIS_DB",
		"TMPSHARE_BLOB_BACKEND", "TMPSHARE_S3_ENDPOINT", "TMPSHARE_S3_ACCESS_KEY",
		"TMPSHARE_S3_SECRET_KEY", "TMPSHARE_BUCKET", "TMPSHARE_RATE_LIMIT",
		"TMPSHARE_TRUST_PROXY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.FilesDir != filepath.Join("./data", "files") {
		t.Errorf("FilesDir = %q", cfg.FilesDir)
	}
	if cfg.ExpireAfter != 60*time.Second {
		t.Errorf("ExpireAfter = %v", cfg.ExpireAfter)
	}
	if cfg.CleanupInterval != 15*time.Second {
		t.Errorf("CleanupInterval = %v", cfg.CleanupInterval)
	}
	if cfg.MaxUploadBytes != 104857600 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if !cfg.EnableReaper || !cfg.SweepOnRequest {
		t.Errorf("EnableReaper=%v SweepOnRequest=%v, want both true", cfg.EnableReaper, cfg.SweepOnRequest)
	}
	if cfg.MetadataBackend != BackendPostgres || cfg.BlobBackend != BlobFS {
		t.Errorf("backends = %s/%s", cfg.MetadataBackend, cfg.BlobBackend)
	}
	if cfg.RateLimit != 120 {
		t.Errorf("RateLimit = %d", cfg.RateLimit)
	}
	if cfg.TrustProxy {
		t.Error("TrustProxy must default to false")
	}
}

func TestLoad_FilesDirFollowsDataDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("TMPSHARE_DATA_DIR", "/srv/tmpshare")
	if got := Load().FilesDir; got != filepath.Join("/srv/tmpshare", "files") {
		t.Fatalf("FilesDir = %q", got)
	}
}

func TestLoad_IntegerClamping(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"valid", "120", 120 * time.Second},
		{"below minimum", "0", time.Second},
		{"negative", "-5", time.Second},
		{"garbage falls back", "soon", 60 * time.Second},
		{"whitespace", " 30 ", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TMPSHARE_EXPIRE_SECONDS", tt.value)
			if got := Load().ExpireAfter; got != tt.want {
				t.Errorf("ExpireAfter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_MaxContentLengthMinimum(t *testing.T) {
	clearEnv(t)
	t.Setenv("TMPSHARE_MAX_CONTENT_LENGTH", "0")
	if got := Load().MaxUploadBytes; got != 1 {
		t.Fatalf("MaxUploadBytes = %d, want 1", got)
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"off", false},
		{"nope", false},
	}
	for _, tt := range tests {
		t.Setenv("TMPSHARE_ENABLE_BG_CLEANUP", tt.value)
		if got := getenvBool("TMPSHARE_ENABLE_BG_CLEANUP", true); got != tt.want {
			t.Errorf("getenvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Addr:            ":8080",
			FilesDir:        "./data/files",
			MetadataBackend: BackendMemory,
			BlobBackend:     BlobFS,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory + fs ok", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.MetadataBackend = BackendPostgres }, "DATABASE_URL"},
		{"postgres bad scheme", func(c *Config) {
			c.MetadataBackend = BackendPostgres
			c.DatabaseURL = "mysql://x"
		}, "PostgreSQL"},
		{"postgres ok", func(c *Config) {
			c.MetadataBackend = BackendPostgres
			c.DatabaseURL = "postgres://u:p@localhost:5432/tmpshare"
		}, ""},
		{"redis without addr", func(c *Config) { c.MetadataBackend = BackendRedis }, "TMPSHARE_REDIS_ADDR"},
		{"unknown metadata", func(c *Config) { c.MetadataBackend = "sqlite" }, "TMPSHARE_METADATA_BACKEND"},
		{"minio incomplete", func(c *Config) {
			c.BlobBackend = BlobMinio
			c.S3Endpoint = "minio:9000"
		}, "TMPSHARE_BUCKET"},
		{"unknown blob", func(c *Config) { c.BlobBackend = "gcs" }, "TMPSHARE_BLOB_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
