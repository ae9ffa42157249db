// Package config loads tmpshare settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anthanhphan/gosdk/logger"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	BlobFS    = "fs"
	BlobMinio = "minio"
)

// Config is the full runtime configuration.
type Config struct {
	Addr         string
	DataDir      string
	FilesDir     string
	HomePagePath string

	ExpireAfter     time.Duration
	CleanupInterval time.Duration
	MaxUploadBytes  int64
	EnableReaper    bool
	SweepOnRequest  bool

	MetadataBackend string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	BlobBackend string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	Bucket      string

	// RateLimit is requests per minute per client ip; 0 disables it.
	RateLimit int
	// TrustProxy honours X-Forwarded-* headers for client ip and links.
	TrustProxy bool

	Logger logger.Config
}

// Load reads the environment. Malformed numbers fall back to their
// defaults; Validate reports settings that cannot work together.
func Load() Config {
	dataDir := getenvDefault("TMPSHARE_DATA_DIR", "./data")

	cfg := Config{
		Addr:         getenvDefault("TMPSHARE_ADDR", ":8080"),
		DataDir:      dataDir,
		FilesDir:     getenvDefault("TMPSHARE_FILES_DIR", filepath.Join(dataDir, "files")),
		HomePagePath: getenvDefault("TMPSHARE_HOME_PAGE_PATH", "./home.html"),

		ExpireAfter:     time.Duration(getenvInt("TMPSHARE_EXPIRE_SECONDS", 60, 1)) * time.Second,
		CleanupInterval: time.Duration(getenvInt("TMPSHARE_CLEANUP_INTERVAL_SECONDS", 15, 1)) * time.Second,
		MaxUploadBytes:  getenvInt64("TMPSHARE_MAX_CONTENT_LENGTH", 100*1024*1024, 1),
		EnableReaper:    getenvBool("TMPSHARE_ENABLE_BG_CLEANUP", true),
		SweepOnRequest:  getenvBool("TMPSHARE_SWEEP_ON_REQUEST", true),

		MetadataBackend: strings.ToLower(getenvDefault("TMPSHARE_METADATA_BACKEND", BackendPostgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       getenvDefault("TMPSHARE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("TMPSHARE_REDIS_PASSWORD"),
		RedisDB:         getenvInt("TMPSHARE_REDIS_DB", 0, 0),

		BlobBackend: strings.ToLower(getenvDefault("TMPSHARE_BLOB_BACKEND", BlobFS)),
		S3Endpoint:  os.Getenv("TMPSHARE_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("TMPSHARE_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("TMPSHARE_S3_SECRET_KEY"),
		Bucket:      os.Getenv("TMPSHARE_BUCKET"),

		RateLimit:  getenvInt("TMPSHARE_RATE_LIMIT", 120, 0),
		TrustProxy: getenvBool("TMPSHARE_TRUST_PROXY", false),
	}

	cfg.Logger = logger.Config{
		LogLevel:    logger.LevelInfo,
		LogEncoding: logger.EncodingJSON,
	}
	return cfg
}

// Validate checks backend selection and the settings each backend needs.
func (c Config) Validate() error {
	v := &validator{}

	if c.Addr == "" {
		v.add("TMPSHARE_ADDR", "must not be empty")
	}

	switch c.MetadataBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			v.add("DATABASE_URL", "required when TMPSHARE_METADATA_BACKEND=postgres")
		} else if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.add("DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			v.add("TMPSHARE_REDIS_ADDR", "required when TMPSHARE_METADATA_BACKEND=redis")
		}
	case BackendMemory:
	default:
		v.add("TMPSHARE_METADATA_BACKEND", fmt.Sprintf("must be one of: postgres, redis, memory (got: %s)", c.MetadataBackend))
	}

	switch c.BlobBackend {
	case BlobFS:
		if c.FilesDir == "" {
			v.add("TMPSHARE_FILES_DIR", "must not be empty")
		}
	case BlobMinio:
		required := []struct{ key, val string }{
			{"TMPSHARE_S3_ENDPOINT", c.S3Endpoint},
			{"TMPSHARE_S3_ACCESS_KEY", c.S3AccessKey},
			{"TMPSHARE_S3_SECRET_KEY", c.S3SecretKey},
			{"TMPSHARE_BUCKET", c.Bucket},
		}
		for _, r := range required {
			if r.val == "" {
				v.add(r.key, "required when TMPSHARE_BLOB_BACKEND=minio")
			}
		}
	default:
		v.add("TMPSHARE_BLOB_BACKEND", fmt.Sprintf("must be one of: fs, minio (got: %s)", c.BlobBackend))
	}

	return v.err()
}

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

type validator struct {
	errors []ValidationError
}

func (v *validator) add(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *validator) err() error {
	if len(v.errors) == 0 {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(v.errors))
	for i, e := range v.errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, e.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// getenvDefault reads an environment variable and returns def if unset.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def, minimum int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(n, minimum)
}

func getenvInt64(key string, def, minimum int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return max(n, minimum)
}

func getenvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
