// Package config loads the server configuration from an optional YAML file
// and OXM_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fidde/oxminer/internal/backend"
	"github.com/fidde/oxminer/internal/storage"
	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/pkg/models"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxUploadBytes bounds the multipart body of a log upload
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Log       LogConfig               `yaml:"log"`
	Backend   backend.Config          `yaml:"backend"`
	Storage   storage.Config          `yaml:"storage"`
	Workbench workbench.ManagerConfig `yaml:"workbench"`

	// ValidatePayloads turns on JSON schema checks of backend responses
	ValidatePayloads bool `yaml:"validate_payloads"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8080",
			RequestTimeout:  10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  512 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backend: backend.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Workbench: workbench.ManagerConfig{
			MaxSessions: 64,
			IdleTTL:     2 * time.Hour,
			Session: workbench.Config{
				DefaultOptions: models.DefaultMiningOptions(),
			},
		},
		ValidatePayloads: true,
	}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("OXM_API_ADDR", cfg.Server.Addr)
	cfg.Server.RequestTimeout = getEnvDuration("OXM_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.MaxUploadBytes = int64(getEnvInt("OXM_MAX_UPLOAD_BYTES", int(cfg.Server.MaxUploadBytes)))

	cfg.Log.Level = getEnv("OXM_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("OXM_LOG_FORMAT", cfg.Log.Format)

	cfg.Backend.BaseURL = getEnv("OXM_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout = getEnvDuration("OXM_BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.CacheSize = getEnvInt("OXM_MODEL_CACHE_SIZE", cfg.Backend.CacheSize)

	cfg.Storage.Backend = getEnv("OXM_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Mirror = getEnv("OXM_STORAGE_MIRROR", cfg.Storage.Mirror)
	cfg.Storage.SQLitePath = getEnv("OXM_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.ClickHouseAddr = getEnv("OXM_CLICKHOUSE_ADDR", cfg.Storage.ClickHouseAddr)
	cfg.Storage.ArchiveDir = getEnv("OXM_ARCHIVE_DIR", cfg.Storage.ArchiveDir)

	cfg.Workbench.MaxSessions = getEnvInt("OXM_MAX_WORKBENCHES", cfg.Workbench.MaxSessions)
	cfg.Workbench.IdleTTL = getEnvDuration("OXM_WORKBENCH_IDLE_TTL", cfg.Workbench.IdleTTL)
	cfg.Workbench.Session.MaxAttrLabels = getEnvInt("OXM_MAX_ATTR_LABELS", cfg.Workbench.Session.MaxAttrLabels)

	cfg.ValidatePayloads = getEnvBool("OXM_VALIDATE_PAYLOADS", cfg.ValidatePayloads)
}

// Validate checks the values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("%w: backend.base_url is empty", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if err := c.Workbench.Session.DefaultOptions.Validate(); err != nil {
		return fmt.Errorf("%w: workbench.session.default_options: %v", ErrInvalidConfig, err)
	}
	return nil
}

// NewLogger builds the process logger.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
