package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/oxminer/internal/storage/archive"
	"github.com/fidde/oxminer/internal/storage/clickhouse"
	"github.com/fidde/oxminer/internal/storage/dual"
	"github.com/fidde/oxminer/internal/storage/memory"
	"github.com/fidde/oxminer/internal/storage/sqlite"
)

// Config holds storage configuration.
type Config struct {
	// Backend selects the run history backend: "memory", "sqlite",
	// "clickhouse" or "archive"
	Backend string `yaml:"backend"`

	// Mirror, if set, names a second backend that receives a copy of every
	// run. Reads are served by Backend only.
	Mirror string `yaml:"mirror"`

	SQLitePath     string `yaml:"sqlite_path"`
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ArchiveDir     string `yaml:"archive_dir"`
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        "sqlite",
		SQLitePath:     "data/runs.db",
		ClickHouseAddr: "localhost:9000",
		ArchiveDir:     archive.DefaultDir,
	}
}

// NewStorage creates the run store selected by cfg.
func NewStorage(ctx context.Context, cfg Config, logger *slog.Logger) (RunStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := open(ctx, cfg.Backend, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Mirror == "" {
		return primary, nil
	}
	if cfg.Mirror == cfg.Backend {
		primary.Close()
		return nil, fmt.Errorf("mirror backend must differ from primary (%s)", cfg.Backend)
	}

	secondary, err := open(ctx, cfg.Mirror, cfg, logger)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("opening mirror: %w", err)
	}
	logger.Info("mirroring run history", "primary", cfg.Backend, "mirror", cfg.Mirror)
	return dual.New(dual.Config{Primary: primary, Secondary: secondary, Logger: logger}), nil
}

func open(ctx context.Context, backend string, cfg Config, logger *slog.Logger) (RunStore, error) {
	switch backend {
	case "memory":
		logger.Info("using in-memory run history")
		return memory.New(), nil

	case "sqlite":
		logger.Info("using SQLite run history", "path", cfg.SQLitePath)
		store, err := sqlite.New(sqlite.DefaultConfig(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		return store, nil

	case "clickhouse":
		logger.Info("using ClickHouse run history", "addr", cfg.ClickHouseAddr)
		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouseAddr

		store, err := clickhouse.NewStore(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	case "archive":
		logger.Info("using file archive run history", "dir", cfg.ArchiveDir)
		archiveCfg := archive.DefaultConfig()
		archiveCfg.Dir = cfg.ArchiveDir

		store, err := archive.New(archiveCfg)
		if err != nil {
			return nil, fmt.Errorf("creating archive store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, clickhouse, archive)", backend)
	}
}
