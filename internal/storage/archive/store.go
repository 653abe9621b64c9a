// Package archive provides file-based run history: one zstd-compressed JSON
// file per run.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/fidde/oxminer/pkg/models"
)

// Default configuration values
const (
	DefaultDir        = "./data/runs"
	DefaultMaxRunSize = 10 * 1024 * 1024 // 10MB
	DefaultMaxRuns    = 1000
	RunFileExtension  = ".json.zst"
)

var (
	// ErrArchiveFull is returned when MaxRuns is reached.
	ErrArchiveFull = errors.New("run archive is full")

	// ErrRunTooLarge is returned when an encoded run exceeds MaxRunSize.
	ErrRunTooLarge = errors.New("run exceeds size limit")
)

// Config contains archive configuration.
type Config struct {
	// Dir is the directory where runs are stored
	Dir string

	// MaxRunSize is the maximum encoded size of a single run in bytes
	MaxRunSize int64

	// MaxRuns is the maximum number of runs to keep
	MaxRuns int
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        DefaultDir,
		MaxRunSize: DefaultMaxRunSize,
		MaxRuns:    DefaultMaxRuns,
	}
}

// Store is a file-based run history.
type Store struct {
	config Config
	mu     sync.RWMutex
}

// New creates the archive directory if needed.
func New(config Config) (*Store, error) {
	if config.Dir == "" {
		config.Dir = DefaultDir
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Store{config: config}, nil
}

// SaveRun writes run to its own file. Saving an existing id overwrites it.
func (s *Store) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if s.config.MaxRunSize > 0 && int64(len(data)) > s.config.MaxRunSize {
		return ErrRunTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(run.ID)
	if _, err := os.Stat(path); os.IsNotExist(err) && s.config.MaxRuns > 0 {
		ids, err := s.idsLocked()
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(ids) >= s.config.MaxRuns {
			return ErrArchiveFull
		}
	}

	if err := writeCompressed(path, data); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	if err := models.ValidateRunID(id); err != nil {
		return nil, models.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.loadLocked(id)
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	return run, err
}

// ListRuns returns the runs of sessionKey, newest first. Unreadable files
// are skipped.
func (s *Store) ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.idsLocked()
	if err != nil {
		return nil, err
	}

	runs := []*models.RunRecord{}
	for _, id := range ids {
		run, err := s.loadLocked(id)
		if err != nil {
			continue
		}
		if sessionKey != "" && run.SessionKey != sessionKey {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Created.After(runs[j].Created)
	})
	return runs, nil
}

// Clear removes every run file.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.idsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(s.runPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing run file: %w", err)
		}
	}
	return nil
}

// Close is a no-op; files are closed after every operation.
func (s *Store) Close() error {
	return nil
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.config.Dir, id+RunFileExtension)
}

// idsLocked lists the run ids on disk (must hold lock).
func (s *Store) idsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, RunFileExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, RunFileExtension))
	}
	return ids, nil
}

// loadLocked reads one run file (must hold lock).
func (s *Store) loadLocked(id string) (*models.RunRecord, error) {
	data, err := readCompressed(s.runPath(id))
	if err != nil {
		return nil, err
	}
	var run models.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &run, nil
}

// writeCompressed writes data to a zstd-compressed file.
func writeCompressed(path string, data []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// readCompressed reads data from a zstd-compressed file.
func readCompressed(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	return io.ReadAll(zr)
}
