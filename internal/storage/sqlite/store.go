// Package sqlite provides a SQLite-backed run history.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fidde/oxminer/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_run_history.up.sql
var migrationSQL string

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sqlite store closed")

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB

	// Batch writer
	writeCh   chan writeOp
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// closed is guarded by mu; senders hold the read lock while enqueueing
	mu     sync.RWMutex
	closed bool
}

// writeOp represents a write operation to be batched.
type writeOp struct {
	run  *models.RunRecord
	done chan error
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath        string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:        dbPath,
		BatchSize:     100,
		FlushInterval: 100 * time.Millisecond,
	}
}

// New creates a new SQLite store with the given configuration.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	store := &Store{
		db:      db,
		writeCh: make(chan writeOp, 100),
		closeCh: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.batchWriter(cfg.BatchSize, cfg.FlushInterval)

	return store, nil
}

// batchWriter runs in a goroutine and batches write operations.
func (s *Store) batchWriter(batchSize int, flushInterval time.Duration) {
	defer s.wg.Done()

	batch := make([]writeOp, 0, max(batchSize, 1))
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := s.executeBatch(batch)
		for i := range batch {
			batch[i].done <- err
			close(batch[i].done)
		}
		batch = batch[:0]
	}

	for {
		select {
		case op := <-s.writeCh:
			batch = append(batch, op)
			if batchSize > 0 && len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.closeCh:
			for {
				select {
				case op := <-s.writeCh:
					batch = append(batch, op)
				default:
					flush()
					return
				}
			}
		}
	}
}

// executeBatch runs a batch of write operations in a single transaction.
func (s *Store) executeBatch(batch []writeOp) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range batch {
		if err := insertRunTx(tx, op.run); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertRunTx(tx *sql.Tx, run *models.RunRecord) error {
	options, err := encodeJSON(run.Options)
	if err != nil {
		return err
	}
	eventTypes, err := encodeJSON(run.EventTypes)
	if err != nil {
		return err
	}
	evaluations, err := encodeJSON(run.Evaluations)
	if err != nil {
		return err
	}
	counts, err := encodeJSON(run.PatternCounts)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs
			(id, session_key, mode, options, event_types, evaluations, pattern_counts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionKey, string(run.Mode), options, eventTypes, evaluations, counts,
		run.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// SaveRun queues run for the batch writer and waits for its transaction.
func (s *Store) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	op := writeOp{run: run.Clone(), done: make(chan error, 1)}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	case s.writeCh <- op:
	}
	s.mu.RUnlock()

	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

const selectRun = `
	SELECT id, session_key, mode, options, event_types, evaluations, pattern_counts, created_at
	FROM runs`

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs of sessionKey, newest first.
func (s *Store) ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if sessionKey == "" {
		rows, err = s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectRun+` WHERE session_key = ? ORDER BY created_at DESC`, sessionKey)
	}
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	result := []*models.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunRecord, error) {
	var (
		run                                      models.RunRecord
		mode, options, eventTypes, evals, counts string
		created                                  int64
	)
	if err := row.Scan(&run.ID, &run.SessionKey, &mode, &options, &eventTypes, &evals, &counts, &created); err != nil {
		return nil, err
	}
	run.Mode = models.RunMode(mode)
	run.Created = time.Unix(0, created).UTC()

	if err := decodeJSON(options, &run.Options); err != nil {
		return nil, err
	}
	if err := decodeJSON(eventTypes, &run.EventTypes); err != nil {
		return nil, err
	}
	if err := decodeJSON(evals, &run.Evaluations); err != nil {
		return nil, err
	}
	if err := decodeJSON(counts, &run.PatternCounts); err != nil {
		return nil, err
	}
	return &run, nil
}

// Clear removes all stored runs.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.closeCh)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// encodeJSON encodes data as JSON string.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return string(data), nil
}

// decodeJSON decodes a JSON column.
func decodeJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	return nil
}
