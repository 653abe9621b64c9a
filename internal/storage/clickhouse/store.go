package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/oxminer/pkg/models"
)

// Store is a ClickHouse-backed run history
type Store struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewStore connects, bootstraps the schema and returns the store
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn, logger: logger}, nil
}

func (s *Store) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	options, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	evaluations, err := json.Marshal(run.Evaluations)
	if err != nil {
		return fmt.Errorf("encoding evaluations: %w", err)
	}
	counts, err := json.Marshal(run.PatternCounts)
	if err != nil {
		return fmt.Errorf("encoding pattern counts: %w", err)
	}
	eventTypes := make([]string, len(run.EventTypes))
	for i, et := range run.EventTypes {
		eventTypes[i] = string(et)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO runs (id, session_key, mode, options, event_types, evaluations, pattern_counts, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionKey, string(run.Mode), string(options), eventTypes,
		string(evaluations), string(counts), run.Created,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	s.logger.Debug("run stored", "run_id", run.ID, "session_key", run.SessionKey)
	return nil
}

const selectRuns = `
	SELECT id, session_key, mode, options, event_types, evaluations, pattern_counts, created
	FROM runs FINAL`

func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.conn.QueryRow(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error) {
	var (
		rows driver.Rows
		err  error
	)
	if sessionKey == "" {
		rows, err = s.conn.Query(ctx, selectRuns+` ORDER BY created DESC`)
	} else {
		rows, err = s.conn.Query(ctx, selectRuns+` WHERE session_key = ? ORDER BY created DESC`, sessionKey)
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
		run                          models.RunRecord
		mode, options, evals, counts string
		eventTypes                   []string
	)
	if err := row.Scan(&run.ID, &run.SessionKey, &mode, &options, &eventTypes, &evals, &counts, &run.Created); err != nil {
		return nil, err
	}
	run.Mode = models.RunMode(mode)
	run.Created = run.Created.UTC()

	run.EventTypes = make([]models.EventType, len(eventTypes))
	for i, et := range eventTypes {
		run.EventTypes[i] = models.EventType(et)
	}
	if err := json.Unmarshal([]byte(options), &run.Options); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	if err := json.Unmarshal([]byte(evals), &run.Evaluations); err != nil {
		return nil, fmt.Errorf("decoding evaluations: %w", err)
	}
	if err := json.Unmarshal([]byte(counts), &run.PatternCounts); err != nil {
		return nil, fmt.Errorf("decoding pattern counts: %w", err)
	}
	return &run, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS runs"); err != nil {
		return fmt.Errorf("truncating runs: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
