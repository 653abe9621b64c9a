// Package dual mirrors run history writes to a second backend.
package dual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidde/oxminer/pkg/models"
)

// Backend is the run store contract of both sides; it matches
// storage.RunStore.
type Backend interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error)
	Clear(ctx context.Context) error
	Close() error
}

// Store wraps two run stores.
// Writes go to both primary and secondary.
// Reads come from primary only.
type Store struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger
	pending   sync.WaitGroup
}

// Config holds dual store configuration.
type Config struct {
	Primary   Backend
	Secondary Backend
	Logger    *slog.Logger
}

// New creates a new dual-write store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		logger:    cfg.Logger,
	}
}

// SaveRun stores the run in primary, then mirrors it in the background.
// Errors from secondary are logged but don't fail the operation.
func (s *Store) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if err := s.primary.SaveRun(ctx, run); err != nil {
		return err
	}

	mirrored := run.Clone()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.secondary.SaveRun(context.WithoutCancel(ctx), mirrored); err != nil {
			s.logger.Error("dual-write to secondary failed",
				"run_id", mirrored.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// GetRun reads from primary only.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	return s.primary.GetRun(ctx, id)
}

// ListRuns reads from primary only.
func (s *Store) ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error) {
	return s.primary.ListRuns(ctx, sessionKey)
}

// Clear clears both backends.
func (s *Store) Clear(ctx context.Context) error {
	s.pending.Wait()

	if err := s.primary.Clear(ctx); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	// Clear secondary (best effort)
	if err := s.secondary.Clear(ctx); err != nil {
		s.logger.Error("failed to clear secondary backend",
			"error", err,
		)
	}
	return nil
}

// Close waits for pending mirror writes and closes both backends.
func (s *Store) Close() error {
	s.pending.Wait()

	primaryErr := s.primary.Close()
	secondaryErr := s.secondary.Close()

	if primaryErr != nil {
		return fmt.Errorf("close primary: %w", primaryErr)
	}
	if secondaryErr != nil {
		return fmt.Errorf("close secondary: %w", secondaryErr)
	}
	return nil
}
