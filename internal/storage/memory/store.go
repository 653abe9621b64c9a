// Package memory provides an in-memory run history.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/fidde/oxminer/pkg/models"
)

// Store is an in-memory run history.
type Store struct {
	runs map[string]*models.RunRecord
	mu   sync.RWMutex
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs: make(map[string]*models.RunRecord),
	}
}

// SaveRun stores a copy of run.
func (s *Store) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if err := models.ValidateRunID(run.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, models.ErrNotFound
	}
	return run.Clone(), nil
}

// ListRuns returns the runs of sessionKey, newest first.
func (s *Store) ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if sessionKey != "" && run.SessionKey != sessionKey {
			continue
		}
		result = append(result, run.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Created.After(result[j].Created)
	})
	return result, nil
}

// Clear removes all runs.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]*models.RunRecord)
	return nil
}

// Close is a no-op for in-memory storage.
func (s *Store) Close() error {
	return nil
}
