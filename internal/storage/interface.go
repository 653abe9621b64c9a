// Package storage defines the run history store of completed mining runs.
package storage

import (
	"context"

	"github.com/fidde/oxminer/pkg/models"
)

// RunStore is an append-only record of completed mining runs.
// Implementations must be safe for concurrent use.
type RunStore interface {
	// SaveRun stores a run. The ID must be set.
	SaveRun(ctx context.Context, run *models.RunRecord) error

	// GetRun returns models.ErrNotFound for an unknown id.
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)

	// ListRuns returns the runs of a backend session, newest first. An
	// empty session key lists all runs.
	ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error)

	// Clear all data
	Clear(ctx context.Context) error

	// Close the storage (for cleanup, e.g., DB connections)
	Close() error
}
