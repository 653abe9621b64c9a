// Package storagetest holds the behaviour every RunStore must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fidde/oxminer/pkg/models"
)

// RunStore mirrors storage.RunStore so this package stays import-cycle free.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error)
	Clear(ctx context.Context) error
	Close() error
}

// NewRun builds a record for session created at the given offset.
func NewRun(session string, offset time.Duration) *models.RunRecord {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.RunRecord{
		ID:         models.NewRunID(),
		SessionKey: session,
		Mode:       models.RunModeModel,
		Options:    models.DefaultMiningOptions(),
		EventTypes: []models.EventType{"place order"},
		Evaluations: map[models.EventType]models.ModelEvaluation{
			"place order": {Precision: 0.75, Recall: 0.5, Discrimination: 0.25, Simplicity: 1},
		},
		PatternCounts: map[models.EventType]int{"place order": 4},
		Created:       base.Add(offset),
	}
}

// Run exercises store. The store must start empty.
func Run(t *testing.T, store RunStore) {
	t.Helper()
	ctx := context.Background()

	first := NewRun("s1", 0)
	second := NewRun("s1", time.Minute)
	second.Mode = models.RunModeRules
	second.Options.TargetPatternDescription = "late delivery"
	other := NewRun("s2", 2*time.Minute)

	for _, run := range []*models.RunRecord{first, second, other} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	t.Run("GetRun", func(t *testing.T) {
		got, err := store.GetRun(ctx, second.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.SessionKey != "s1" || got.Mode != models.RunModeRules {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.Options.TargetPatternDescription != "late delivery" {
			t.Errorf("options not stored: %+v", got.Options)
		}
		if got.Evaluations["place order"].Precision != 0.75 {
			t.Errorf("evaluations not stored: %+v", got.Evaluations)
		}
		if got.PatternCounts["place order"] != 4 {
			t.Errorf("pattern counts not stored: %+v", got.PatternCounts)
		}
		if !got.Created.Equal(second.Created) {
			t.Errorf("created: got %v, want %v", got.Created, second.Created)
		}
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		_, err := store.GetRun(ctx, models.NewRunID())
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListRunsBySession", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, "s1")
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != second.ID || runs[1].ID != first.ID {
			t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
		}
	})

	t.Run("ListAllRuns", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, "")
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].ID != other.ID {
			t.Errorf("expected %s first, got %s", other.ID, runs[0].ID)
		}
	})

	t.Run("RejectsInvalidID", func(t *testing.T) {
		bad := NewRun("s1", 0)
		bad.ID = "../escape"
		if err := store.SaveRun(ctx, bad); !errors.Is(err, models.ErrInvalidRunID) {
			t.Errorf("expected ErrInvalidRunID, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		runs, err := store.ListRuns(ctx, "")
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected no runs after Clear, got %d", len(runs))
		}
	})
}
