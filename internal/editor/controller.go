// Package editor drives the pattern-selection dropdowns over a search-plan
// model: which list is being edited, which patterns are available and which
// are kept, and the registration of user-written custom patterns.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/fidde/oxminer/internal/searchplan"
	"github.com/fidde/oxminer/pkg/models"
)

// Registrar submits a custom pattern to the backend and reports whether the
// backend accepted it.
type Registrar interface {
	RegisterCustomPattern(ctx context.Context, eventType models.EventType, id models.PatternID) (bool, error)
}

// RelatedObjectTypes lists the object types related to an event type.
type RelatedObjectTypes func(eventType models.EventType) []models.ObjectType

// Controller keeps the dropdown state of the pattern editor.
//
// The pending cursor is what the dropdowns show. It is pushed into the model
// on every change; the two views are then re-read from the baseline
// (Options) and the filtered plan (Selected).
type Controller struct {
	model     *searchplan.Model
	registrar Registrar
	related   RelatedObjectTypes
	logger    *slog.Logger

	pending  searchplan.Cursor
	options  []models.PatternID
	selected []models.PatternID
}

// New creates a controller over model.
func New(model *searchplan.Model, registrar Registrar, related RelatedObjectTypes, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if related == nil {
		related = func(models.EventType) []models.ObjectType { return nil }
	}
	return &Controller{
		model:     model,
		registrar: registrar,
		related:   related,
		logger:    logger,
	}
}

// SetEventType changes the edited event type.
func (c *Controller) SetEventType(eventType models.EventType) {
	c.pending.EventType = eventType
	c.refresh()
}

// SetPatternKind changes the edited pattern kind.
func (c *Controller) SetPatternKind(kind models.PatternKind) {
	c.pending.PatternKind = kind
	c.refresh()
}

// SetObjectType changes the edited object type.
func (c *Controller) SetObjectType(objectType models.ObjectType) {
	c.pending.ObjectType = objectType
	c.refresh()
}

// SetCursor replaces the whole pending cursor at once.
func (c *Controller) SetCursor(cursor searchplan.Cursor) {
	c.pending = cursor
	c.refresh()
}

// Cursor returns the pending cursor shown by the dropdowns.
func (c *Controller) Cursor() searchplan.Cursor {
	return c.pending
}

// Refresh re-reads both views, e.g. after the plan was reloaded.
func (c *Controller) Refresh() {
	c.refresh()
}

// Options returns the patterns available for the edited list (baseline).
func (c *Controller) Options() []models.PatternID {
	return clone(c.options)
}

// Selected returns the patterns kept in the edited list (filtered plan).
func (c *Controller) Selected() []models.PatternID {
	return clone(c.selected)
}

// ObjectTypeOptions lists the object types that can be picked for the
// interaction list of the edited event type.
func (c *Controller) ObjectTypeOptions() []models.ObjectType {
	if c.ObjectTypeSelectionDisabled() || c.pending.EventType == "" {
		return []models.ObjectType{}
	}
	return c.related(c.pending.EventType)
}

// ObjectTypeSelectionDisabled reports whether the object type dropdown is
// irrelevant for the current state.
func (c *Controller) ObjectTypeSelectionDisabled() bool {
	return !c.model.Loaded() || c.pending.PatternKind != models.PatternKindInteraction
}

// UpdateSelection stores the user's multi-select for the edited list in the
// filtered plan.
func (c *Controller) UpdateSelection(list []models.PatternID) searchplan.Outcome {
	// The model keeps its previous cursor when the pending one is
	// incomplete, so writing now would hit the wrong list.
	if !c.pending.Complete() {
		return searchplan.Skipped
	}
	outcome := c.model.WriteExposedList(list)
	if outcome == searchplan.Applied {
		c.selected = c.model.ReadExposedList(true)
	}
	return outcome
}

// ConfirmCustomPattern registers id for the edited event type. The model is
// only touched when the backend acknowledges the pattern; afterwards the
// editor switches to the custom list so the new pattern shows up. The
// outcome is the model's: Skipped when the id was already registered or
// the plan has no bundle for the event type.
func (c *Controller) ConfirmCustomPattern(ctx context.Context, id models.PatternID) (searchplan.Outcome, error) {
	eventType := c.pending.EventType
	if eventType == "" || id == "" || !c.model.Loaded() {
		return searchplan.Skipped, nil
	}
	if c.registrar == nil {
		return searchplan.Skipped, ErrNoRegistrar
	}

	ok, err := c.registrar.RegisterCustomPattern(ctx, eventType, id)
	if err != nil {
		return searchplan.Skipped, fmt.Errorf("registering custom pattern: %w", err)
	}
	if !ok {
		c.logger.Info("custom pattern rejected", "event_type", eventType, "pattern_id", id)
		return searchplan.Skipped, ErrPatternRejected
	}

	outcome := c.model.RegisterCustomPattern(eventType, id)
	if outcome == searchplan.Skipped && !slices.Contains(c.model.EventTypes(), eventType) {
		c.logger.Warn("no pattern bundle for acknowledged custom pattern", "event_type", eventType, "pattern_id", id)
		return searchplan.Skipped, nil
	}
	c.pending.PatternKind = models.PatternKindCustom
	c.refresh()
	c.logger.Debug("custom pattern registered", "event_type", eventType, "pattern_id", id, "outcome", outcome.String())
	return outcome, nil
}

func (c *Controller) refresh() {
	if c.model.SelectCursor(c.pending.EventType, c.pending.PatternKind, c.pending.ObjectType) == searchplan.Skipped {
		c.options = nil
		c.selected = nil
		return
	}
	c.options = c.model.ReadExposedList(false)
	c.selected = c.model.ReadExposedList(true)
}

func clone(ids []models.PatternID) []models.PatternID {
	out := make([]models.PatternID, len(ids))
	copy(out, ids)
	return out
}
