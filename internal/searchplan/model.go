// Package searchplan holds the baseline and the filtered search plan of a
// workbench, plus the edit cursor pointing at one of their leaf lists.
//
// The baseline is the catalog the backend proposed; the filtered plan is the
// user's curated subset that gets submitted for mining. Both are independent
// deep copies taken at load time, so curating never touches the baseline and
// Reset can always restore it.
//
// Model is not safe for concurrent use. The owning workbench serializes
// access.
package searchplan

import (
	"github.com/fidde/oxminer/pkg/models"
)

// Outcome tells whether a mutating operation changed anything.
type Outcome int

const (
	// Skipped means a precondition was missing and nothing happened.
	Skipped Outcome = iota
	// Applied means the operation ran, possibly with an empty effect.
	Applied
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "skipped"
}

// MarshalText renders the outcome as "applied" or "skipped".
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses "applied"; anything else is Skipped.
func (o *Outcome) UnmarshalText(text []byte) error {
	*o = Skipped
	if string(text) == "applied" {
		*o = Applied
	}
	return nil
}

// Cursor identifies one leaf list of a search plan.
type Cursor struct {
	EventType   models.EventType   `json:"event_type,omitempty"`
	PatternKind models.PatternKind `json:"pattern_kind,omitempty"`
	ObjectType  models.ObjectType  `json:"object_type,omitempty"`
}

// Complete reports whether the cursor addresses a list. Interaction lists
// need an object type in addition to the event type and kind.
func (c Cursor) Complete() bool {
	if c.EventType == "" || !c.PatternKind.Valid() {
		return false
	}
	if c.PatternKind == models.PatternKindInteraction && c.ObjectType == "" {
		return false
	}
	return true
}

// Model is the search-plan state of one workbench.
type Model struct {
	baseline *models.SearchPlan
	filtered *models.SearchPlan
	cursor   Cursor
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// Load replaces both plans with independent deep copies of plan.
func (m *Model) Load(plan *models.SearchPlan) {
	m.baseline = plan.Clone()
	m.filtered = plan.Clone()
}

// Loaded reports whether a plan has been loaded.
func (m *Model) Loaded() bool {
	return m.baseline != nil
}

// Reset discards the curation and copies the baseline into the filtered plan.
func (m *Model) Reset() Outcome {
	if m.baseline == nil {
		return Skipped
	}
	m.filtered = m.baseline.Clone()
	return Applied
}

// SelectCursor moves the cursor. An incomplete triple is rejected and the
// previous cursor is kept.
func (m *Model) SelectCursor(eventType models.EventType, kind models.PatternKind, objectType models.ObjectType) Outcome {
	next := Cursor{EventType: eventType, PatternKind: kind, ObjectType: objectType}
	if !next.Complete() {
		return Skipped
	}
	if kind != models.PatternKindInteraction {
		next.ObjectType = ""
	}
	m.cursor = next
	return Applied
}

// Cursor returns the current cursor.
func (m *Model) Cursor() Cursor {
	return m.cursor
}

// ReadExposedList returns a copy of the list under the cursor, from the
// filtered plan or from the baseline. It returns an empty list when the
// cursor is incomplete or points at nothing.
func (m *Model) ReadExposedList(fromFiltered bool) []models.PatternID {
	plan := m.baseline
	if fromFiltered {
		plan = m.filtered
	}
	list := leaf(plan, m.cursor)
	out := make([]models.PatternID, len(list))
	copy(out, list)
	return out
}

// WriteExposedList overwrites the filtered list under the cursor with a copy
// of list.
func (m *Model) WriteExposedList(list []models.PatternID) Outcome {
	if !m.cursor.Complete() {
		return Skipped
	}
	bundle := m.filtered.Bundle(m.cursor.EventType)
	if bundle == nil {
		return Skipped
	}

	value := make([]models.PatternID, len(list))
	copy(value, list)

	switch m.cursor.PatternKind {
	case models.PatternKindBasic:
		bundle.Basic = value
	case models.PatternKindCustom:
		bundle.Custom = value
	case models.PatternKindInteraction:
		if bundle.Interaction == nil {
			bundle.Interaction = make(map[models.ObjectType][]models.PatternID)
		}
		bundle.Interaction[m.cursor.ObjectType] = value
	}
	return Applied
}

// RegisterCustomPattern appends id to the custom list of eventType in both
// plans. Each list is checked on its own, so calling it twice never creates
// a duplicate. It returns Applied when at least one list changed.
func (m *Model) RegisterCustomPattern(eventType models.EventType, id models.PatternID) Outcome {
	if eventType == "" || id == "" {
		return Skipped
	}
	changed := false
	for _, plan := range []*models.SearchPlan{m.baseline, m.filtered} {
		bundle := plan.Bundle(eventType)
		if bundle == nil {
			continue
		}
		if !models.ContainsPattern(bundle.Custom, id) {
			bundle.Custom = append(bundle.Custom, id)
			changed = true
		}
	}
	if !changed {
		return Skipped
	}
	return Applied
}

// Baseline returns a deep copy of the baseline plan.
func (m *Model) Baseline() *models.SearchPlan {
	return m.baseline.Clone()
}

// Filtered returns a deep copy of the filtered plan.
func (m *Model) Filtered() *models.SearchPlan {
	return m.filtered.Clone()
}

// EventTypes lists the event types of the baseline plan.
func (m *Model) EventTypes() []models.EventType {
	return m.baseline.EventTypes()
}

func leaf(plan *models.SearchPlan, c Cursor) []models.PatternID {
	if !c.Complete() {
		return nil
	}
	bundle := plan.Bundle(c.EventType)
	if bundle == nil {
		return nil
	}
	switch c.PatternKind {
	case models.PatternKindBasic:
		return bundle.Basic
	case models.PatternKindCustom:
		return bundle.Custom
	case models.PatternKindInteraction:
		return bundle.Interaction[c.ObjectType]
	}
	return nil
}
