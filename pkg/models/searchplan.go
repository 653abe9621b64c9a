// Package models defines the wire structures exchanged with the pattern-mining
// backend and the browser UI.
//
// Identifiers (event types, object types, pattern ids) are opaque strings
// produced by the backend. The client never invents them, it only compares
// them for containment.
package models

import (
	"errors"
	"sort"
)

// ErrNotFound is returned when a requested item is not found.
// Storage implementations wrap this error when an item doesn't exist.
var ErrNotFound = errors.New("not found")

// EventType identifies an event type (activity) of the uploaded log.
type EventType string

// ObjectType identifies an object type of the uploaded log.
type ObjectType string

// PatternID is the machine identifier of a candidate pattern.
type PatternID string

// PatternKind names one of the three pattern collections of a bundle.
// The values double as the JSON keys used by the backend.
type PatternKind string

const (
	PatternKindBasic       PatternKind = "basic_patterns"
	PatternKindInteraction PatternKind = "interaction_patterns"
	PatternKindCustom      PatternKind = "custom_patterns"
)

// Valid reports whether k is one of the known pattern kinds.
func (k PatternKind) Valid() bool {
	switch k {
	case PatternKindBasic, PatternKindInteraction, PatternKindCustom:
		return true
	}
	return false
}

// PatternBundle holds the candidate patterns of one event type.
type PatternBundle struct {
	// Basic patterns only refer to the event itself
	Basic []PatternID `json:"basic_patterns"`

	// Interaction patterns, one list per related object type
	Interaction map[ObjectType][]PatternID `json:"interaction_patterns"`

	// Custom patterns registered by the user at runtime
	Custom []PatternID `json:"custom_patterns"`
}

// Clone returns a deep copy of the bundle.
func (b *PatternBundle) Clone() *PatternBundle {
	if b == nil {
		return nil
	}
	out := &PatternBundle{
		Basic:  clonePatterns(b.Basic),
		Custom: clonePatterns(b.Custom),
	}
	if b.Interaction != nil {
		out.Interaction = make(map[ObjectType][]PatternID, len(b.Interaction))
		for ot, ids := range b.Interaction {
			out.Interaction[ot] = clonePatterns(ids)
		}
	}
	return out
}

// SearchPlan is the per-event-type catalog of candidate patterns.
type SearchPlan struct {
	Patterns map[EventType]*PatternBundle `json:"patterns"`
}

// Clone returns a deep copy of the plan. The copy shares no slice or map
// with the receiver.
func (p *SearchPlan) Clone() *SearchPlan {
	if p == nil {
		return nil
	}
	out := &SearchPlan{}
	if p.Patterns != nil {
		out.Patterns = make(map[EventType]*PatternBundle, len(p.Patterns))
		for et, bundle := range p.Patterns {
			out.Patterns[et] = bundle.Clone()
		}
	}
	return out
}

// Bundle returns the bundle of an event type, or nil.
func (p *SearchPlan) Bundle(eventType EventType) *PatternBundle {
	if p == nil || p.Patterns == nil {
		return nil
	}
	return p.Patterns[eventType]
}

// EventTypes returns the event types present in the plan, sorted.
func (p *SearchPlan) EventTypes() []EventType {
	if p == nil {
		return nil
	}
	out := make([]EventType, 0, len(p.Patterns))
	for et := range p.Patterns {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PatternCount returns the number of pattern ids listed for an event type,
// across all kinds.
func (p *SearchPlan) PatternCount(eventType EventType) int {
	b := p.Bundle(eventType)
	if b == nil {
		return 0
	}
	n := len(b.Basic) + len(b.Custom)
	for _, ids := range b.Interaction {
		n += len(ids)
	}
	return n
}

// ContainsPattern reports whether id is in ids.
func ContainsPattern(ids []PatternID, id PatternID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func clonePatterns(ids []PatternID) []PatternID {
	if ids == nil {
		return nil
	}
	out := make([]PatternID, len(ids))
	copy(out, ids)
	return out
}
