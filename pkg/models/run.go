package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunMode distinguishes plain model searches from rule searches.
type RunMode string

const (
	RunModeModel RunMode = "model"
	RunModeRules RunMode = "rules"
)

var (
	// ErrInvalidOptions is returned when mining options are out of range.
	ErrInvalidOptions = errors.New("invalid mining options")

	// ErrInvalidRunID is returned for a run id that is not a UUID.
	ErrInvalidRunID = errors.New("invalid run id")
)

// MiningOptions are the knobs of a mining run. The rule fields are only sent
// with rule searches.
type MiningOptions struct {
	MinSupport        int  `json:"min_support" yaml:"min_support"`
	ComplementaryMode bool `json:"complementary_mode" yaml:"complementary_mode"`
	MergeMode         bool `json:"merge_mode" yaml:"merge_mode"`

	TargetPatternDescription string `json:"target_pattern_description,omitempty" yaml:"target_pattern_description"`
	MaxRuleAnteLength        int    `json:"max_rule_ante_length" yaml:"max_rule_ante_length"`
	MinRuleAnteSupport       int    `json:"min_rule_ante_support" yaml:"min_rule_ante_support"`
}

// DefaultMiningOptions mirrors the defaults of the original UI.
func DefaultMiningOptions() MiningOptions {
	return MiningOptions{
		MinSupport:         0,
		MaxRuleAnteLength:  1,
		MinRuleAnteSupport: 0,
	}
}

// Validate checks option ranges.
func (o MiningOptions) Validate() error {
	if o.MinSupport < 0 || o.MinRuleAnteSupport < 0 {
		return ErrInvalidOptions
	}
	if o.MaxRuleAnteLength < 1 {
		return ErrInvalidOptions
	}
	return nil
}

// RunRecord is the history entry of one completed mining run.
type RunRecord struct {
	ID            string                        `json:"id"`
	SessionKey    string                        `json:"session_key"`
	Mode          RunMode                       `json:"mode"`
	Options       MiningOptions                 `json:"options"`
	EventTypes    []EventType                   `json:"event_types"`
	Evaluations   map[EventType]ModelEvaluation `json:"evaluations"`
	PatternCounts map[EventType]int             `json:"pattern_counts"`
	Created       time.Time                     `json:"created"`
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// ValidateRunID checks that id is a UUID. Ids end up in file names, so
// anything else is rejected.
func ValidateRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.EventTypes != nil {
		out.EventTypes = append([]EventType(nil), r.EventTypes...)
	}
	if r.Evaluations != nil {
		out.Evaluations = make(map[EventType]ModelEvaluation, len(r.Evaluations))
		for k, v := range r.Evaluations {
			out.Evaluations[k] = v
		}
	}
	if r.PatternCounts != nil {
		out.PatternCounts = make(map[EventType]int, len(r.PatternCounts))
		for k, v := range r.PatternCounts {
			out.PatternCounts[k] = v
		}
	}
	return &out
}
