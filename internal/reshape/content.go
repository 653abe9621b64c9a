// Package reshape turns the nested model responses of the mining backend
// into the flat contents drawn by the bipartite model graph: groups of
// (support, pattern labels) on the left, object types on the right.
package reshape

import (
	"github.com/fidde/oxminer/pkg/models"
)

// Mode selects how a filtered-model response is shaped. It is sent along
// with the request rather than guessed from the payload.
type Mode int

const (
	// ModeModel expects a ModelResponse (valid patterns + partitions).
	ModeModel Mode = iota
	// ModeRules expects a SplitResponse (one entry per antecedent rule).
	ModeRules
)

func (m Mode) String() string {
	if m == ModeRules {
		return "rules"
	}
	return "model"
}

// MarshalText renders the mode as "model" or "rules".
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses "model" or "rules".
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "model", "":
		*m = ModeModel
	case "rules":
		*m = ModeRules
	default:
		return ErrUnknownMode
	}
	return nil
}

// Group is one left-hand node of the graph.
type Group struct {
	Support int      `json:"support"`
	Labels  []string `json:"labels"`

	// Links are the selected object types that occur among the group's
	// pattern arguments; each one becomes an edge.
	Links []models.ObjectType `json:"links"`
}

// Result is either a *ModelResult or a *RuleResult.
type Result interface {
	Mode() Mode
	isResult()
}

// ModelResult is the graph content of a non-rule response.
type ModelResult struct {
	// ValidPatterns always holds exactly one group: what qualifies for the
	// whole event type. It is kept apart from the discriminating partitions.
	ValidPatterns []Group `json:"valid_patterns"`

	// Partitions follow the backend's key order.
	Partitions []Group `json:"partitions"`

	// ObjectTypes is the right-hand column, nil when nothing is selected.
	ObjectTypes []models.ObjectType `json:"object_types,omitempty"`
}

// Mode implements Result.
func (*ModelResult) Mode() Mode { return ModeModel }
func (*ModelResult) isResult()  {}

// LeftContents returns the left column: valid patterns first, then the
// partitions.
func (r *ModelResult) LeftContents() []Group {
	out := make([]Group, 0, len(r.ValidPatterns)+len(r.Partitions))
	out = append(out, r.ValidPatterns...)
	out = append(out, r.Partitions...)
	return out
}

// SubModel is the model mined for one sub-partition of a rule.
type SubModel struct {
	Key string `json:"key"`
	Group
}

// RulePartition groups every sub-model of one rule with the object-type
// column.
type RulePartition struct {
	Key         string              `json:"key"`
	SubModels   []SubModel          `json:"sub_models"`
	ObjectTypes []models.ObjectType `json:"object_types,omitempty"`
}

// Tuple returns the sub-models as parallel (supports, labels) lists in
// sub-partition order.
func (p RulePartition) Tuple() ([]int, [][]string) {
	supports := make([]int, len(p.SubModels))
	labels := make([][]string, len(p.SubModels))
	for i, sub := range p.SubModels {
		supports[i] = sub.Support
		labels[i] = sub.Labels
	}
	return supports, labels
}

// RuleEntry keeps a rule's antecedent and its partition together, so the
// two can never drift apart.
type RuleEntry struct {
	Key         string        `json:"key"`
	Antecedents []string      `json:"antecedents"`
	Partition   RulePartition `json:"partition"`
}

// RuleResult is the graph content of a split response.
type RuleResult struct {
	Rules []RuleEntry `json:"rules"`
}

// Mode implements Result.
func (*RuleResult) Mode() Mode { return ModeRules }
func (*RuleResult) isResult()  {}

// AntecedentFormulas returns the pretty antecedent labels, index-aligned
// with Partitions.
func (r *RuleResult) AntecedentFormulas() [][]string {
	out := make([][]string, len(r.Rules))
	for i, rule := range r.Rules {
		out[i] = rule.Antecedents
	}
	return out
}

// Partitions returns the rule partitions, index-aligned with
// AntecedentFormulas.
func (r *RuleResult) Partitions() []RulePartition {
	out := make([]RulePartition, len(r.Rules))
	for i, rule := range r.Rules {
		out[i] = rule.Partition
	}
	return out
}

// Rule returns the entry of a rule by key.
func (r *RuleResult) Rule(key string) (RuleEntry, bool) {
	for _, rule := range r.Rules {
		if rule.Key == key {
			return rule, true
		}
	}
	return RuleEntry{}, false
}
