package models

// PartitionResponse describes one group of a mined model: its support and
// the patterns that hold in it.
type PartitionResponse struct {
	// Support is the number of log occurrences covered by the group
	Support int `json:"support"`

	// PrettyPatternIDs are display labels (TeX), parallel to PatternIDs
	PrettyPatternIDs []string `json:"pretty_pattern_ids"`

	// PatternIDs are the machine labels of the patterns
	PatternIDs []string `json:"pattern_ids"`

	// ArgumentIDs lists, per object type, the pattern arguments of that type
	ArgumentIDs map[ObjectType][]string `json:"argument_ids,omitempty"`
}

// ModelResponse is the non-rule reply of the filtered-model endpoint: the
// patterns valid for the whole event type, plus the discriminating partitions.
type ModelResponse struct {
	ValidPatterns PartitionResponse          `json:"valid_patterns"`
	Partitions    Ordered[PartitionResponse] `json:"partitions"`
}

// RuleResponse is one rule of a split reply: the antecedent and one flat
// sub-model per sub-partition.
type RuleResponse struct {
	AntecedentIDs       []string                   `json:"antecedent_ids"`
	PrettyAntecedentIDs []string                   `json:"pretty_antecedent_ids"`
	ModelResponses      Ordered[PartitionResponse] `json:"model_responses"`
}

// SplitResponse is the rule-mode reply of the filtered-model endpoint.
type SplitResponse struct {
	Response Ordered[RuleResponse] `json:"response"`
}

// ModelEvaluation holds the quality scores of the model mined for one event
// type.
type ModelEvaluation struct {
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	Discrimination float64 `json:"discrimination"`
	Simplicity     float64 `json:"simplicity"`
}

// MiningResult is returned by both the model search and the rule search.
type MiningResult struct {
	ModelEvaluations map[EventType]ModelEvaluation `json:"model_evaluations"`
	AllPatterns      map[EventType][]string        `json:"all_patterns"`
}

// FilterRequest is the body of the filtered-model endpoint.
type FilterRequest struct {
	EventType       EventType    `json:"event-type"`
	ObjectTypes     []ObjectType `json:"object-types"`
	SplitPatternIDs []PatternID  `json:"split-pattern-ids,omitempty"`
}

// Ack is the acknowledgement of the custom pattern registration endpoint.
type Ack struct {
	Resp bool `json:"resp"`
}
