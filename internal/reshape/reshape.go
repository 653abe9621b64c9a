package reshape

import (
	"encoding/json"
	"fmt"

	"github.com/fidde/oxminer/pkg/models"
)

// ReshapeModel flattens a non-rule response. objectTypes is the column the
// user selected; it is copied verbatim and never filled from the response.
func ReshapeModel(resp *models.ModelResponse, objectTypes []models.ObjectType) *ModelResult {
	column := selectedColumn(objectTypes)
	result := &ModelResult{
		ValidPatterns: []Group{group(resp.ValidPatterns, column)},
		Partitions:    make([]Group, 0, len(resp.Partitions)),
		ObjectTypes:   column,
	}
	for _, entry := range resp.Partitions {
		result.Partitions = append(result.Partitions, group(entry.Value, column))
	}
	return result
}

// ReshapeSplit flattens a rule-mode response, one entry per rule in the
// backend's order.
func ReshapeSplit(resp *models.SplitResponse, objectTypes []models.ObjectType) *RuleResult {
	column := selectedColumn(objectTypes)
	result := &RuleResult{Rules: make([]RuleEntry, 0, len(resp.Response))}

	for _, rule := range resp.Response {
		partition := RulePartition{
			Key:         rule.Key,
			SubModels:   make([]SubModel, 0, len(rule.Value.ModelResponses)),
			ObjectTypes: column,
		}
		for _, sub := range rule.Value.ModelResponses {
			partition.SubModels = append(partition.SubModels, SubModel{
				Key:   sub.Key,
				Group: group(sub.Value, column),
			})
		}

		antecedents := make([]string, len(rule.Value.PrettyAntecedentIDs))
		copy(antecedents, rule.Value.PrettyAntecedentIDs)

		result.Rules = append(result.Rules, RuleEntry{
			Key:         rule.Key,
			Antecedents: antecedents,
			Partition:   partition,
		})
	}
	return result
}

// Decode parses a raw filtered-model payload according to mode and
// reshapes it.
func Decode(mode Mode, raw []byte, objectTypes []models.ObjectType) (Result, error) {
	switch mode {
	case ModeModel:
		var resp models.ModelResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decoding model response: %w", err)
		}
		return ReshapeModel(&resp, objectTypes), nil
	case ModeRules:
		var resp models.SplitResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decoding split response: %w", err)
		}
		return ReshapeSplit(&resp, objectTypes), nil
	default:
		return nil, ErrUnknownMode
	}
}

func group(p models.PartitionResponse, column []models.ObjectType) Group {
	labels := make([]string, len(p.PrettyPatternIDs))
	copy(labels, p.PrettyPatternIDs)

	var links []models.ObjectType
	for _, ot := range column {
		if len(p.ArgumentIDs[ot]) > 0 {
			links = append(links, ot)
		}
	}
	return Group{Support: p.Support, Labels: labels, Links: links}
}

func selectedColumn(objectTypes []models.ObjectType) []models.ObjectType {
	if len(objectTypes) == 0 {
		return nil
	}
	out := make([]models.ObjectType, len(objectTypes))
	copy(out, objectTypes)
	return out
}
