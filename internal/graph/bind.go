package graph

import (
	"github.com/fidde/oxminer/internal/reshape"
	"github.com/fidde/oxminer/pkg/models"
)

// PatternNode is a left-hand node: a group of patterns and its support.
type PatternNode struct {
	Support int      `json:"support"`
	Labels  []string `json:"labels"`

	// Valid marks the valid-patterns group, drawn apart from the partitions.
	Valid bool `json:"valid,omitempty"`

	// SubPartition is the sub-partition key in rule mode.
	SubPartition string `json:"sub_partition,omitempty"`
}

// Link is an edge candidate between node indexes of a panel.
type Link struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Panel is one bipartite graph. Model mode has a single panel, rule mode
// one per rule.
type Panel struct {
	Key          string              `json:"key,omitempty"`
	Antecedents  []string            `json:"antecedents,omitempty"`
	PatternNodes []PatternNode       `json:"pattern_nodes"`
	ObjectTypes  []models.ObjectType `json:"object_types"`
	Links        []Link              `json:"links"`
}

// Graph is the render-ready form of a reshaped result.
type Graph struct {
	Mode   reshape.Mode `json:"mode"`
	Panels []Panel      `json:"panels"`
}

// Bind lays a result out as node lists. A nil result binds to an empty
// graph.
func Bind(result reshape.Result) Graph {
	switch r := result.(type) {
	case *reshape.ModelResult:
		p := newPanel(r.ObjectTypes)
		for i, g := range r.LeftContents() {
			p.add(g, i < len(r.ValidPatterns), "")
		}
		return Graph{Mode: reshape.ModeModel, Panels: []Panel{p.Panel}}

	case *reshape.RuleResult:
		out := Graph{Mode: reshape.ModeRules, Panels: make([]Panel, 0, len(r.Rules))}
		for _, rule := range r.Rules {
			p := newPanel(rule.Partition.ObjectTypes)
			p.Key = rule.Key
			p.Antecedents = rule.Antecedents
			for _, sub := range rule.Partition.SubModels {
				p.add(sub.Group, false, sub.Key)
			}
			out.Panels = append(out.Panels, p.Panel)
		}
		return out
	}
	return Graph{Panels: []Panel{}}
}

// DrawableEdges returns the edges of panel whose endpoints are both mounted
// in layout.
func DrawableEdges(panel Panel, layout Layout) []Edge {
	edges := make([]Edge, 0, len(panel.Links))
	for _, link := range panel.Links {
		if edge, ok := Endpoints(layout, link.Left, link.Right); ok {
			edges = append(edges, edge)
		}
	}
	return edges
}

type panelBuilder struct {
	Panel
	column map[models.ObjectType]int
}

func newPanel(objectTypes []models.ObjectType) *panelBuilder {
	b := &panelBuilder{
		Panel: Panel{
			PatternNodes: []PatternNode{},
			ObjectTypes:  []models.ObjectType{},
			Links:        []Link{},
		},
		column: make(map[models.ObjectType]int, len(objectTypes)),
	}
	for i, ot := range objectTypes {
		b.ObjectTypes = append(b.ObjectTypes, ot)
		b.column[ot] = i
	}
	return b
}

func (b *panelBuilder) add(g reshape.Group, valid bool, subPartition string) {
	left := len(b.PatternNodes)
	b.PatternNodes = append(b.PatternNodes, PatternNode{
		Support:      g.Support,
		Labels:       g.Labels,
		Valid:        valid,
		SubPartition: subPartition,
	})
	for _, ot := range g.Links {
		if right, ok := b.column[ot]; ok {
			b.Links = append(b.Links, Link{Left: left, Right: right})
		}
	}
}
