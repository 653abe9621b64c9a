package graph

import (
	"testing"

	"github.com/fidde/oxminer/internal/reshape"
	"github.com/fidde/oxminer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter(t *testing.T) {
	p := Center(Box{Left: 10, Top: 20, Width: 100, Height: 40})
	assert.Equal(t, Point{X: 60, Y: 40}, p)
}

func TestEndpoints(t *testing.T) {
	layout := Geometry{
		Left:  []Box{{Left: 0, Top: 0, Width: 20, Height: 10}, {Left: 0, Top: 30, Width: 20, Height: 10}},
		Right: []Box{{Left: 200, Top: 0, Width: 40, Height: 20}},
	}

	edge, ok := Endpoints(layout, 1, 0)
	require.True(t, ok)
	assert.Equal(t, Edge{Left: 1, Right: 0, Start: Point{X: 10, Y: 35}, End: Point{X: 220, Y: 10}}, edge)
}

func TestEndpoints_Unresolved(t *testing.T) {
	mounted := Geometry{
		Left:  []Box{{Width: 10, Height: 10}},
		Right: []Box{{Left: 50, Width: 10, Height: 10}},
	}

	tests := []struct {
		name   string
		layout Layout
		i, j   int
	}{
		{"nil layout", nil, 0, 0},
		{"left not mounted", Geometry{Right: mounted.Right}, 0, 0},
		{"right not mounted", Geometry{Left: mounted.Left}, 0, 0},
		{"left index out of range", mounted, 1, 0},
		{"right index out of range", mounted, 0, 3},
		{"negative index", mounted, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				edge, ok := Endpoints(tt.layout, tt.i, tt.j)
				assert.False(t, ok)
				assert.Equal(t, Edge{}, edge)
			})
		})
	}
}

func TestAnchors_DoNotBorrowOtherIndexes(t *testing.T) {
	layout := Geometry{Left: []Box{{Left: 5, Top: 5, Width: 10, Height: 10}}}

	_, ok := LeftAnchor(layout, 1)
	assert.False(t, ok)
	p, ok := LeftAnchor(layout, 0)
	require.True(t, ok)
	assert.Equal(t, Point{X: 10, Y: 10}, p)
}

func TestBind_ModelResult(t *testing.T) {
	result := &reshape.ModelResult{
		ValidPatterns: []reshape.Group{{Support: 5, Labels: []string{"a"}, Links: []models.ObjectType{"orders"}}},
		Partitions: []reshape.Group{
			{Support: 2, Labels: []string{"b"}, Links: []models.ObjectType{"items", "orders"}},
			{Support: 3, Labels: []string{"c"}},
		},
		ObjectTypes: []models.ObjectType{"orders", "items"},
	}

	g := Bind(result)
	assert.Equal(t, reshape.ModeModel, g.Mode)
	require.Len(t, g.Panels, 1)

	panel := g.Panels[0]
	require.Len(t, panel.PatternNodes, 3)
	assert.True(t, panel.PatternNodes[0].Valid)
	assert.False(t, panel.PatternNodes[1].Valid)
	assert.Equal(t, []models.ObjectType{"orders", "items"}, panel.ObjectTypes)
	assert.Equal(t, []Link{{0, 0}, {1, 1}, {1, 0}}, panel.Links)

	// only the first pattern node is mounted so far
	layout := Geometry{
		Left:  []Box{{Width: 10, Height: 10}},
		Right: []Box{{Left: 100, Width: 10, Height: 10}, {Left: 100, Top: 20, Width: 10, Height: 10}},
	}
	edges := DrawableEdges(panel, layout)
	require.Len(t, edges, 1)
	assert.Equal(t, Point{X: 105, Y: 5}, edges[0].End)
}

func TestBind_RuleResult(t *testing.T) {
	result := &reshape.RuleResult{Rules: []reshape.RuleEntry{
		{
			Key:         "0",
			Antecedents: []string{"x > 1"},
			Partition: reshape.RulePartition{
				Key:         "0",
				ObjectTypes: []models.ObjectType{"orders"},
				SubModels: []reshape.SubModel{
					{Key: "0", Group: reshape.Group{Support: 4}},
					{Key: "1", Group: reshape.Group{Support: 1, Links: []models.ObjectType{"orders"}}},
					{Key: "2", Group: reshape.Group{Support: 6}},
				},
			},
		},
		{Key: "1", Antecedents: []string{"x <= 1"}, Partition: reshape.RulePartition{Key: "1"}},
	}}

	g := Bind(result)
	assert.Equal(t, reshape.ModeRules, g.Mode)
	require.Len(t, g.Panels, 2)

	first := g.Panels[0]
	assert.Equal(t, []string{"x > 1"}, first.Antecedents)
	require.Len(t, first.PatternNodes, 3)
	assert.Equal(t, []int{4, 1, 6}, []int{
		first.PatternNodes[0].Support, first.PatternNodes[1].Support, first.PatternNodes[2].Support,
	})
	assert.False(t, first.PatternNodes[0].Valid)
	assert.Equal(t, "2", first.PatternNodes[2].SubPartition)
	assert.Equal(t, []Link{{Left: 1, Right: 0}}, first.Links)

	second := g.Panels[1]
	assert.Equal(t, "1", second.Key)
	assert.Empty(t, second.PatternNodes)
	assert.Empty(t, second.ObjectTypes)
}

func TestBind_Nil(t *testing.T) {
	g := Bind(nil)
	assert.Empty(t, g.Panels)
}
