// Package graph binds reshaped model content to the nodes of the bipartite
// model graph and computes edge endpoints from the rendered node geometry.
//
// Geometry is supplied by the renderer as plain boxes; nothing here touches
// a live layout, so the mapping is testable on its own.
package graph

// Box is the rendered geometry of one node, relative to the graph container.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position in container coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Center returns the middle of b.
func Center(b Box) Point {
	return Point{
		X: b.Left + b.Width/2,
		Y: b.Top + b.Height/2,
	}
}

// Edge connects a left node to a right node.
type Edge struct {
	Left  int   `json:"left"`
	Right int   `json:"right"`
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Layout exposes the mounted node boxes of one graph panel. ok is false when
// the column is not mounted yet or holds no node at that index.
type Layout interface {
	LeftBox(index int) (Box, bool)
	RightBox(index int) (Box, bool)
}

// Geometry is a snapshot of the rendered node lists. A nil slice means the
// column is not mounted.
type Geometry struct {
	Left  []Box `json:"left"`
	Right []Box `json:"right"`
}

// LeftBox implements Layout.
func (g Geometry) LeftBox(index int) (Box, bool) {
	return boxAt(g.Left, index)
}

// RightBox implements Layout.
func (g Geometry) RightBox(index int) (Box, bool) {
	return boxAt(g.Right, index)
}

func boxAt(boxes []Box, index int) (Box, bool) {
	if boxes == nil || index < 0 || index >= len(boxes) {
		return Box{}, false
	}
	return boxes[index], true
}

// LeftAnchor returns the center of the left node at index.
func LeftAnchor(layout Layout, index int) (Point, bool) {
	if layout == nil {
		return Point{}, false
	}
	box, ok := layout.LeftBox(index)
	if !ok {
		return Point{}, false
	}
	return Center(box), true
}

// RightAnchor returns the center of the right node at index.
func RightAnchor(layout Layout, index int) (Point, bool) {
	if layout == nil {
		return Point{}, false
	}
	box, ok := layout.RightBox(index)
	if !ok {
		return Point{}, false
	}
	return Center(box), true
}

// Endpoints returns the edge between left node i and right node j. The edge
// is not drawable, and ok is false, until both endpoints resolve.
func Endpoints(layout Layout, i, j int) (Edge, bool) {
	start, ok := LeftAnchor(layout, i)
	if !ok {
		return Edge{}, false
	}
	end, ok := RightAnchor(layout, j)
	if !ok {
		return Edge{}, false
	}
	return Edge{Left: i, Right: j, Start: start, End: end}, true
}
