package overlay

import (
	"math"

	"github.com/hazyhaar/domcanvas/layer"
)

// DefaultSnapEpsilon is the world-space distance within which a dragged
// bound snaps to a candidate alignment line.
const DefaultSnapEpsilon = 4.0

// Axis orients an alignment guide.
type Axis string

const (
	AxisVertical   Axis = "vertical"   // a constant-x line
	AxisHorizontal Axis = "horizontal" // a constant-y line
)

// Guide is one alignment line to render while a snap is active.
type Guide struct {
	Axis Axis    `json:"axis"`
	Pos  float64 `json:"pos"`
}

// Snap aligns r against the candidate rects. Each candidate contributes
// six lines: left, horizontal center and right verticals plus top,
// vertical center and bottom horizontals. Per axis, the line nearest to
// any corresponding bound of r within eps wins; that bound snaps exactly
// onto it and the guide is reported. At most one guide fires per axis.
func Snap(r layer.Rect, candidates []layer.Rect, eps float64) (layer.Rect, []Guide) {
	if eps <= 0 {
		eps = DefaultSnapEpsilon
	}
	var guides []Guide

	if shift, line, ok := bestShift(
		[]float64{r.X, r.CenterX(), r.Right()},
		candidates, eps,
		func(c layer.Rect) []float64 { return []float64{c.X, c.CenterX(), c.Right()} },
	); ok {
		r.X += shift
		guides = append(guides, Guide{Axis: AxisVertical, Pos: line})
	}

	if shift, line, ok := bestShift(
		[]float64{r.Y, r.CenterY(), r.Bottom()},
		candidates, eps,
		func(c layer.Rect) []float64 { return []float64{c.Y, c.CenterY(), c.Bottom()} },
	); ok {
		r.Y += shift
		guides = append(guides, Guide{Axis: AxisHorizontal, Pos: line})
	}

	return r, guides
}

// bestShift finds the smallest translation that puts one of the dragged
// bounds exactly on a candidate line, within eps.
func bestShift(bounds []float64, candidates []layer.Rect, eps float64, lines func(layer.Rect) []float64) (shift, line float64, ok bool) {
	best := math.Inf(1)
	for _, c := range candidates {
		for _, l := range lines(c) {
			for _, b := range bounds {
				d := l - b
				if math.Abs(d) <= eps && math.Abs(d) < math.Abs(best) {
					best = d
					line = l
					ok = true
				}
			}
		}
	}
	if !ok {
		return 0, 0, false
	}
	return best, line, true
}

// SiblingRects returns the rotated world footprints of id's visible
// siblings, the candidate set for smart guides while dragging id.
func SiblingRects(t *layer.Tree, id string) []layer.Rect {
	l, ok := t.Get(id)
	if !ok || l.ParentID == "" {
		return nil
	}
	siblings := t.Children(l.ParentID)
	rects := make([]layer.Rect, 0, len(siblings))
	for _, s := range siblings {
		if s.ID == id || !s.Visible {
			continue
		}
		rects = append(rects, RotatedAABB(s))
	}
	return rects
}
