// Package overlay implements the interaction geometry over the canvas:
// selection bounds, marquee and hover hit-testing, transform handles, drag
// proposals and smart alignment guides. Everything here is pure geometry:
// the overlay reads tree state and proposes transform patches, it never
// mutates the tree or the surface itself.
package overlay

import (
	"math"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/viewport"
)

// Selection is the combined geometry of the currently selected layers.
// Rotation is nonzero only for a single rotated member; a multi-selection
// box is always axis-aligned.
type Selection struct {
	IDs      []string   `json:"ids"`
	Bounds   layer.Rect `json:"bounds"`
	Rotation float64    `json:"rotation"`
}

// WorldRect returns the layer's effective world rectangle: the natural
// layout bounds positioned by the transform offset, sized by the explicit
// width/height override when set, times scale. Rotation is not applied;
// RotatedAABB gives the rotated footprint.
func WorldRect(l *layer.Layer) layer.Rect {
	sx, sy := l.Transform.ScaleX, l.Transform.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	w, h := l.Bounds.Width, l.Bounds.Height
	if l.Transform.Width > 0 {
		w = l.Transform.Width
	}
	if l.Transform.Height > 0 {
		h = l.Transform.Height
	}
	return layer.Rect{
		X:      l.Bounds.X + l.Transform.X,
		Y:      l.Bounds.Y + l.Transform.Y,
		Width:  w * sx,
		Height: h * sy,
	}
}

// RotatedAABB returns the axis-aligned bounding box of the layer's world
// rect after rotation about its center.
func RotatedAABB(l *layer.Layer) layer.Rect {
	r := WorldRect(l)
	if l.Transform.Rotation == 0 {
		return r
	}
	c := viewport.Point{X: r.CenterX(), Y: r.CenterY()}
	rad := l.Transform.Rotation * math.Pi / 180
	corners := []viewport.Point{
		{X: r.X, Y: r.Y},
		{X: r.Right(), Y: r.Y},
		{X: r.Right(), Y: r.Bottom()},
		{X: r.X, Y: r.Bottom()},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		q := rotateAbout(p, c, rad)
		minX = min(minX, q.X)
		minY = min(minY, q.Y)
		maxX = max(maxX, q.X)
		maxY = max(maxY, q.Y)
	}
	return layer.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// CurrentSelection resolves the tree's selected ids into combined geometry.
// The second return is false when nothing is selected.
func CurrentSelection(t *layer.Tree) (Selection, bool) {
	ids := t.SelectedIDs()
	if len(ids) == 0 {
		return Selection{}, false
	}
	sel := Selection{IDs: ids}
	if len(ids) == 1 {
		l, ok := t.Get(ids[0])
		if !ok {
			return Selection{}, false
		}
		sel.Bounds = WorldRect(l)
		sel.Rotation = l.Transform.Rotation
		return sel, true
	}

	first := true
	for _, id := range ids {
		l, ok := t.Get(id)
		if !ok {
			continue
		}
		box := RotatedAABB(l)
		if first {
			sel.Bounds = box
			first = false
			continue
		}
		sel.Bounds = sel.Bounds.Union(box)
	}
	if first {
		return Selection{}, false
	}
	return sel, true
}

// rotateAbout rotates p around c by rad radians.
func rotateAbout(p, c viewport.Point, rad float64) viewport.Point {
	sin, cos := math.Sincos(rad)
	dx, dy := p.X-c.X, p.Y-c.Y
	return viewport.Point{
		X: c.X + dx*cos - dy*sin,
		Y: c.Y + dx*sin + dy*cos,
	}
}
