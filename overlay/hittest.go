package overlay

import (
	"math"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/viewport"
)

// HitTest returns the id of the topmost visible layer containing the world
// point, or "" when nothing is hit. Later siblings sit above earlier ones
// and children above their parents; the root itself is never a hit, it is
// the canvas background. Hidden layers hide their whole subtree.
func HitTest(t *layer.Tree, p viewport.Point) string {
	root := t.Root()
	if root == nil {
		return ""
	}
	return hitIn(t, root, p, true)
}

func hitIn(t *layer.Tree, l *layer.Layer, p viewport.Point, isRoot bool) string {
	if !l.Visible {
		return ""
	}
	kids := t.Children(l.ID)
	for i := len(kids) - 1; i >= 0; i-- {
		if hit := hitIn(t, kids[i], p, false); hit != "" {
			return hit
		}
	}
	if !isRoot && containsPoint(l, p) {
		return l.ID
	}
	return ""
}

// Marquee returns the ids of visible non-root layers whose rotated world
// footprint intersects the rectangle spanned by the two world points, in
// document order.
func Marquee(t *layer.Tree, a, b viewport.Point) []string {
	root := t.Root()
	if root == nil {
		return nil
	}
	box := normalizedRect(a, b)
	var ids []string
	collectIntersecting(t, root, box, true, &ids)
	return ids
}

func collectIntersecting(t *layer.Tree, l *layer.Layer, box layer.Rect, isRoot bool, ids *[]string) {
	if !l.Visible {
		return
	}
	if !isRoot && RotatedAABB(l).Intersects(box) {
		*ids = append(*ids, l.ID)
	}
	for _, kid := range t.Children(l.ID) {
		collectIntersecting(t, kid, box, false, ids)
	}
}

// containsPoint tests the world point against the layer's rect, undoing
// the layer's rotation first so rotated layers hit along their actual
// footprint.
func containsPoint(l *layer.Layer, p viewport.Point) bool {
	r := WorldRect(l)
	if l.Transform.Rotation != 0 {
		c := viewport.Point{X: r.CenterX(), Y: r.CenterY()}
		p = rotateAbout(p, c, -l.Transform.Rotation*math.Pi/180)
	}
	return r.Contains(p.X, p.Y)
}

// normalizedRect spans a rectangle between two points in any order.
func normalizedRect(a, b viewport.Point) layer.Rect {
	return layer.Rect{
		X:      min(a.X, b.X),
		Y:      min(a.Y, b.Y),
		Width:  math.Abs(a.X - b.X),
		Height: math.Abs(a.Y - b.Y),
	}
}
