package overlay

import (
	"fmt"
	"math"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/viewport"
)

// DragKind is the interaction a drag performs.
type DragKind string

const (
	DragMove   DragKind = "move"
	DragResize DragKind = "resize"
	DragRotate DragKind = "rotate"
)

// minDragSize is the smallest width or height a resize can produce, in
// world units.
const minDragSize = 1.0

// Drag tracks one in-progress pointer interaction on a single layer and
// computes provisional transform patches from pointer positions. It never
// mutates anything: the caller applies each proposal, commits the final
// one as an undoable command, or restores Base on cancel.
type Drag struct {
	kind       DragKind
	handle     HandleKind
	layerID    string
	start      viewport.Point
	origin     layer.Rect
	layout     layer.Rect
	base       layer.Transform
	aspectLock bool
	startAngle float64
}

// BeginMove starts a translation drag from the world point start.
func BeginMove(l *layer.Layer, start viewport.Point) *Drag {
	return &Drag{
		kind:    DragMove,
		layerID: l.ID,
		start:   start,
		origin:  WorldRect(l),
		layout:  l.Bounds,
		base:    l.Transform,
	}
}

// BeginResize starts a resize drag on one of the eight edge or corner
// handles. aspectLock preserves the origin aspect ratio on corner drags.
func BeginResize(l *layer.Layer, handle HandleKind, start viewport.Point, aspectLock bool) (*Drag, error) {
	if !handle.IsResize() {
		return nil, fmt.Errorf("overlay: handle %q does not resize", handle)
	}
	return &Drag{
		kind:       DragResize,
		handle:     handle,
		layerID:    l.ID,
		start:      start,
		origin:     WorldRect(l),
		layout:     l.Bounds,
		base:       l.Transform,
		aspectLock: aspectLock,
	}, nil
}

// BeginRotate starts a rotation drag from the world point start.
func BeginRotate(l *layer.Layer, start viewport.Point) *Drag {
	origin := WorldRect(l)
	return &Drag{
		kind:       DragRotate,
		layerID:    l.ID,
		start:      start,
		origin:     origin,
		layout:     l.Bounds,
		base:       l.Transform,
		startAngle: angleDeg(start, rectCenter(origin)),
	}
}

func (d *Drag) Kind() DragKind { return d.kind }

func (d *Drag) LayerID() string { return d.layerID }

// Base returns the transform captured when the drag began; cancel restores
// it.
func (d *Drag) Base() layer.Transform { return d.base }

// Update computes the provisional transform patch for the current world
// pointer position.
func (d *Drag) Update(p viewport.Point) layer.TransformPatch {
	switch d.kind {
	case DragMove:
		x := d.base.X + p.X - d.start.X
		y := d.base.Y + p.Y - d.start.Y
		return layer.TransformPatch{X: &x, Y: &y}
	case DragResize:
		return d.resizePatch(p)
	case DragRotate:
		a := normalizeDeg(d.base.Rotation + angleDeg(p, rectCenter(d.origin)) - d.startAngle)
		return layer.TransformPatch{Rotation: &a}
	}
	return layer.TransformPatch{}
}

func (d *Drag) resizePatch(p viewport.Point) layer.TransformPatch {
	nr := resizeRect(d.origin, d.handle, p.X-d.start.X, p.Y-d.start.Y, d.aspectLock)

	sx, sy := d.base.ScaleX, d.base.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	x := nr.X - d.layout.X
	y := nr.Y - d.layout.Y
	w := nr.Width / sx
	h := nr.Height / sy
	return layer.TransformPatch{X: &x, Y: &y, Width: &w, Height: &h}
}

// resizeRect applies a drag delta to one handle of the origin rect. The
// opposite edge or corner stays anchored; aspect lock applies to corner
// handles only, scaling from the dominant axis.
func resizeRect(o layer.Rect, h HandleKind, dx, dy float64, lock bool) layer.Rect {
	x, y, w, hh := o.X, o.Y, o.Width, o.Height

	switch h {
	case HandleLeft:
		x += dx
		w -= dx
	case HandleRight:
		w += dx
	case HandleTop:
		y += dy
		hh -= dy
	case HandleBottom:
		hh += dy
	case HandleTopLeft:
		x += dx
		w -= dx
		y += dy
		hh -= dy
	case HandleTopRight:
		w += dx
		y += dy
		hh -= dy
	case HandleBottomLeft:
		x += dx
		w -= dx
		hh += dy
	case HandleBottomRight:
		w += dx
		hh += dy
	}

	if lock && isCorner(h) && o.Width > 0 && o.Height > 0 {
		s := w / o.Width
		if math.Abs(dy) > math.Abs(dx) {
			s = hh / o.Height
		}
		w = o.Width * s
		hh = o.Height * s
		switch h {
		case HandleTopLeft:
			x, y = o.Right()-w, o.Bottom()-hh
		case HandleTopRight:
			x, y = o.X, o.Bottom()-hh
		case HandleBottomLeft:
			x, y = o.Right()-w, o.Y
		case HandleBottomRight:
			x, y = o.X, o.Y
		}
	}

	// Clamp to the minimum size, keeping the anchored edge in place.
	if w < minDragSize {
		if movesLeft(h) {
			x = o.Right() - minDragSize
		}
		w = minDragSize
	}
	if hh < minDragSize {
		if movesTop(h) {
			y = o.Bottom() - minDragSize
		}
		hh = minDragSize
	}
	return layer.Rect{X: x, Y: y, Width: w, Height: hh}
}

func isCorner(h HandleKind) bool {
	switch h {
	case HandleTopLeft, HandleTopRight, HandleBottomLeft, HandleBottomRight:
		return true
	}
	return false
}

func movesLeft(h HandleKind) bool {
	switch h {
	case HandleLeft, HandleTopLeft, HandleBottomLeft:
		return true
	}
	return false
}

func movesTop(h HandleKind) bool {
	switch h {
	case HandleTop, HandleTopLeft, HandleTopRight:
		return true
	}
	return false
}

func rectCenter(r layer.Rect) viewport.Point {
	return viewport.Point{X: r.CenterX(), Y: r.CenterY()}
}

// angleDeg returns the angle of p around c in degrees, zero pointing right,
// increasing clockwise in screen orientation.
func angleDeg(p, c viewport.Point) float64 {
	return math.Atan2(p.Y-c.Y, p.X-c.X) * 180 / math.Pi
}

// normalizeDeg folds an angle into [-180, 180).
func normalizeDeg(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}
