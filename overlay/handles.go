package overlay

import (
	"math"

	"github.com/hazyhaar/domcanvas/viewport"
)

// HandleKind names one of the nine transform handles.
type HandleKind string

const (
	HandleNone        HandleKind = ""
	HandleTopLeft     HandleKind = "top_left"
	HandleTop         HandleKind = "top"
	HandleTopRight    HandleKind = "top_right"
	HandleRight       HandleKind = "right"
	HandleBottomRight HandleKind = "bottom_right"
	HandleBottom      HandleKind = "bottom"
	HandleBottomLeft  HandleKind = "bottom_left"
	HandleLeft        HandleKind = "left"
	HandleRotate      HandleKind = "rotate"
)

// DefaultHandleHitSize is the side of a handle's square screen-space hit
// region in pixels, independent of zoom.
const DefaultHandleHitSize = 12.0

// rotateHandleOffset is the screen-space distance between the top edge
// midpoint and the rotation handle, in pixels.
const rotateHandleOffset = 24.0

// Handle is one transform control point at a screen position.
type Handle struct {
	Kind HandleKind     `json:"kind"`
	Pos  viewport.Point `json:"pos"`
}

// Handles positions the eight resize handles and the rotation handle for a
// selection, in hit-test precedence order. Positions are screen-space:
// world corners of the selection box are rotated about its center, then
// projected through the camera.
func Handles(sel Selection, cam *viewport.Camera) []Handle {
	r := sel.Bounds
	c := viewport.Point{X: r.CenterX(), Y: r.CenterY()}
	rad := sel.Rotation * math.Pi / 180

	at := func(kind HandleKind, x, y float64) Handle {
		p := viewport.Point{X: x, Y: y}
		if rad != 0 {
			p = rotateAbout(p, c, rad)
		}
		return Handle{Kind: kind, Pos: cam.WorldToScreen(p)}
	}

	handles := []Handle{
		at(HandleTopLeft, r.X, r.Y),
		at(HandleTop, r.CenterX(), r.Y),
		at(HandleTopRight, r.Right(), r.Y),
		at(HandleRight, r.Right(), r.CenterY()),
		at(HandleBottomRight, r.Right(), r.Bottom()),
		at(HandleBottom, r.CenterX(), r.Bottom()),
		at(HandleBottomLeft, r.X, r.Bottom()),
		at(HandleLeft, r.X, r.CenterY()),
	}

	// The rotation handle floats a fixed screen distance outward from the
	// top edge midpoint, along the selection's rotated up direction.
	top := handles[1].Pos
	center := cam.WorldToScreen(c)
	dx, dy := top.X-center.X, top.Y-center.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dx, dy, dist = 0, -1, 1
	}
	handles = append(handles, Handle{
		Kind: HandleRotate,
		Pos: viewport.Point{
			X: top.X + dx/dist*rotateHandleOffset,
			Y: top.Y + dy/dist*rotateHandleOffset,
		},
	})
	return handles
}

// HitHandle returns the first handle whose square hit region of side
// hitSize contains the screen point, or HandleNone.
func HitHandle(handles []Handle, screen viewport.Point, hitSize float64) HandleKind {
	if hitSize <= 0 {
		hitSize = DefaultHandleHitSize
	}
	half := hitSize / 2
	for _, h := range handles {
		if math.Abs(screen.X-h.Pos.X) <= half && math.Abs(screen.Y-h.Pos.Y) <= half {
			return h.Kind
		}
	}
	return HandleNone
}

// IsResize reports whether the handle resizes rather than rotates.
func (k HandleKind) IsResize() bool {
	switch k {
	case HandleTopLeft, HandleTop, HandleTopRight, HandleRight,
		HandleBottomRight, HandleBottom, HandleBottomLeft, HandleLeft:
		return true
	}
	return false
}
