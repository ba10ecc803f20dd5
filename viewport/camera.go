// Package viewport implements the coordinate transformer between screen
// space (viewport pixels) and the infinite pannable, zoomable world space
// in which layer bounds live. Pure geometry, no other component state.
package viewport

// Point is a position in either screen or world space, per context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle, used for fit computations.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) centerX() float64 { return r.X + r.Width/2 }
func (r Rect) centerY() float64 { return r.Y + r.Height/2 }

const (
	// DefaultZoomMin and DefaultZoomMax bound the zoom factor unless
	// overridden. Every zoom write clamps into the configured range.
	DefaultZoomMin = 0.1
	DefaultZoomMax = 5.0

	// fitMargin leaves breathing room around content on FitToContent.
	fitMargin = 0.9
)

// Camera holds the view state {zoom, panX, panY}. worldToScreen is
// p*zoom+pan; screenToWorld is the exact inverse, so round-tripping a point
// through both is the identity within floating-point epsilon.
//
// A Camera is not goroutine-safe; the owning session serializes access.
type Camera struct {
	zoom    float64
	panX    float64
	panY    float64
	zoomMin float64
	zoomMax float64
}

// Option configures a Camera.
type Option func(*Camera)

// WithZoomRange overrides the zoom clamp range. Nonsensical ranges
// (min <= 0 or max < min) fall back to the defaults.
func WithZoomRange(min, max float64) Option {
	return func(c *Camera) {
		if min > 0 && max >= min {
			c.zoomMin = min
			c.zoomMax = max
		}
	}
}

// New builds a Camera at zoom 1 with no pan.
func New(opts ...Option) *Camera {
	c := &Camera{
		zoom:    1,
		zoomMin: DefaultZoomMin,
		zoomMax: DefaultZoomMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.zoom = c.clamp(c.zoom)
	return c
}

// Zoom returns the current zoom factor.
func (c *Camera) Zoom() float64 { return c.zoom }

// Pan returns the current pan offset in screen pixels.
func (c *Camera) Pan() (x, y float64) { return c.panX, c.panY }

// ZoomRange returns the clamp bounds.
func (c *Camera) ZoomRange() (min, max float64) { return c.zoomMin, c.zoomMax }

// WorldToScreen maps a world-space point to viewport pixels.
func (c *Camera) WorldToScreen(p Point) Point {
	return Point{X: p.X*c.zoom + c.panX, Y: p.Y*c.zoom + c.panY}
}

// ScreenToWorld maps viewport pixels to world space.
func (c *Camera) ScreenToWorld(p Point) Point {
	return Point{X: (p.X - c.panX) / c.zoom, Y: (p.Y - c.panY) / c.zoom}
}

// SetZoom sets the zoom factor, clamped into range. Out-of-range requests
// produce the clamped value, not an error.
func (c *Camera) SetZoom(z float64) {
	c.zoom = c.clamp(z)
}

// SetPan sets the pan offset.
func (c *Camera) SetPan(x, y float64) {
	c.panX = x
	c.panY = y
}

// PanBy shifts the pan offset by a screen-space delta.
func (c *Camera) PanBy(dx, dy float64) {
	c.panX += dx
	c.panY += dy
}

// ZoomAbout changes the zoom while keeping the world point currently under
// the screen anchor fixed there. The pan correction uses the old zoom and
// is applied before the zoom value changes.
func (c *Camera) ZoomAbout(z float64, anchor Point) {
	newZoom := c.clamp(z)
	if newZoom == c.zoom {
		return
	}
	ratio := newZoom / c.zoom
	c.panX = anchor.X - (anchor.X-c.panX)*ratio
	c.panY = anchor.Y - (anchor.Y-c.panY)*ratio
	c.zoom = newZoom
}

// FitToContent recomputes zoom and pan so the content rect fills the
// viewport with a margin, centered. Deterministic for equal inputs.
// Degenerate content falls back to Reset.
func (c *Camera) FitToContent(content Rect, viewportW, viewportH float64) {
	if content.Width <= 0 || content.Height <= 0 || viewportW <= 0 || viewportH <= 0 {
		c.Reset(content, viewportW, viewportH)
		return
	}
	zoom := min(viewportW/content.Width, viewportH/content.Height) * fitMargin
	c.zoom = c.clamp(zoom)
	c.centerOn(content, viewportW, viewportH)
}

// Reset returns to zoom 1 with the content centered in the viewport.
func (c *Camera) Reset(content Rect, viewportW, viewportH float64) {
	c.zoom = c.clamp(1)
	c.centerOn(content, viewportW, viewportH)
}

func (c *Camera) centerOn(content Rect, viewportW, viewportH float64) {
	c.panX = viewportW/2 - content.centerX()*c.zoom
	c.panY = viewportH/2 - content.centerY()*c.zoom
}

func (c *Camera) clamp(z float64) float64 {
	if z < c.zoomMin {
		return c.zoomMin
	}
	if z > c.zoomMax {
		return c.zoomMax
	}
	return z
}
