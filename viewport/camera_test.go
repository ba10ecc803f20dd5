package viewport

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < epsilon }

func TestRoundTrip_Identity(t *testing.T) {
	cameras := []*Camera{
		New(),
		New(WithZoomRange(0.5, 8)),
	}
	cameras[0].SetZoom(2.5)
	cameras[0].SetPan(-120, 44.5)
	cameras[1].SetZoom(0.5)
	cameras[1].SetPan(999, -0.25)

	points := []Point{
		{0, 0}, {1, 1}, {-55.5, 310}, {1e6, -1e6}, {0.0001, 42},
	}
	for _, c := range cameras {
		for _, p := range points {
			got := c.ScreenToWorld(c.WorldToScreen(p))
			if !near(got.X, p.X) || !near(got.Y, p.Y) {
				t.Errorf("round trip %+v at zoom %v: got %+v", p, c.Zoom(), got)
			}
		}
	}
}

func TestWorldToScreen_Math(t *testing.T) {
	c := New()
	c.SetZoom(2)
	c.SetPan(10, 20)

	got := c.WorldToScreen(Point{X: 5, Y: 7})
	if got.X != 20 || got.Y != 34 {
		t.Errorf("got %+v, want {20 34}", got)
	}
	back := c.ScreenToWorld(Point{X: 20, Y: 34})
	if back.X != 5 || back.Y != 7 {
		t.Errorf("inverse: got %+v, want {5 7}", back)
	}
}

func TestSetZoom_Clamps(t *testing.T) {
	c := New()

	c.SetZoom(100)
	if c.Zoom() != DefaultZoomMax {
		t.Errorf("over max: got %v, want %v", c.Zoom(), DefaultZoomMax)
	}
	c.SetZoom(0.0001)
	if c.Zoom() != DefaultZoomMin {
		t.Errorf("under min: got %v, want %v", c.Zoom(), DefaultZoomMin)
	}
	c.SetZoom(2.2)
	if c.Zoom() != 2.2 {
		t.Errorf("in range: got %v, want 2.2", c.Zoom())
	}
}

func TestWithZoomRange_IgnoresNonsense(t *testing.T) {
	c := New(WithZoomRange(-1, 0))
	min, max := c.ZoomRange()
	if min != DefaultZoomMin || max != DefaultZoomMax {
		t.Errorf("range: got [%v %v], want defaults", min, max)
	}
}

func TestZoomAbout_AnchorStaysPut(t *testing.T) {
	c := New()
	anchor := Point{X: 400, Y: 300}
	worldUnderAnchor := c.ScreenToWorld(anchor)

	c.ZoomAbout(2.5, anchor)
	if c.Zoom() != 2.5 {
		t.Fatalf("zoom: got %v, want 2.5", c.Zoom())
	}
	after := c.WorldToScreen(worldUnderAnchor)
	if !near(after.X, anchor.X) || !near(after.Y, anchor.Y) {
		t.Errorf("anchor drifted: got %+v, want %+v", after, anchor)
	}
}

func TestZoomAbout_WithExistingPan(t *testing.T) {
	c := New()
	c.SetZoom(1.5)
	c.SetPan(-200, 80)
	anchor := Point{X: 123, Y: 456}
	worldUnderAnchor := c.ScreenToWorld(anchor)

	c.ZoomAbout(0.4, anchor)
	after := c.WorldToScreen(worldUnderAnchor)
	if !near(after.X, anchor.X) || !near(after.Y, anchor.Y) {
		t.Errorf("anchor drifted: got %+v, want %+v", after, anchor)
	}
}

func TestZoomAbout_ClampedNoop(t *testing.T) {
	c := New()
	c.SetZoom(DefaultZoomMax)
	c.SetPan(5, 5)

	c.ZoomAbout(50, Point{X: 10, Y: 10})
	x, y := c.Pan()
	if c.Zoom() != DefaultZoomMax || x != 5 || y != 5 {
		t.Errorf("clamped zoom moved the camera: zoom=%v pan=(%v,%v)", c.Zoom(), x, y)
	}
}

func TestPanBy(t *testing.T) {
	c := New()
	c.PanBy(10, -4)
	c.PanBy(2.5, 4)
	x, y := c.Pan()
	if x != 12.5 || y != 0 {
		t.Errorf("pan: got (%v,%v), want (12.5,0)", x, y)
	}
}

func TestFitToContent_CentersAndFits(t *testing.T) {
	c := New()
	content := Rect{X: 0, Y: 0, Width: 400, Height: 200}

	c.FitToContent(content, 800, 600)
	// Width is the binding axis: 800/400 = 2, with margin 0.9 -> 1.8.
	if !near(c.Zoom(), 1.8) {
		t.Errorf("zoom: got %v, want 1.8", c.Zoom())
	}
	center := c.WorldToScreen(Point{X: 200, Y: 100})
	if !near(center.X, 400) || !near(center.Y, 300) {
		t.Errorf("content center: got %+v, want {400 300}", center)
	}
}

func TestFitToContent_Deterministic(t *testing.T) {
	a, b := New(), New()
	content := Rect{X: -50, Y: 30, Width: 123, Height: 456}
	a.FitToContent(content, 1024, 768)
	b.FitToContent(content, 1024, 768)

	ax, ay := a.Pan()
	bx, by := b.Pan()
	if a.Zoom() != b.Zoom() || ax != bx || ay != by {
		t.Error("same inputs produced different view state")
	}
}

func TestFitToContent_DegenerateFallsBack(t *testing.T) {
	c := New()
	c.SetZoom(3)
	c.FitToContent(Rect{Width: 0, Height: 10}, 800, 600)
	if c.Zoom() != 1 {
		t.Errorf("zoom after degenerate fit: got %v, want 1", c.Zoom())
	}
}

func TestReset(t *testing.T) {
	c := New()
	c.SetZoom(4)
	c.SetPan(-999, 999)
	content := Rect{X: 0, Y: 0, Width: 100, Height: 100}

	c.Reset(content, 800, 600)
	if c.Zoom() != 1 {
		t.Errorf("zoom: got %v, want 1", c.Zoom())
	}
	center := c.WorldToScreen(Point{X: 50, Y: 50})
	if !near(center.X, 400) || !near(center.Y, 300) {
		t.Errorf("center: got %+v, want {400 300}", center)
	}
}
