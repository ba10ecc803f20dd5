// Package layer defines the layer tree: the live, editable structural model
// of a rendered document. The Tree owns every node and enforces the
// structural invariants on each mutation; the Bus broadcasts mutation events
// to subscribers; History records undoable commands. The serialized form is
// the interchange schema consumed by persistence and export collaborators.
package layer

import "time"

// Type is the tagged variant of a layer node.
type Type string

const (
	TypeRoot      Type = "root"
	TypeContainer Type = "container"
	TypeText      Type = "text"
	TypeImage     Type = "image"
	TypeInput     Type = "input"
	TypeButton    Type = "button"
	TypeList      Type = "list"
	TypeListItem  Type = "list_item"
	TypeTable     Type = "table"
	TypeComponent Type = "component"
	TypeSvg       Type = "svg"
	TypeCanvas    Type = "canvas"
	TypeVideo     Type = "video"
	TypeAudio     Type = "audio"
	TypeEmbed     Type = "embed"
	TypeScript    Type = "script"
	TypeStyle     Type = "style"
	TypeComment   Type = "comment"
)

var knownTypes = map[Type]bool{
	TypeRoot: true, TypeContainer: true, TypeText: true, TypeImage: true,
	TypeInput: true, TypeButton: true, TypeList: true, TypeListItem: true,
	TypeTable: true, TypeComponent: true, TypeSvg: true, TypeCanvas: true,
	TypeVideo: true, TypeAudio: true, TypeEmbed: true, TypeScript: true,
	TypeStyle: true, TypeComment: true,
}

// Valid reports whether t is one of the known layer types.
func (t Type) Valid() bool { return knownTypes[t] }

// Rect is an axis-aligned rectangle in world space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64   { return r.X + r.Width }
func (r Rect) Bottom() float64  { return r.Y + r.Height }
func (r Rect) CenterX() float64 { return r.X + r.Width/2 }
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// Contains reports whether the point (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.Right() && y >= r.Y && y <= r.Bottom()
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	x := min(r.X, o.X)
	y := min(r.Y, o.Y)
	return Rect{
		X:      x,
		Y:      y,
		Width:  max(r.Right(), o.Right()) - x,
		Height: max(r.Bottom(), o.Bottom()) - y,
	}
}

// Transform is the user-applied delta on top of a layer's natural layout
// bounds.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
}

// IdentityTransform is the transform of an untouched layer.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// TransformPatch is a partial transform update. Nil fields are left as-is.
type TransformPatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ScaleX   *float64 `json:"scaleX,omitempty"`
	ScaleY   *float64 `json:"scaleY,omitempty"`
}

// Apply returns t with the patch's non-nil fields overlaid.
func (p TransformPatch) Apply(t Transform) Transform {
	if p.X != nil {
		t.X = *p.X
	}
	if p.Y != nil {
		t.Y = *p.Y
	}
	if p.Width != nil {
		t.Width = *p.Width
	}
	if p.Height != nil {
		t.Height = *p.Height
	}
	if p.Rotation != nil {
		t.Rotation = *p.Rotation
	}
	if p.ScaleX != nil {
		t.ScaleX = *p.ScaleX
	}
	if p.ScaleY != nil {
		t.ScaleY = *p.ScaleY
	}
	return t
}

// Content is the per-type payload of a layer. Which fields are meaningful
// depends on the layer's Type; unused fields stay zero.
type Content struct {
	Text          string  `json:"text,omitempty"`
	Src           string  `json:"src,omitempty"`
	Alt           string  `json:"alt,omitempty"`
	NaturalWidth  float64 `json:"naturalWidth,omitempty"`
	NaturalHeight float64 `json:"naturalHeight,omitempty"`
	Href          string  `json:"href,omitempty"`
	Target        string  `json:"target,omitempty"`
	InputKind     string  `json:"inputKind,omitempty"`
	Placeholder   string  `json:"placeholder,omitempty"`
	Value         string  `json:"value,omitempty"`
}

// Metadata carries bookkeeping that is not part of the edited structure.
type Metadata struct {
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	OriginPath string    `json:"originPath,omitempty"`
	AutoNamed  bool      `json:"autoNamed,omitempty"`
}

// Layer is one node of the edited structure. Parent and children are
// expressed as id lookups into the owning Tree; ChildIDs is the owning
// sequence and its order is the display/z-order, ParentID is a non-owning
// back-reference.
type Layer struct {
	ID          string
	Type        Type
	Name        string
	ExternalRef string
	ContentPath string
	ParentID    string
	ChildIDs    []string
	Index       int
	Depth       int
	Visible     bool
	Locked      bool
	Collapsed   bool
	Selected    bool
	Content     Content
	Bounds      Rect
	Transform   Transform
	// ComputedStyle caches resolved style values supplied by the host
	// renderer. Read-only to this package.
	ComputedStyle map[string]string
	Metadata      Metadata
}

// SelectMode controls how Select changes the selection set.
type SelectMode string

const (
	SelectReplace SelectMode = "replace" // clear, then select only the target
	SelectAdd     SelectMode = "add"     // insert the target
	SelectToggle  SelectMode = "toggle"  // insert if absent, remove if present
)

// ParseSelectMode maps a wire string to a SelectMode, defaulting to replace.
func ParseSelectMode(s string) SelectMode {
	switch SelectMode(s) {
	case SelectAdd:
		return SelectAdd
	case SelectToggle:
		return SelectToggle
	default:
		return SelectReplace
	}
}
