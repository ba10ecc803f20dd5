package surface

import (
	"context"
	"errors"
	"sync"
)

// ErrDetached is returned when a ref no longer resolves to a live node on
// the surface.
var ErrDetached = errors.New("surface: node detached")

// NodeType values mirror DOM node types for the handful the canvas models.
const (
	NodeElement = 1
	NodeText    = 3
	NodeComment = 8
)

// Bounds is a node's layout rectangle in world space, as computed by the
// renderer. Surfaces without layout leave it nil.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a point-in-time snapshot of one node on the rendering surface.
// Text holds the node's direct text content; child elements and comments
// appear in Children in document order.
type Node struct {
	Ref      string            `json:"ref"`
	Path     string            `json:"path"`
	Tag      string            `json:"tag"`
	NodeType int               `json:"node_type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Bounds   *Bounds           `json:"bounds,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// WriteOp is the kind of write the reconciler mirrors onto the surface.
type WriteOp string

const (
	WriteSetAttr  WriteOp = "set_attr"
	WriteDelAttr  WriteOp = "del_attr"
	WriteSetText  WriteOp = "set_text"
	WriteSetStyle WriteOp = "set_style" // one inline style property
	WriteInsert   WriteOp = "insert"
	WriteRemove   WriteOp = "remove"
	WriteMove     WriteOp = "move"
)

// Write is one reconciler-originated mutation of the surface. For inserts,
// HTML carries sanitized markup and NewRef the handle the surface must bind
// to the new node so later records and writes can address it.
type Write struct {
	Op        WriteOp `json:"op"`
	Ref       string  `json:"ref,omitempty"`
	ParentRef string  `json:"parent_ref,omitempty"`
	Index     int     `json:"index"`
	Name      string  `json:"name,omitempty"`
	Value     string  `json:"value,omitempty"`
	Tag       string  `json:"tag,omitempty"`
	HTML      string  `json:"html,omitempty"`
	NewRef    string  `json:"new_ref,omitempty"`
}

// Surface is a handle to the external rendering surface. Implementations
// must detect subtree, attribute and text changes and push them as Records
// into the Queue given to Watch, and must discard records caused by writes
// made while suspended: that is the feedback-loop breaker between
// reconciler writes and observation.
type Surface interface {
	// Snapshot returns the full document structure.
	Snapshot(ctx context.Context) (*Node, error)

	// SnapshotFrom returns the subtree rooted at ref, or ErrDetached when
	// the ref no longer resolves.
	SnapshotFrom(ctx context.Context, ref string) (*Node, error)

	// Apply performs reconciler-originated writes. Implementations bracket
	// the writes with Suspend/Resume themselves; callers may hold the
	// suspension open across several Apply calls too, suspension nests.
	Apply(ctx context.Context, writes []Write) error

	// Watch starts reporting changes into q until the surface is closed.
	Watch(ctx context.Context, q *Queue) error

	// Suspend and Resume bracket reconciler-originated writes. They nest.
	Suspend()
	Resume()

	Close() error
}

// Gate is the self-write flag shared by surface implementations: a nested
// suspension counter consulted before a record is emitted.
type Gate struct {
	mu    sync.Mutex
	depth int
}

func (g *Gate) Suspend() {
	g.mu.Lock()
	g.depth++
	g.mu.Unlock()
}

func (g *Gate) Resume() {
	g.mu.Lock()
	if g.depth > 0 {
		g.depth--
	}
	g.mu.Unlock()
}

// Suspended reports whether at least one suspension is open.
func (g *Gate) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth > 0
}
