package layer

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/domcanvas/idgen"
)

// Tree owns the full layer graph for one editing session. Nodes live in an
// id-keyed arena; ChildIDs sequences express ownership and ParentID is a
// non-owning back-reference resolved by lookup. Every mutating method either
// completes with all invariants restored or returns an error with the tree
// unchanged.
//
// Query methods return snapshots. Mutate through Tree methods only.
type Tree struct {
	mu     sync.RWMutex
	nodes  map[string]*Layer
	byRef  map[string]string // externalRef -> layer id
	byPath map[string]string // contentPath -> layer id
	rootID string

	// selection holds selected ids in selection order.
	selection []string

	bus *Bus
	gen idgen.Generator
}

// Option configures a Tree.
type Option func(*Tree)

// WithBus attaches the bus that receives mutation events.
func WithBus(b *Bus) Option {
	return func(t *Tree) { t.bus = b }
}

// WithIDGenerator overrides the layer id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(t *Tree) { t.gen = gen }
}

// NewTree builds an empty tree holding only the root layer.
func NewTree(opts ...Option) *Tree {
	t := &Tree{
		nodes:  make(map[string]*Layer),
		byRef:  make(map[string]string),
		byPath: make(map[string]string),
		gen:    idgen.Prefixed("lyr_", idgen.UUIDv7()),
	}
	for _, opt := range opts {
		opt(t)
	}

	now := time.Now().UTC()
	root := &Layer{
		ID:        t.gen(),
		Type:      TypeRoot,
		Name:      "Document",
		Visible:   true,
		Transform: IdentityTransform(),
		Metadata:  Metadata{CreatedAt: now, ModifiedAt: now},
	}
	t.nodes[root.ID] = root
	t.rootID = root.ID
	return t
}

// RootID returns the id of the single root layer.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// Len returns the number of layers in the tree, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Create builds a new layer of the given type and attaches it under
// parentID. A negative index, or one past the end, appends.
func (t *Tree) Create(typ Type, parentID string, index int) (*Layer, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("layer: create: unknown type %q", typ)
	}
	if typ == TypeRoot {
		return nil, fmt.Errorf("layer: create: %w: tree already has a root", ErrDuplicateID)
	}

	t.mu.Lock()
	parent, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("layer: create: parent %s: %w", parentID, ErrOrphanReference)
	}

	now := time.Now().UTC()
	l := &Layer{
		ID:        t.gen(),
		Type:      typ,
		Visible:   true,
		Transform: IdentityTransform(),
		Metadata:  Metadata{CreatedAt: now, ModifiedAt: now, AutoNamed: true},
	}
	l.Name = DeriveName(typ, NameHints{}, t.typeOrdinalLocked(typ, parent))

	if err := t.attachLocked(l, parent, index); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	snap := cloneLayer(l)
	t.mu.Unlock()

	t.publish(Event{Topic: TopicCreated, LayerID: l.ID, Data: map[string]any{
		"type":     string(l.Type),
		"parentId": l.ParentID,
		"index":    l.Index,
	}})
	return snap, nil
}

// Attach inserts a caller-built layer under parentID. Used by the builder
// and the reconciler to adopt nodes discovered on the rendering surface; the
// layer's ExternalRef and ContentPath are registered for lookup. An empty ID
// is minted. A negative index, or one past the end, appends.
func (t *Tree) Attach(l *Layer, parentID string, index int) error {
	if l == nil {
		return fmt.Errorf("layer: attach: nil layer")
	}
	if !l.Type.Valid() || l.Type == TypeRoot {
		return fmt.Errorf("layer: attach: unknown or root type %q", l.Type)
	}

	t.mu.Lock()
	parent, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: attach: parent %s: %w", parentID, ErrOrphanReference)
	}
	if err := t.attachLocked(l, parent, index); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	t.publish(Event{Topic: TopicCreated, LayerID: l.ID, Data: map[string]any{
		"type":     string(l.Type),
		"parentId": l.ParentID,
		"index":    l.Index,
	}})
	return nil
}

func (t *Tree) attachLocked(l *Layer, parent *Layer, index int) error {
	if l.ID == "" {
		l.ID = t.gen()
	}
	if _, exists := t.nodes[l.ID]; exists {
		return fmt.Errorf("layer: attach %s: %w", l.ID, ErrDuplicateID)
	}

	if index < 0 || index > len(parent.ChildIDs) {
		index = len(parent.ChildIDs)
	}
	parent.ChildIDs = slices.Insert(parent.ChildIDs, index, l.ID)

	l.ParentID = parent.ID
	l.Depth = parent.Depth + 1
	l.ChildIDs = nil
	l.Selected = false
	if l.Metadata.CreatedAt.IsZero() {
		now := time.Now().UTC()
		l.Metadata.CreatedAt = now
		l.Metadata.ModifiedAt = now
	}

	t.nodes[l.ID] = l
	if l.ExternalRef != "" {
		t.byRef[l.ExternalRef] = l.ID
	}
	if l.ContentPath != "" {
		t.byPath[l.ContentPath] = l.ID
	}
	t.reindexLocked(parent)
	return nil
}

// Delete removes the layer and its whole subtree. Freed ids leave the
// selection set first; deleted events are published in post-order, children
// before the parent that contained them.
func (t *Tree) Delete(id string) error {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: delete %s: %w", id, ErrOrphanReference)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return fmt.Errorf("layer: delete: cannot delete the root: %w", ErrInvalidMove)
	}

	// Post-order listing of the doomed subtree.
	doomed := t.subtreePostOrderLocked(l)

	var evs []Event
	if t.dropSelectionLocked(doomed) {
		evs = append(evs, t.selectionEventLocked(""))
	}

	for _, d := range doomed {
		evs = append(evs, Event{Topic: TopicDeleted, LayerID: d.ID, Data: map[string]any{
			"type":     string(d.Type),
			"parentId": d.ParentID,
		}})
	}

	// Detach from the parent before freeing ids.
	parent := t.nodes[l.ParentID]
	parent.ChildIDs = slices.DeleteFunc(parent.ChildIDs, func(cid string) bool { return cid == id })
	t.reindexLocked(parent)

	for _, d := range doomed {
		if d.ExternalRef != "" {
			delete(t.byRef, d.ExternalRef)
		}
		if d.ContentPath != "" {
			delete(t.byPath, d.ContentPath)
		}
		delete(t.nodes, d.ID)
	}
	t.mu.Unlock()

	t.publish(evs...)
	return nil
}

// Move reparents or reorders a layer. The move is rejected when the target
// parent is the layer itself or any of its descendants. An out-of-range
// index clamps to the end.
func (t *Tree) Move(id, newParentID string, newIndex int) error {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: move %s: %w", id, ErrOrphanReference)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return fmt.Errorf("layer: move: cannot move the root: %w", ErrInvalidMove)
	}
	newParent, ok := t.nodes[newParentID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: move %s: parent %s: %w", id, newParentID, ErrOrphanReference)
	}
	if newParentID == id || t.isAncestorLocked(id, newParentID) {
		t.mu.Unlock()
		return fmt.Errorf("layer: move %s under %s: %w", id, newParentID, ErrCycleDetected)
	}

	oldParent := t.nodes[l.ParentID]
	oldParentID := l.ParentID

	oldParent.ChildIDs = slices.DeleteFunc(oldParent.ChildIDs, func(cid string) bool { return cid == id })
	if newIndex < 0 || newIndex > len(newParent.ChildIDs) {
		newIndex = len(newParent.ChildIDs)
	}
	newParent.ChildIDs = slices.Insert(newParent.ChildIDs, newIndex, id)
	l.ParentID = newParentID

	t.reindexLocked(oldParent)
	if newParent != oldParent {
		t.reindexLocked(newParent)
	}
	t.redepthLocked(l, newParent.Depth+1)
	t.touchLocked(l)

	idx := l.Index
	t.mu.Unlock()

	t.publish(Event{Topic: TopicMoved, LayerID: id, Data: map[string]any{
		"from":  oldParentID,
		"to":    newParentID,
		"index": idx,
	}})
	return nil
}

// SetProperty updates one scalar property and returns its previous value.
// Supported keys: name, visible, locked, collapsed, content.text,
// content.src, content.alt, content.href, content.target, content.value,
// content.placeholder, content.inputKind.
func (t *Tree) SetProperty(id, key string, value any) (any, error) {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("layer: set %s on %s: %w", key, id, ErrOrphanReference)
	}

	topic := TopicModified
	var old any
	switch key {
	case "name":
		s, err := asString(key, value)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		old = l.Name
		l.Name = s
		l.Metadata.AutoNamed = false
	case "visible":
		b, err := asBool(key, value)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		old = l.Visible
		l.Visible = b
		topic = TopicVisibility
	case "locked":
		b, err := asBool(key, value)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		old = l.Locked
		l.Locked = b
		topic = TopicLocked
	case "collapsed":
		b, err := asBool(key, value)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		old = l.Collapsed
		l.Collapsed = b
	case "content.text", "content.src", "content.alt", "content.href",
		"content.target", "content.value", "content.placeholder", "content.inputKind":
		s, err := asString(key, value)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		old = setContentField(&l.Content, key, s)
	default:
		t.mu.Unlock()
		return nil, fmt.Errorf("layer: set property: unknown key %q", key)
	}
	t.touchLocked(l)
	t.mu.Unlock()

	t.publish(Event{Topic: topic, LayerID: id, Data: map[string]any{
		"key":   key,
		"old":   old,
		"value": value,
	}})
	return old, nil
}

// SetTransform overlays the patch on the layer's transform and returns the
// previous transform.
func (t *Tree) SetTransform(id string, patch TransformPatch) (Transform, error) {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return Transform{}, fmt.Errorf("layer: set transform on %s: %w", id, ErrOrphanReference)
	}
	old := l.Transform
	l.Transform = patch.Apply(old)
	t.touchLocked(l)
	t.mu.Unlock()

	t.publish(Event{Topic: TopicModified, LayerID: id, Data: map[string]any{
		"key": "transform",
	}})
	return old, nil
}

// SetBounds replaces the layer's world-space bounds, as computed by the
// host renderer.
func (t *Tree) SetBounds(id string, b Rect) error {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: set bounds on %s: %w", id, ErrOrphanReference)
	}
	l.Bounds = b
	t.mu.Unlock()

	t.publish(Event{Topic: TopicModified, LayerID: id, Data: map[string]any{
		"key": "bounds",
	}})
	return nil
}

// SetComputedStyle refreshes the read-only style cache. No event: the cache
// is renderer-supplied state, not an edit.
func (t *Tree) SetComputedStyle(id string, style map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("layer: set style on %s: %w", id, ErrOrphanReference)
	}
	l.ComputedStyle = maps.Clone(style)
	return nil
}

// SetExternalRef rebinds the layer's external surface handle.
func (t *Tree) SetExternalRef(id, ref string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("layer: set ref on %s: %w", id, ErrOrphanReference)
	}
	if l.ExternalRef != "" {
		delete(t.byRef, l.ExternalRef)
	}
	l.ExternalRef = ref
	if ref != "" {
		t.byRef[ref] = id
	}
	return nil
}

// SetContentPath rebinds the layer's re-resolution locator.
func (t *Tree) SetContentPath(id, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("layer: set path on %s: %w", id, ErrOrphanReference)
	}
	if l.ContentPath != "" {
		delete(t.byPath, l.ContentPath)
	}
	l.ContentPath = path
	if path != "" {
		t.byPath[path] = id
	}
	return nil
}

// Select updates the selection set. Replace clears and selects only id; add
// inserts id; toggle inserts if absent, removes if present.
func (t *Tree) Select(id string, mode SelectMode) error {
	t.mu.Lock()
	l, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("layer: select %s: %w", id, ErrOrphanReference)
	}

	switch mode {
	case SelectReplace:
		for _, sid := range t.selection {
			t.nodes[sid].Selected = false
		}
		t.selection = []string{id}
		l.Selected = true
	case SelectAdd:
		if !l.Selected {
			t.selection = append(t.selection, id)
			l.Selected = true
		}
	case SelectToggle:
		if l.Selected {
			t.selection = slices.DeleteFunc(t.selection, func(sid string) bool { return sid == id })
			l.Selected = false
		} else {
			t.selection = append(t.selection, id)
			l.Selected = true
		}
	default:
		t.mu.Unlock()
		return fmt.Errorf("layer: select: unknown mode %q", mode)
	}
	ev := t.selectionEventLocked(id)
	ev.Data["mode"] = string(mode)
	t.mu.Unlock()

	t.publish(ev)
	return nil
}

// ClearSelection deselects everything.
func (t *Tree) ClearSelection() {
	t.mu.Lock()
	if len(t.selection) == 0 {
		t.mu.Unlock()
		return
	}
	for _, sid := range t.selection {
		t.nodes[sid].Selected = false
	}
	t.selection = nil
	ev := t.selectionEventLocked("")
	t.mu.Unlock()

	t.publish(ev)
}

// SelectedIDs returns the selected ids in selection order.
func (t *Tree) SelectedIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.selection)
}

// Get returns a snapshot of the layer with the given id.
func (t *Tree) Get(id string) (*Layer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneLayer(l), true
}

// Root returns a snapshot of the root layer.
func (t *Tree) Root() *Layer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneLayer(t.nodes[t.rootID])
}

// ByExternalRef resolves a surface handle to its layer.
func (t *Tree) ByExternalRef(ref string) (*Layer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byRef[ref]
	if !ok {
		return nil, false
	}
	return cloneLayer(t.nodes[id]), true
}

// ByContentPath resolves a locator to its layer. Paths can go stale after
// structural change; callers fall back to a resync when this misses.
func (t *Tree) ByContentPath(path string) (*Layer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byPath[path]
	if !ok {
		return nil, false
	}
	return cloneLayer(t.nodes[id]), true
}

// ByName returns all layers with the given name, in pre-order.
func (t *Tree) ByName(name string) []*Layer {
	return t.Find(func(l *Layer) bool { return l.Name == name })
}

// ByType returns all layers of the given type, in pre-order.
func (t *Tree) ByType(typ Type) []*Layer {
	return t.Find(func(l *Layer) bool { return l.Type == typ })
}

// Find returns snapshots of all layers matching pred, in pre-order.
func (t *Tree) Find(pred func(*Layer) bool) []*Layer {
	var out []*Layer
	for l := range t.Walk(PreOrder) {
		if pred(l) {
			out = append(out, l)
		}
	}
	return out
}

// Children returns snapshots of the layer's direct children in z-order.
func (t *Tree) Children(id string) []*Layer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Layer, 0, len(l.ChildIDs))
	for _, cid := range l.ChildIDs {
		out = append(out, cloneLayer(t.nodes[cid]))
	}
	return out
}

// LockedInChain reports whether the layer or any of its ancestors is locked.
func (t *Tree) LockedInChain(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for l := t.nodes[id]; l != nil; l = t.nodes[l.ParentID] {
		if l.Locked {
			return true
		}
		if l.ParentID == "" {
			break
		}
	}
	return false
}

// Validate checks the structural invariants and returns the first violation
// found. A healthy tree returns nil after every operation.
func (t *Tree) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	roots := 0
	for id, l := range t.nodes {
		if id != l.ID {
			return fmt.Errorf("layer: validate: key %s holds node %s", id, l.ID)
		}
		if l.ParentID == "" {
			roots++
			if l.Depth != 0 {
				return fmt.Errorf("layer: validate: root %s has depth %d", id, l.Depth)
			}
			continue
		}
		parent, ok := t.nodes[l.ParentID]
		if !ok {
			return fmt.Errorf("layer: validate: %s parent %s: %w", id, l.ParentID, ErrOrphanReference)
		}
		if l.Depth != parent.Depth+1 {
			return fmt.Errorf("layer: validate: %s depth %d, parent depth %d", id, l.Depth, parent.Depth)
		}
		if l.Index < 0 || l.Index >= len(parent.ChildIDs) || parent.ChildIDs[l.Index] != id {
			return fmt.Errorf("layer: validate: %s index %d does not match parent childIds", id, l.Index)
		}
		if t.isAncestorLocked(id, l.ParentID) {
			return fmt.Errorf("layer: validate: %s: %w", id, ErrCycleDetected)
		}
	}
	if roots != 1 {
		return fmt.Errorf("layer: validate: %d roots", roots)
	}

	for id, l := range t.nodes {
		seen := make(map[string]bool, len(l.ChildIDs))
		for i, cid := range l.ChildIDs {
			if seen[cid] {
				return fmt.Errorf("layer: validate: %s childIds repeats %s: %w", id, cid, ErrDuplicateID)
			}
			seen[cid] = true
			child, ok := t.nodes[cid]
			if !ok {
				return fmt.Errorf("layer: validate: %s child %s: %w", id, cid, ErrOrphanReference)
			}
			if child.ParentID != id {
				return fmt.Errorf("layer: validate: child %s parentId %s, owner %s", cid, child.ParentID, id)
			}
			if child.Index != i {
				return fmt.Errorf("layer: validate: child %s index %d at position %d", cid, child.Index, i)
			}
		}
	}

	for _, sid := range t.selection {
		l, ok := t.nodes[sid]
		if !ok {
			return fmt.Errorf("layer: validate: selection holds missing id %s", sid)
		}
		if !l.Selected {
			return fmt.Errorf("layer: validate: %s in selection but not flagged", sid)
		}
	}
	return nil
}

// internals, callers hold t.mu

func (t *Tree) reindexLocked(parent *Layer) {
	for i, cid := range parent.ChildIDs {
		t.nodes[cid].Index = i
	}
}

func (t *Tree) redepthLocked(l *Layer, depth int) {
	l.Depth = depth
	for _, cid := range l.ChildIDs {
		t.redepthLocked(t.nodes[cid], depth+1)
	}
}

// isAncestorLocked reports whether ancID is an ancestor of id. The walk is
// bounded by the node count so a corrupted parent chain cannot spin it.
func (t *Tree) isAncestorLocked(ancID, id string) bool {
	steps := len(t.nodes)
	for l := t.nodes[id]; l != nil && l.ParentID != "" && steps > 0; l = t.nodes[l.ParentID] {
		if l.ParentID == ancID {
			return true
		}
		steps--
	}
	return false
}

func (t *Tree) subtreePostOrderLocked(l *Layer) []*Layer {
	var out []*Layer
	for _, cid := range l.ChildIDs {
		out = append(out, t.subtreePostOrderLocked(t.nodes[cid])...)
	}
	return append(out, l)
}

// dropSelectionLocked removes the given nodes from the selection set and
// reports whether the selection changed.
func (t *Tree) dropSelectionLocked(doomed []*Layer) bool {
	if len(t.selection) == 0 {
		return false
	}
	drop := make(map[string]bool, len(doomed))
	for _, d := range doomed {
		if d.Selected {
			drop[d.ID] = true
			d.Selected = false
		}
	}
	if len(drop) == 0 {
		return false
	}
	t.selection = slices.DeleteFunc(t.selection, func(sid string) bool { return drop[sid] })
	return true
}

func (t *Tree) selectionEventLocked(layerID string) Event {
	return Event{Topic: TopicSelected, LayerID: layerID, Data: map[string]any{
		"ids": slices.Clone(t.selection),
	}}
}

func (t *Tree) typeOrdinalLocked(typ Type, parent *Layer) int {
	n := 1
	for _, cid := range parent.ChildIDs {
		if t.nodes[cid].Type == typ {
			n++
		}
	}
	return n
}

func (t *Tree) touchLocked(l *Layer) {
	l.Metadata.ModifiedAt = time.Now().UTC()
}

func (t *Tree) publish(evs ...Event) {
	if t.bus == nil {
		return
	}
	for _, ev := range evs {
		t.bus.Publish(ev)
	}
}

func cloneLayer(l *Layer) *Layer {
	c := *l
	c.ChildIDs = slices.Clone(l.ChildIDs)
	if l.ComputedStyle != nil {
		c.ComputedStyle = maps.Clone(l.ComputedStyle)
	}
	return &c
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("layer: set %s: want string, got %T", key, v)
	}
	return s, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("layer: set %s: want bool, got %T", key, v)
	}
	return b, nil
}

func setContentField(c *Content, key, value string) string {
	var old string
	switch key {
	case "content.text":
		old, c.Text = c.Text, value
	case "content.src":
		old, c.Src = c.Src, value
	case "content.alt":
		old, c.Alt = c.Alt, value
	case "content.href":
		old, c.Href = c.Href, value
	case "content.target":
		old, c.Target = c.Target, value
	case "content.value":
		old, c.Value = c.Value, value
	case "content.placeholder":
		old, c.Placeholder = c.Placeholder, value
	case "content.inputKind":
		old, c.InputKind = c.InputKind, value
	}
	return old
}
