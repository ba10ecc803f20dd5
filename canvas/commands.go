package canvas

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/surface"
)

// EditOption adjusts how one edit command applies.
type EditOption func(*editOpts)

type editOpts struct {
	override bool
}

// Override lets an edit target a locked layer or a descendant of one.
func Override() EditOption {
	return func(o *editOpts) { o.override = true }
}

func applyEditOptions(opts []EditOption) editOpts {
	var o editOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// editable rejects direct edits on locked chains unless overridden.
// Caller holds s.mu.
func (s *Session) editable(id string, o editOpts) error {
	if o.override {
		return nil
	}
	if s.tree.LockedInChain(id) {
		return fmt.Errorf("canvas: %s: %w", id, layer.ErrLockedLayerMutation)
	}
	return nil
}

// markupFor returns the initial markup inserted for a created layer.
// Types with no insertable markup return "".
func markupFor(typ layer.Type) string {
	switch typ {
	case layer.TypeText:
		return "<p></p>"
	case layer.TypeImage:
		return `<img alt="">`
	case layer.TypeInput:
		return `<input type="text">`
	case layer.TypeButton:
		return "<button></button>"
	case layer.TypeList:
		return "<ul></ul>"
	case layer.TypeListItem:
		return "<li></li>"
	case layer.TypeTable:
		return "<table></table>"
	case layer.TypeSvg:
		return "<svg></svg>"
	case layer.TypeCanvas:
		return "<canvas></canvas>"
	case layer.TypeVideo:
		return "<video></video>"
	case layer.TypeAudio:
		return "<audio></audio>"
	case layer.TypeContainer, layer.TypeComponent:
		return "<div></div>"
	}
	return ""
}

// CreateLayer creates a layer under parentID and mirrors an empty element
// of the matching kind onto the surface. Types without insertable markup
// (root, script, style, comment, embed) are rejected.
func (s *Session) CreateLayer(ctx context.Context, typ layer.Type, parentID string, index int, opts ...EditOption) (*layer.Layer, error) {
	o := applyEditOptions(opts)
	markup := markupFor(typ)
	if markup == "" {
		return nil, fmt.Errorf("canvas: create: type %q is not insertable", typ)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(parentID, o); err != nil {
		return nil, err
	}
	parent, ok := s.tree.Get(parentID)
	if !ok {
		return nil, fmt.Errorf("canvas: create under %s: %w", parentID, layer.ErrOrphanReference)
	}

	ref := s.refGen()
	html := surface.Sanitize(markup)
	var created *layer.Layer
	err := s.rec.applyInternal(ctx, func() ([]surface.Write, error) {
		l, err := s.tree.Create(typ, parentID, index)
		if err != nil {
			return nil, err
		}
		s.tree.SetExternalRef(l.ID, ref)
		created, _ = s.tree.Get(l.ID)
		return []surface.Write{{
			Op:        surface.WriteInsert,
			ParentRef: parent.ExternalRef,
			Index:     created.Index,
			HTML:      html,
			NewRef:    ref,
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	snap := created
	cmd := &layer.Command{
		Name: "create " + string(typ),
		Apply: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if err := s.tree.Attach(cloneForAttach(snap), snap.ParentID, snap.Index); err != nil {
					return nil, err
				}
				return []surface.Write{{
					Op:        surface.WriteInsert,
					ParentRef: parent.ExternalRef,
					Index:     snap.Index,
					HTML:      html,
					NewRef:    ref,
				}}, nil
			})
		},
		Revert: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if err := s.tree.Delete(snap.ID); err != nil {
					return nil, err
				}
				return []surface.Write{{Op: surface.WriteRemove, Ref: ref}}, nil
			})
		},
	}
	s.history.Push(cmd)
	s.record(ctx, "commit", cmd.Name, created.ID, map[string]any{
		"op": "create", "type": string(typ), "parentId": parentID, "index": created.Index,
	})
	return created, nil
}

// DeleteLayer removes a layer and its subtree from the tree and the
// surface. Undo restores the captured subtree with its original ids.
func (s *Session) DeleteLayer(ctx context.Context, id string, opts ...EditOption) error {
	o := applyEditOptions(opts)
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.tree.Get(id)
	if !ok {
		return fmt.Errorf("canvas: delete %s: %w", id, layer.ErrOrphanReference)
	}
	if err := s.editable(id, o); err != nil {
		return err
	}

	// Capture the subtree and its markup before it goes.
	var captured []*layer.Layer
	for snap := range s.tree.WalkFrom(id, layer.PreOrder) {
		captured = append(captured, snap)
	}
	html := s.subtreeHTML(ctx, l.ExternalRef)
	var parentRef string
	if parent, ok := s.tree.Get(l.ParentID); ok {
		parentRef = parent.ExternalRef
	}

	removeWrites := func() ([]surface.Write, error) {
		if err := s.tree.Delete(id); err != nil {
			return nil, err
		}
		if l.ExternalRef == "" {
			return nil, nil
		}
		return []surface.Write{{Op: surface.WriteRemove, Ref: l.ExternalRef}}, nil
	}

	if err := s.rec.applyInternal(ctx, removeWrites); err != nil {
		return err
	}

	cmd := &layer.Command{
		Name: "delete " + l.Name,
		Apply: func() error {
			return s.rec.applyInternal(s.runCtx, removeWrites)
		},
		Revert: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if err := restoreLayers(s.tree, captured); err != nil {
					return nil, err
				}
				if html == "" || parentRef == "" {
					return nil, nil
				}
				return []surface.Write{{
					Op:        surface.WriteInsert,
					ParentRef: parentRef,
					Index:     l.Index,
					HTML:      html,
					NewRef:    l.ExternalRef,
				}}, nil
			})
		},
	}
	s.history.Push(cmd)
	s.record(ctx, "commit", cmd.Name, id, map[string]any{"op": "delete", "id": id})
	return nil
}

// MoveLayer reparents or reorders a layer on both the tree and the surface.
func (s *Session) MoveLayer(ctx context.Context, id, newParentID string, newIndex int, opts ...EditOption) error {
	o := applyEditOptions(opts)
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.tree.Get(id)
	if !ok {
		return fmt.Errorf("canvas: move %s: %w", id, layer.ErrOrphanReference)
	}
	newParent, ok := s.tree.Get(newParentID)
	if !ok {
		return fmt.Errorf("canvas: move %s to %s: %w", id, newParentID, layer.ErrOrphanReference)
	}
	if err := s.editable(id, o); err != nil {
		return err
	}
	if err := s.editable(newParentID, o); err != nil {
		return err
	}

	oldParentID, oldIndex := l.ParentID, l.Index
	var oldParentRef string
	if oldParent, ok := s.tree.Get(oldParentID); ok {
		oldParentRef = oldParent.ExternalRef
	}

	var finalIndex int
	err := s.rec.applyInternal(ctx, func() ([]surface.Write, error) {
		if err := s.tree.Move(id, newParentID, newIndex); err != nil {
			return nil, err
		}
		moved, _ := s.tree.Get(id)
		finalIndex = moved.Index
		return moveWrites(l.ExternalRef, newParent.ExternalRef, finalIndex), nil
	})
	if err != nil {
		return err
	}

	cmd := &layer.Command{
		Name: "move " + l.Name,
		Apply: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if err := s.tree.Move(id, newParentID, finalIndex); err != nil {
					return nil, err
				}
				return moveWrites(l.ExternalRef, newParent.ExternalRef, finalIndex), nil
			})
		},
		Revert: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if err := s.tree.Move(id, oldParentID, oldIndex); err != nil {
					return nil, err
				}
				return moveWrites(l.ExternalRef, oldParentRef, oldIndex), nil
			})
		},
	}
	s.history.Push(cmd)
	s.record(ctx, "commit", cmd.Name, id, map[string]any{
		"op": "move", "from": oldParentID, "to": newParentID, "index": finalIndex,
	})
	return nil
}

// SetProperty sets one scalar property and mirrors content and visibility
// changes onto the surface. Setting "locked" itself bypasses the lock
// check, otherwise a locked layer could never be unlocked.
func (s *Session) SetProperty(ctx context.Context, id, key string, value any, opts ...EditOption) error {
	o := applyEditOptions(opts)
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.tree.Get(id)
	if !ok {
		return fmt.Errorf("canvas: set %s on %s: %w", key, id, layer.ErrOrphanReference)
	}
	if key != "locked" {
		if err := s.editable(id, o); err != nil {
			return err
		}
	}

	var old any
	err := s.rec.applyInternal(ctx, func() ([]surface.Write, error) {
		prev, err := s.tree.SetProperty(id, key, value)
		if err != nil {
			return nil, err
		}
		old = prev
		return propertyWrites(l.ExternalRef, key, value), nil
	})
	if err != nil {
		return err
	}

	cmd := &layer.Command{
		Name: "set " + key,
		Apply: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if _, err := s.tree.SetProperty(id, key, value); err != nil {
					return nil, err
				}
				return propertyWrites(l.ExternalRef, key, value), nil
			})
		},
		Revert: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				if _, err := s.tree.SetProperty(id, key, old); err != nil {
					return nil, err
				}
				return propertyWrites(l.ExternalRef, key, old), nil
			})
		},
	}
	s.history.Push(cmd)
	s.record(ctx, "commit", cmd.Name, id, map[string]any{"op": "set", "key": key, "value": value})
	return nil
}

// SetTransform overlays a transform patch and mirrors the resulting
// transform as inline style.
func (s *Session) SetTransform(ctx context.Context, id string, patch layer.TransformPatch, opts ...EditOption) error {
	o := applyEditOptions(opts)
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.tree.Get(id)
	if !ok {
		return fmt.Errorf("canvas: transform %s: %w", id, layer.ErrOrphanReference)
	}
	if err := s.editable(id, o); err != nil {
		return err
	}

	var old, final layer.Transform
	err := s.rec.applyInternal(ctx, func() ([]surface.Write, error) {
		prev, err := s.tree.SetTransform(id, patch)
		if err != nil {
			return nil, err
		}
		old = prev
		cur, _ := s.tree.Get(id)
		final = cur.Transform
		return transformWrites(l.ExternalRef, final), nil
	})
	if err != nil {
		return err
	}

	s.history.Push(s.transformCommand("transform "+l.Name, []transformEdit{
		{id: id, ref: l.ExternalRef, base: old, final: final},
	}))
	s.record(ctx, "commit", "transform "+l.Name, id, map[string]any{"op": "transform", "patch": patch})
	return nil
}

// transformEdit is one layer's before/after transform inside a committed
// transform command.
type transformEdit struct {
	id    string
	ref   string
	base  layer.Transform
	final layer.Transform
}

// transformCommand builds the undoable command for one or more transform
// edits. The tree already holds the final transforms when it is pushed.
func (s *Session) transformCommand(name string, edits []transformEdit) *layer.Command {
	return &layer.Command{
		Name: name,
		Apply: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				var writes []surface.Write
				for _, e := range edits {
					if _, err := s.tree.SetTransform(e.id, fullPatch(e.final)); err != nil {
						return nil, err
					}
					writes = append(writes, transformWrites(e.ref, e.final)...)
				}
				return writes, nil
			})
		},
		Revert: func() error {
			return s.rec.applyInternal(s.runCtx, func() ([]surface.Write, error) {
				var writes []surface.Write
				for _, e := range edits {
					if _, err := s.tree.SetTransform(e.id, fullPatch(e.base)); err != nil {
						return nil, err
					}
					writes = append(writes, transformWrites(e.ref, e.base)...)
				}
				return writes, nil
			})
		},
	}
}

// Undo reverts the most recent command, returning its name.
func (s *Session) Undo(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, err := s.history.Undo()
	if err != nil {
		return name, err
	}
	s.record(ctx, "undo", name, "", nil)
	return name, nil
}

// Redo re-applies the most recently undone command, returning its name.
func (s *Session) Redo(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, err := s.history.Redo()
	if err != nil {
		return name, err
	}
	s.record(ctx, "redo", name, "", nil)
	return name, nil
}

// CanUndo and CanRedo report history availability.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// --- mirror write builders ---

func moveWrites(ref, parentRef string, index int) []surface.Write {
	if ref == "" || parentRef == "" {
		return nil
	}
	return []surface.Write{{Op: surface.WriteMove, Ref: ref, ParentRef: parentRef, Index: index}}
}

// contentAttrKeys maps content properties back to the attribute they
// mirror to, the inverse of the reconciler's attrContentKeys.
var contentAttrKeys = map[string]string{
	"content.src":         "src",
	"content.alt":         "alt",
	"content.href":        "href",
	"content.target":      "target",
	"content.value":       "value",
	"content.placeholder": "placeholder",
	"content.inputKind":   "type",
}

func propertyWrites(ref, key string, value any) []surface.Write {
	if ref == "" {
		return nil
	}
	switch key {
	case "visible":
		b, _ := value.(bool)
		v := "none"
		if b {
			v = ""
		}
		return []surface.Write{{Op: surface.WriteSetStyle, Ref: ref, Name: "display", Value: v}}
	case "content.text":
		v, _ := value.(string)
		return []surface.Write{{Op: surface.WriteSetText, Ref: ref, Value: v}}
	}
	if attr, ok := contentAttrKeys[key]; ok {
		v, _ := value.(string)
		if v == "" {
			return []surface.Write{{Op: surface.WriteDelAttr, Ref: ref, Name: attr}}
		}
		return []surface.Write{{Op: surface.WriteSetAttr, Ref: ref, Name: attr, Value: v}}
	}
	return nil // name, locked, collapsed have no surface form
}

// transformWrites mirrors a transform as inline style: a CSS transform
// plus explicit width/height when overridden.
func transformWrites(ref string, tr layer.Transform) []surface.Write {
	if ref == "" {
		return nil
	}
	return []surface.Write{
		{Op: surface.WriteSetStyle, Ref: ref, Name: "transform", Value: transformCSS(tr)},
		{Op: surface.WriteSetStyle, Ref: ref, Name: "width", Value: cssPx(tr.Width)},
		{Op: surface.WriteSetStyle, Ref: ref, Name: "height", Value: cssPx(tr.Height)},
	}
}

// transformCSS renders the non-identity parts of a transform; "" clears
// the inline property.
func transformCSS(tr layer.Transform) string {
	var parts []string
	if tr.X != 0 || tr.Y != 0 {
		parts = append(parts, fmt.Sprintf("translate(%gpx, %gpx)", tr.X, tr.Y))
	}
	if tr.Rotation != 0 {
		parts = append(parts, fmt.Sprintf("rotate(%gdeg)", tr.Rotation))
	}
	sx, sy := tr.ScaleX, tr.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	if sx != 1 || sy != 1 {
		parts = append(parts, fmt.Sprintf("scale(%g, %g)", sx, sy))
	}
	return strings.Join(parts, " ")
}

func cssPx(v float64) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%gpx", v)
}

func fullPatch(t layer.Transform) layer.TransformPatch {
	return layer.TransformPatch{
		X: &t.X, Y: &t.Y, Width: &t.Width, Height: &t.Height,
		Rotation: &t.Rotation, ScaleX: &t.ScaleX, ScaleY: &t.ScaleY,
	}
}

// subtreeHTML captures a subtree's markup from the surface for undo,
// sanitized like any other insert. "" when the ref cannot be snapshotted.
func (s *Session) subtreeHTML(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	n, err := s.surf.SnapshotFrom(ctx, ref)
	if err != nil {
		s.logger.Warn("canvas: capture subtree markup", "ref", ref, "error", err)
		return ""
	}
	return surface.Sanitize(renderNodeHTML(n))
}

// restoreLayers re-attaches captured subtree snapshots, parents before
// children, preserving ids, refs and sibling positions.
func restoreLayers(t *layer.Tree, captured []*layer.Layer) error {
	for _, snap := range captured {
		if err := t.Attach(cloneForAttach(snap), snap.ParentID, snap.Index); err != nil {
			return err
		}
	}
	return nil
}

func cloneForAttach(snap *layer.Layer) *layer.Layer {
	c := *snap
	c.ChildIDs = nil
	c.Selected = false
	return &c
}
