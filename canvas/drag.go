package canvas

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/overlay"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/viewport"
)

// dragState is an in-flight interactive gesture. Provisional updates
// mutate the tree only, so renderers track the motion through bus events;
// the surface sees nothing until commit.
type dragState struct {
	drags    []*overlay.Drag
	siblings []layer.Rect
	kind     overlay.DragKind
	primary  string
}

// BeginDrag starts a move, resize or rotate gesture at a screen point.
// A move on a selected layer drags the whole selection rigidly; resize
// and rotate always target the single given layer.
func (s *Session) BeginDrag(kind overlay.DragKind, layerID string, handle overlay.HandleKind, screen viewport.Point, aspectLock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag != nil {
		return ErrDragActive
	}

	ids := []string{layerID}
	if kind == overlay.DragMove {
		if sel := s.tree.SelectedIDs(); len(sel) > 1 {
			for _, id := range sel {
				if id == layerID {
					ids = sel
					break
				}
			}
		}
	}

	world := s.cam.ScreenToWorld(screen)
	drags := make([]*overlay.Drag, 0, len(ids))
	for _, id := range ids {
		l, ok := s.tree.Get(id)
		if !ok {
			return fmt.Errorf("canvas: drag %s: %w", id, layer.ErrOrphanReference)
		}
		if s.tree.LockedInChain(id) {
			return fmt.Errorf("canvas: drag %s: %w", id, layer.ErrLockedLayerMutation)
		}
		switch kind {
		case overlay.DragMove:
			drags = append(drags, overlay.BeginMove(l, world))
		case overlay.DragResize:
			d, err := overlay.BeginResize(l, handle, world, aspectLock)
			if err != nil {
				return fmt.Errorf("canvas: drag %s: %w", id, err)
			}
			drags = append(drags, d)
		case overlay.DragRotate:
			drags = append(drags, overlay.BeginRotate(l, world))
		default:
			return fmt.Errorf("canvas: drag: unknown kind %d", kind)
		}
	}

	s.drag = &dragState{
		drags:    drags,
		siblings: overlay.SiblingRects(s.tree, layerID),
		kind:     kind,
		primary:  layerID,
	}
	return nil
}

// UpdateDrag advances the gesture to a new screen point and applies the
// provisional transforms to the tree. For moves it snaps the primary
// layer to sibling edges and shifts every dragged layer by the same
// correction, returning the guides that matched.
func (s *Session) UpdateDrag(screen viewport.Point) ([]overlay.Guide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil, ErrNoDrag
	}

	world := s.cam.ScreenToWorld(screen)
	patches := make([]layer.TransformPatch, len(s.drag.drags))
	for i, d := range s.drag.drags {
		patches[i] = d.Update(world)
	}

	var guides []overlay.Guide
	if s.drag.kind == overlay.DragMove && s.cfg.SnapEpsilon > 0 {
		if l, ok := s.tree.Get(s.drag.primary); ok {
			tmp := *l
			tmp.Transform = patches[0].Apply(s.drag.drags[0].Base())
			proposed := overlay.WorldRect(&tmp)
			snapped, matched := overlay.Snap(proposed, s.drag.siblings, s.cfg.SnapEpsilon)
			dx, dy := snapped.X-proposed.X, snapped.Y-proposed.Y
			if dx != 0 || dy != 0 {
				for i := range patches {
					if patches[i].X != nil {
						*patches[i].X += dx
					}
					if patches[i].Y != nil {
						*patches[i].Y += dy
					}
				}
			}
			guides = matched
		}
	}

	for i, d := range s.drag.drags {
		if _, err := s.tree.SetTransform(d.LayerID(), patches[i]); err != nil {
			return nil, err
		}
	}
	return guides, nil
}

// CommitDrag ends the gesture, mirrors the final transforms onto the
// surface and pushes a single undoable command covering every dragged
// layer.
func (s *Session) CommitDrag(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return ErrNoDrag
	}
	st := s.drag
	s.drag = nil

	edits := make([]transformEdit, 0, len(st.drags))
	var primaryName string
	for _, d := range st.drags {
		cur, ok := s.tree.Get(d.LayerID())
		if !ok {
			continue
		}
		if d.LayerID() == st.primary {
			primaryName = cur.Name
		}
		edits = append(edits, transformEdit{
			id: d.LayerID(), ref: cur.ExternalRef, base: d.Base(), final: cur.Transform,
		})
	}
	if len(edits) == 0 {
		return nil
	}

	err := s.rec.applyInternal(ctx, func() ([]surface.Write, error) {
		var ws []surface.Write
		for _, e := range edits {
			ws = append(ws, transformWrites(e.ref, e.final)...)
		}
		return ws, nil
	})
	if err != nil {
		return err
	}

	name := dragVerb(st.kind) + " " + primaryName
	s.history.Push(s.transformCommand(name, edits))
	s.record(ctx, "commit", name, st.primary, map[string]any{
		"op": "drag", "kind": dragVerb(st.kind), "layers": len(edits),
	})
	return nil
}

// CancelDrag ends the gesture and restores every dragged layer's
// starting transform. Nothing reached the surface, so the tree reset is
// the whole rollback.
func (s *Session) CancelDrag() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return ErrNoDrag
	}
	st := s.drag
	s.drag = nil
	for _, d := range st.drags {
		if _, err := s.tree.SetTransform(d.LayerID(), fullPatch(d.Base())); err != nil {
			return err
		}
	}
	return nil
}

// DragActive reports whether a gesture is in flight.
func (s *Session) DragActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag != nil
}

func dragVerb(kind overlay.DragKind) string {
	switch kind {
	case overlay.DragResize:
		return "resize"
	case overlay.DragRotate:
		return "rotate"
	default:
		return "move"
	}
}
