package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/surface"
)

// State is the reconciler's activity state. Exactly one is active at any
// time; every tree mutation happens inside one of the two applying states.
type State int32

const (
	StateIdle State = iota
	StateApplyingExternal
	StateApplyingInternal
)

func (s State) String() string {
	switch s {
	case StateApplyingExternal:
		return "applying_external"
	case StateApplyingInternal:
		return "applying_internal"
	default:
		return "idle"
	}
}

// reconciler keeps the layer tree and the rendering surface consistent:
// external records drain into tree mutations, edit commands mirror tree
// mutations onto the surface under suspension. The owning session
// serializes all entry points; the state field is atomic only so health
// reporting can read it without the session lock.
type reconciler struct {
	tree   *layer.Tree
	surf   surface.Surface
	queue  *surface.Queue
	logger *slog.Logger
	state  atomic.Int32
}

func newReconciler(tree *layer.Tree, surf surface.Surface, queue *surface.Queue, logger *slog.Logger) *reconciler {
	return &reconciler{tree: tree, surf: surf, queue: queue, logger: logger}
}

func (r *reconciler) State() State { return State(r.state.Load()) }

func (r *reconciler) enter(s State) { r.state.Store(int32(s)) }
func (r *reconciler) exit()         { r.state.Store(int32(StateIdle)) }

// drainExternal flushes the queue and applies the batch to the tree.
// Returns the number of records applied. Unresolvable records recover via
// scoped resync; only a failed full rebuild propagates.
func (r *reconciler) drainExternal(ctx context.Context) (int, error) {
	b := r.queue.Flush()
	if b == nil {
		return 0, nil
	}
	r.enter(StateApplyingExternal)
	defer r.exit()

	r.logger.Debug("canvas: external batch", "id", b.ID, "seq", b.Seq, "records", len(b.Records))
	for _, rec := range b.Records {
		if err := r.applyRecord(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(b.Records), nil
}

func (r *reconciler) applyRecord(ctx context.Context, rec surface.Record) error {
	switch rec.Op {
	case surface.OpReset:
		return r.rebuild(ctx)
	case surface.OpInsert:
		return r.applyInsert(ctx, rec)
	case surface.OpRemove:
		r.applyRemove(rec)
		return nil
	case surface.OpAttr, surface.OpAttrDel:
		return r.applyAttr(ctx, rec)
	case surface.OpText:
		return r.applyText(ctx, rec)
	}
	r.logger.Warn("canvas: unknown record op", "op", string(rec.Op))
	return nil
}

// resolveLayer maps a record target to its layer: ref first, then the
// content path when the ref has gone stale.
func (r *reconciler) resolveLayer(ref, path string) (*layer.Layer, bool) {
	if ref != "" {
		if l, ok := r.tree.ByExternalRef(ref); ok {
			return l, true
		}
	}
	if path != "" {
		if l, ok := r.tree.ByContentPath(path); ok {
			return l, true
		}
	}
	return nil, false
}

func (r *reconciler) applyInsert(ctx context.Context, rec surface.Record) error {
	parent, ok := r.resolveLayer(rec.ParentRef, parentPath(rec.Path))
	if !ok {
		return r.resync(ctx, rec)
	}

	// A known ref reappearing under a new parent is a move.
	if existing, ok := r.tree.ByExternalRef(rec.Ref); ok {
		if err := r.tree.Move(existing.ID, parent.ID, rec.Index); err != nil {
			r.logger.Warn("canvas: external move rejected", "layer", existing.ID, "error", err)
			return r.resync(ctx, rec)
		}
		if rec.Path != "" {
			r.tree.SetContentPath(existing.ID, rec.Path)
		}
		return nil
	}

	node := rec.Node
	if node == nil {
		n, err := r.surf.SnapshotFrom(ctx, rec.Ref)
		if err != nil {
			if errors.Is(err, surface.ErrDetached) {
				return nil // inserted and removed within the same batch window
			}
			return r.resync(ctx, rec)
		}
		node = n
	}

	if _, err := attachSubtree(r.tree, node, parent.ID, rec.Index); err != nil {
		r.logger.Warn("canvas: attach external node", "ref", rec.Ref, "error", err)
		return r.resync(ctx, rec)
	}
	return nil
}

func (r *reconciler) applyRemove(rec surface.Record) {
	l, ok := r.resolveLayer(rec.Ref, rec.Path)
	if !ok {
		return // already gone
	}
	if err := r.tree.Delete(l.ID); err != nil {
		r.logger.Warn("canvas: delete for external removal", "layer", l.ID, "error", err)
	}
}

// attrContentKeys maps attribute names to the content property they feed.
var attrContentKeys = map[string]string{
	"src":         "content.src",
	"alt":         "content.alt",
	"href":        "content.href",
	"target":      "content.target",
	"value":       "content.value",
	"placeholder": "content.placeholder",
	"type":        "content.inputKind",
}

func (r *reconciler) applyAttr(ctx context.Context, rec surface.Record) error {
	l, ok := r.resolveLayer(rec.Ref, rec.Path)
	if !ok {
		return r.resync(ctx, rec)
	}

	value := rec.Value
	if rec.Op == surface.OpAttrDel {
		value = ""
	}

	if key, ok := attrContentKeys[rec.Name]; ok {
		if _, err := r.tree.SetProperty(l.ID, key, value); err != nil {
			r.logger.Warn("canvas: set content from attr", "layer", l.ID, "attr", rec.Name, "error", err)
		}
		return nil
	}

	switch rec.Name {
	case "style", "class":
		// Styling changed: refresh the cached computed style and bounds.
		r.refreshStyle(ctx, l)
	default:
		r.logger.Debug("canvas: unmapped attr change", "layer", l.ID, "attr", rec.Name)
	}
	return nil
}

func (r *reconciler) refreshStyle(ctx context.Context, l *layer.Layer) {
	if l.ExternalRef == "" {
		return
	}
	n, err := r.surf.SnapshotFrom(ctx, l.ExternalRef)
	if err != nil {
		r.logger.Debug("canvas: style refresh", "layer", l.ID, "error", err)
		return
	}
	r.tree.SetComputedStyle(l.ID, n.Style)
	if n.Bounds != nil {
		r.tree.SetBounds(l.ID, boundsRect(n.Bounds))
	}
}

func (r *reconciler) applyText(ctx context.Context, rec surface.Record) error {
	l, ok := r.resolveLayer(rec.Ref, rec.Path)
	if !ok {
		return r.resync(ctx, rec)
	}
	if _, err := r.tree.SetProperty(l.ID, "content.text", rec.Value); err != nil {
		r.logger.Warn("canvas: set text", "layer", l.ID, "error", err)
	}
	return nil
}

// resync rebuilds the mapping around a record the tree cannot resolve,
// rooted at the nearest ancestor both sides still agree on. Layers in the
// rebuilt subtree get fresh identities; the anchor keeps its own.
func (r *reconciler) resync(ctx context.Context, rec surface.Record) error {
	anchor := r.nearestAnchor(rec)
	if anchor.ExternalRef == "" {
		return r.rebuild(ctx)
	}
	node, err := r.surf.SnapshotFrom(ctx, anchor.ExternalRef)
	if err != nil {
		// The anchor is gone too; start over from the document.
		return r.rebuild(ctx)
	}

	r.logger.Info("canvas: scoped resync", "layer", anchor.ID, "ref", anchor.ExternalRef)
	for _, child := range r.tree.Children(anchor.ID) {
		if err := r.tree.Delete(child.ID); err != nil {
			return r.rebuild(ctx)
		}
	}
	r.tree.SetExternalRef(anchor.ID, node.Ref)
	r.tree.SetContentPath(anchor.ID, node.Path)
	if node.Bounds != nil {
		r.tree.SetBounds(anchor.ID, boundsRect(node.Bounds))
	}
	r.tree.SetComputedStyle(anchor.ID, node.Style)
	for i, child := range node.Children {
		if _, err := attachSubtree(r.tree, child, anchor.ID, i); err != nil {
			return r.rebuild(ctx)
		}
	}
	return nil
}

// nearestAnchor picks the closest resolvable ancestor of a record target:
// the parent ref, then each prefix of the content path, then the root.
func (r *reconciler) nearestAnchor(rec surface.Record) *layer.Layer {
	if rec.ParentRef != "" {
		if l, ok := r.tree.ByExternalRef(rec.ParentRef); ok {
			return l
		}
	}
	for p := parentPath(rec.Path); p != ""; p = parentPath(p) {
		if l, ok := r.tree.ByContentPath(p); ok {
			return l
		}
	}
	return r.tree.Root()
}

// rebuild replaces the whole tree content from a fresh document snapshot.
// The root layer survives; everything below it is rebuilt.
func (r *reconciler) rebuild(ctx context.Context) error {
	snap, err := r.surf.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("canvas: rebuild snapshot: %w", err)
	}
	rootID := r.tree.RootID()
	for _, child := range r.tree.Children(rootID) {
		if err := r.tree.Delete(child.ID); err != nil {
			return fmt.Errorf("canvas: rebuild clear: %w", err)
		}
	}
	bindRoot(r.tree, snap)
	for i, child := range snap.Children {
		if _, err := attachSubtree(r.tree, child, rootID, i); err != nil {
			return fmt.Errorf("canvas: rebuild attach: %w", err)
		}
	}
	r.logger.Info("canvas: tree rebuilt", "layers", r.tree.Len())
	return nil
}

// applyInternal runs an edit command's tree mutation and mirrors the
// writes it produces onto the surface, suspended so they do not echo back
// as external change.
func (r *reconciler) applyInternal(ctx context.Context, fn func() ([]surface.Write, error)) error {
	r.enter(StateApplyingInternal)
	defer r.exit()

	writes, err := fn()
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	r.surf.Suspend()
	defer r.surf.Resume()
	if err := r.surf.Apply(ctx, writes); err != nil {
		return fmt.Errorf("canvas: mirror writes: %w", err)
	}
	return nil
}

// parentPath strips the last segment of a content path:
// /html/body/div[2]/p -> /html/body/div[2].
func parentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}
