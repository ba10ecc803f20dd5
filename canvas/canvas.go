// Package canvas orchestrates one editing session: the layer tree, the
// rendering surface, the reconciler keeping the two consistent, the camera,
// the overlay interaction state and the undo history. All mutation funnels
// through the Session, which serializes access with one mutex; the
// reconciler's two applying states are the only places tree structure
// changes.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domcanvas/canvas/internal/journal"
	"github.com/hazyhaar/domcanvas/idgen"
	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/overlay"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/viewport"
)

var (
	// ErrNoDrag means UpdateDrag/CommitDrag/CancelDrag ran without an
	// active drag.
	ErrNoDrag = errors.New("canvas: no active drag")

	// ErrDragActive means BeginDrag ran while a drag was in progress.
	ErrDragActive = errors.New("canvas: drag already in progress")
)

// Session is one live editing session over a rendering surface.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	tree    *layer.Tree
	bus     *layer.Bus
	cam     *viewport.Camera
	history *layer.History
	surf    surface.Surface
	queue   *surface.Queue
	rec     *reconciler
	logger  *slog.Logger
	jrnl    *journal.Journal
	export  *exporter
	drag    *dragState
	refGen  idgen.Generator
	closed  bool

	// runCtx is the session's lifetime context. History commands capture
	// it instead of the originating request context, which is usually
	// dead by undo time.
	runCtx context.Context
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// withJournal attaches an already-open command journal; tests use it to
// back the session with an in-memory database. Open wires the on-disk
// journal from Config.JournalPath.
func withJournal(j *journal.Journal) SessionOption {
	return func(s *Session) { s.jrnl = j }
}

// Open snapshots the surface, builds the layer tree from it and starts
// watching for external change. ctx bounds the session's lifetime.
func Open(ctx context.Context, surf surface.Surface, cfg Config, opts ...SessionOption) (*Session, error) {
	cfg.defaults()
	s := &Session{
		cfg:    cfg,
		surf:   surf,
		logger: slog.Default(),
		refGen: idgen.Prefixed("ed_", idgen.UUIDv7()),
		runCtx: ctx,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bus = layer.NewBus()
	s.tree = layer.NewTree(layer.WithBus(s.bus))
	s.history = layer.NewHistory(cfg.HistoryDepth)
	s.cam = viewport.New(viewport.WithZoomRange(cfg.ZoomMin, cfg.ZoomMax))
	s.queue = surface.NewQueue(surface.WithQueueMax(cfg.QueueMax))
	s.rec = newReconciler(s.tree, surf, s.queue, s.logger)
	s.export = newExporter()

	if cfg.JournalPath != "" && s.jrnl == nil {
		jrnl, err := journal.Open(cfg.JournalPath, s.logger)
		if err != nil {
			return nil, fmt.Errorf("canvas: open journal: %w", err)
		}
		s.jrnl = jrnl
	}

	if err := s.rec.rebuild(ctx); err != nil {
		return nil, fmt.Errorf("canvas: initial snapshot: %w", err)
	}
	if err := surf.Watch(ctx, s.queue); err != nil {
		return nil, fmt.Errorf("canvas: watch surface: %w", err)
	}

	s.logger.Info("canvas: session open", "layers", s.tree.Len())
	return s, nil
}

// Run ticks the reconciler at the configured frame interval until ctx
// ends. Pending external records are at most one frame stale.
func (s *Session) Run(ctx context.Context) error {
	tick := time.NewTicker(s.cfg.FrameInterval)
	defer tick.Stop()

	var snapC <-chan time.Time
	if s.jrnl != nil {
		snap := time.NewTicker(s.cfg.JournalSnapshotInterval)
		defer snap.Stop()
		snapC = snap.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("canvas: tick", "error", err)
			}
		case <-snapC:
			s.snapshotJournal(ctx)
		}
	}
}

// Tick drains pending external records as one coalesced batch.
func (s *Session) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_, err := s.rec.drainExternal(ctx)
	return err
}

// State returns the reconciler's current activity state.
func (s *Session) State() State { return s.rec.State() }

// Bus returns the mutation event bus.
func (s *Session) Bus() *layer.Bus { return s.bus }

// Close shuts the surface and the journal down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.surf.Close()
	if s.jrnl != nil {
		if jerr := s.jrnl.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

func (s *Session) snapshotJournal(ctx context.Context) {
	s.mu.Lock()
	data, err := layer.Marshal(s.tree)
	count := s.tree.Len()
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("canvas: serialize for journal", "error", err)
		return
	}
	if err := s.jrnl.Snapshot(ctx, data, count); err != nil {
		s.logger.Warn("canvas: journal snapshot", "error", err)
	}
}

// record appends one command to the journal, when one is attached.
func (s *Session) record(ctx context.Context, kind, name, layerID string, payload any) {
	if s.jrnl == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("canvas: encode journal payload", "error", err)
		return
	}
	e := journal.Entry{Kind: kind, Name: name, LayerID: layerID, Payload: string(data)}
	if err := s.jrnl.Append(ctx, e); err != nil {
		s.logger.Warn("canvas: journal append", "error", err)
	}
}

// --- queries ---

// GetLayer returns a snapshot of one layer.
func (s *Session) GetLayer(id string) (*layer.Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Get(id)
}

// RootID returns the root layer id.
func (s *Session) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.RootID()
}

// LayerCount returns the number of layers in the tree.
func (s *Session) LayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// SerializeTree renders the whole tree in interchange form.
func (s *Session) SerializeTree() *layer.Serialized {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Serialize()
}

// SerializeLayer renders one subtree in interchange form.
func (s *Session) SerializeLayer(id string) (*layer.Serialized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.SerializeFrom(id)
}

// GetTransform returns a layer's current transform.
func (s *Session) GetTransform(id string) (layer.Transform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tree.Get(id)
	if !ok {
		return layer.Transform{}, fmt.Errorf("canvas: transform of %s: %w", id, layer.ErrOrphanReference)
	}
	return l.Transform, nil
}

// --- selection ---

// Select updates the selection set.
func (s *Session) Select(id string, mode layer.SelectMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Select(id, mode)
}

// ClearSelection deselects everything.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ClearSelection()
}

// SelectedIDs returns the selected ids in selection order.
func (s *Session) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.SelectedIDs()
}

// SelectionBox returns the selection geometry for overlay rendering.
func (s *Session) SelectionBox() (overlay.Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overlay.CurrentSelection(s.tree)
}

// SelectionHandles returns the screen-space transform handles for the
// current selection, empty when nothing is selected.
func (s *Session) SelectionHandles() []overlay.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := overlay.CurrentSelection(s.tree)
	if !ok {
		return nil
	}
	return overlay.Handles(sel, s.cam)
}

// HitTest returns the topmost visible layer at a screen point, "" on miss.
func (s *Session) HitTest(screen viewport.Point) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overlay.HitTest(s.tree, s.cam.ScreenToWorld(screen))
}

// HitTestHandle returns the transform handle at a screen point, if any.
func (s *Session) HitTestHandle(screen viewport.Point) overlay.HandleKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := overlay.CurrentSelection(s.tree)
	if !ok {
		return overlay.HandleNone
	}
	return overlay.HitHandle(overlay.Handles(sel, s.cam), screen, overlay.DefaultHandleHitSize)
}

// MarqueeSelect replaces the selection with every visible layer whose
// rotated bounds intersect the screen-space rectangle a-b, and returns the
// selected ids.
func (s *Session) MarqueeSelect(a, b viewport.Point) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := overlay.Marquee(s.tree, s.cam.ScreenToWorld(a), s.cam.ScreenToWorld(b))
	s.tree.ClearSelection()
	for _, id := range ids {
		s.tree.Select(id, layer.SelectAdd)
	}
	return ids
}

// --- camera ---

// CameraState returns the current zoom and pan.
func (s *Session) CameraState() (zoom, panX, panY float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zoom = s.cam.Zoom()
	panX, panY = s.cam.Pan()
	return zoom, panX, panY
}

// SetZoom sets the zoom factor, clamped into range.
func (s *Session) SetZoom(z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.SetZoom(z)
}

// SetPan sets the pan offset in screen pixels.
func (s *Session) SetPan(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.SetPan(x, y)
}

// PanBy shifts the pan offset by a screen-space delta.
func (s *Session) PanBy(dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.PanBy(dx, dy)
}

// ZoomAbout zooms while keeping the world point under the screen anchor
// fixed there.
func (s *Session) ZoomAbout(z float64, anchor viewport.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.ZoomAbout(z, anchor)
}

// FitToContent frames the document content in the given viewport.
func (s *Session) FitToContent(viewportW, viewportH float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.FitToContent(s.contentBounds(), viewportW, viewportH)
}

// ResetCamera returns to zoom 1 with the content centered.
func (s *Session) ResetCamera(viewportW, viewportH float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.Reset(s.contentBounds(), viewportW, viewportH)
}

// WorldToScreen maps a world-space point to viewport pixels.
func (s *Session) WorldToScreen(p viewport.Point) viewport.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam.WorldToScreen(p)
}

// ScreenToWorld maps viewport pixels to world space.
func (s *Session) ScreenToWorld(p viewport.Point) viewport.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam.ScreenToWorld(p)
}

// contentBounds is the union of the top-level layers' rotated world rects,
// falling back to the root's own bounds. Caller holds s.mu.
func (s *Session) contentBounds() viewport.Rect {
	root := s.tree.Root()
	children := s.tree.Children(root.ID)
	if len(children) == 0 {
		return viewport.Rect{X: root.Bounds.X, Y: root.Bounds.Y, Width: root.Bounds.Width, Height: root.Bounds.Height}
	}
	u := overlay.RotatedAABB(children[0])
	for _, c := range children[1:] {
		u = u.Union(overlay.RotatedAABB(c))
	}
	return viewport.Rect{X: u.X, Y: u.Y, Width: u.Width, Height: u.Height}
}
