package canvas

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/overlay"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/viewport"
)

const testPage = `<html><head><title>Demo</title></head><body><div id="hero" class="hero"><h1>Welcome</h1><p>Intro copy</p></div><ul><li>One</li><li>Two</li></ul><img src="a.png" alt="old"></body></html>`

// testSession opens a session over an in-memory surface built from testPage.
func testSession(t *testing.T, opts ...SessionOption) (*Session, *surface.MemDOM) {
	t.Helper()
	mem, err := surface.NewMemDOM(testPage)
	if err != nil {
		t.Fatalf("memdom: %v", err)
	}
	s, err := Open(context.Background(), mem, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mem
}

// layerNamed fetches the single layer with the given derived name.
func layerNamed(t *testing.T, s *Session, name string) *layer.Layer {
	t.Helper()
	ls := s.tree.ByName(name)
	if len(ls) != 1 {
		t.Fatalf("layers named %q: got %d, want 1", name, len(ls))
	}
	return ls[0]
}

func refOf(t *testing.T, s *Session, id string) string {
	t.Helper()
	l, ok := s.GetLayer(id)
	if !ok {
		t.Fatalf("layer %s: missing", id)
	}
	if l.ExternalRef == "" {
		t.Fatalf("layer %s: no external ref", id)
	}
	return l.ExternalRef
}

func mustRender(t *testing.T, mem *surface.MemDOM) string {
	t.Helper()
	html, err := mem.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return html
}

func pt(x, y float64) viewport.Point { return viewport.Point{X: x, Y: y} }

func TestOpen_BuildsTree(t *testing.T) {
	s, mem := testSession(t)

	// body root + div + h1 + p + ul + 2 li + img
	if got := s.LayerCount(); got != 8 {
		t.Fatalf("layer count: got %d, want 8", got)
	}
	root, ok := s.GetLayer(s.RootID())
	if !ok {
		t.Fatal("root: missing")
	}
	if root.ExternalRef != mem.BodyRef() {
		t.Errorf("root ref: got %s, want %s", root.ExternalRef, mem.BodyRef())
	}

	hero := layerNamed(t, s, "hero")
	if hero.Type != layer.TypeContainer {
		t.Errorf("hero type: got %s, want container", hero.Type)
	}
	kids := s.tree.Children(hero.ID)
	if len(kids) != 2 {
		t.Fatalf("hero children: got %d, want 2", len(kids))
	}
	if kids[0].Name != "Welcome" || kids[0].Type != layer.TypeText {
		t.Errorf("first child: got %s/%s, want Welcome/text", kids[0].Name, kids[0].Type)
	}
	if kids[1].Name != "Intro copy" {
		t.Errorf("second child name: got %s, want Intro copy", kids[1].Name)
	}

	list := layerNamed(t, s, "List 1")
	items := s.tree.Children(list.ID)
	if len(items) != 2 || items[0].Type != layer.TypeListItem {
		t.Fatalf("list items: got %d of %s", len(items), items[0].Type)
	}
	if items[0].Name != "One" || items[1].Name != "Two" {
		t.Errorf("item names: got %s, %s", items[0].Name, items[1].Name)
	}

	imgs := s.tree.ByType(layer.TypeImage)
	if len(imgs) != 1 {
		t.Fatalf("images: got %d, want 1", len(imgs))
	}
	if imgs[0].Content.Src != "a.png" || imgs[0].Content.Alt != "old" {
		t.Errorf("image content: got %q/%q", imgs[0].Content.Src, imgs[0].Content.Alt)
	}
}

func TestExternalInsert_AddsLayer(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")

	if _, err := mem.InsertHTML(refOf(t, s, hero.ID), 2, "<p>New para</p>", ""); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	kids := s.tree.Children(hero.ID)
	if len(kids) != 3 {
		t.Fatalf("hero children: got %d, want 3", len(kids))
	}
	added := kids[2]
	if added.Type != layer.TypeText || added.Content.Text != "New para" {
		t.Errorf("added layer: got %s %q", added.Type, added.Content.Text)
	}
	if added.Index != 2 {
		t.Errorf("added index: got %d, want 2", added.Index)
	}
	if got := s.LayerCount(); got != 9 {
		t.Errorf("layer count: got %d, want 9", got)
	}
}

func TestExternalAttrAndText_UpdateContent(t *testing.T) {
	s, mem := testSession(t)
	img := s.tree.ByType(layer.TypeImage)[0]
	para := layerNamed(t, s, "Intro copy")

	if err := mem.SetAttr(refOf(t, s, img.ID), "alt", "fresh"); err != nil {
		t.Fatalf("set attr: %v", err)
	}
	if err := mem.SetText(refOf(t, s, para.ID), "Updated copy"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	img2, _ := s.GetLayer(img.ID)
	if img2.Content.Alt != "fresh" {
		t.Errorf("alt: got %q, want fresh", img2.Content.Alt)
	}
	para2, _ := s.GetLayer(para.ID)
	if para2.Content.Text != "Updated copy" {
		t.Errorf("text: got %q, want Updated copy", para2.Content.Text)
	}
}

func TestExternalRemove_DropsSubtree(t *testing.T) {
	s, mem := testSession(t)
	list := layerNamed(t, s, "List 1")
	ref := refOf(t, s, list.ID)

	if err := mem.Remove(ref); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := s.LayerCount(); got != 5 {
		t.Errorf("layer count: got %d, want 5", got)
	}
	if _, ok := s.GetLayer(list.ID); ok {
		t.Error("list layer survived removal")
	}
	if _, ok := s.tree.ByExternalRef(ref); ok {
		t.Error("ref still resolves after removal")
	}
}

func TestExternalMove_KeepsLayerIdentity(t *testing.T) {
	s, mem := testSession(t)
	list := layerNamed(t, s, "List 1")

	if err := mem.MoveNode(refOf(t, s, list.ID), mem.BodyRef(), 0); err != nil {
		t.Fatalf("move node: %v", err)
	}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	moved, ok := s.GetLayer(list.ID)
	if !ok {
		t.Fatal("list layer lost its identity across the move")
	}
	if moved.Index != 0 {
		t.Errorf("index: got %d, want 0", moved.Index)
	}
	if kids := s.tree.Children(s.RootID()); kids[0].ID != list.ID {
		t.Errorf("first child: got %s, want %s", kids[0].ID, list.ID)
	}
	if got := s.LayerCount(); got != 8 {
		t.Errorf("layer count: got %d, want 8", got)
	}
}

func TestInternalEdit_DoesNotEcho(t *testing.T) {
	s, mem := testSession(t)
	para := layerNamed(t, s, "Intro copy")

	if err := s.SetProperty(context.Background(), para.ID, "content.text", "Fresh text"); err != nil {
		t.Fatalf("set property: %v", err)
	}

	// The write reached the surface without producing an observation record.
	if got := s.queue.Len(); got != 0 {
		t.Fatalf("queue length: got %d, want 0", got)
	}
	if html := mustRender(t, mem); !strings.Contains(html, "Fresh text") {
		t.Error("surface missing the written text")
	}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := s.LayerCount(); got != 8 {
		t.Errorf("layer count after tick: got %d, want 8", got)
	}
	para2, _ := s.GetLayer(para.ID)
	if para2.Content.Text != "Fresh text" {
		t.Errorf("text: got %q, want Fresh text", para2.Content.Text)
	}
}

func TestSetProperty_VisibilityMirrorsDisplay(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	if err := s.SetProperty(ctx, hero.ID, "visible", false); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if !strings.Contains(mustRender(t, mem), "display: none") {
		t.Error("surface missing display: none")
	}
	hero2, _ := s.GetLayer(hero.ID)
	if hero2.Visible {
		t.Error("layer still visible")
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if strings.Contains(mustRender(t, mem), "display: none") {
		t.Error("display: none survived undo")
	}
	hero3, _ := s.GetLayer(hero.ID)
	if !hero3.Visible {
		t.Error("layer still hidden after undo")
	}
}

func TestCreateLayer_InsertsAndRedoes(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	created, err := s.CreateLayer(ctx, layer.TypeButton, hero.ID, -1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Type != layer.TypeButton {
		t.Errorf("type: got %s, want button", created.Type)
	}
	if !strings.HasPrefix(created.ExternalRef, "ed_") {
		t.Errorf("ref: got %q, want ed_ prefix", created.ExternalRef)
	}
	if kids := s.tree.Children(hero.ID); len(kids) != 3 {
		t.Fatalf("hero children: got %d, want 3", len(kids))
	}
	if !strings.Contains(mustRender(t, mem), "<button") {
		t.Error("surface missing the button element")
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if kids := s.tree.Children(hero.ID); len(kids) != 2 {
		t.Fatalf("hero children after undo: got %d, want 2", len(kids))
	}

	if _, err := s.Redo(ctx); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if _, ok := s.GetLayer(created.ID); !ok {
		t.Error("redo minted a different layer id")
	}
	if kids := s.tree.Children(hero.ID); len(kids) != 3 {
		t.Fatalf("hero children after redo: got %d, want 3", len(kids))
	}
}

func TestCreateLayer_RejectsNonInsertable(t *testing.T) {
	s, _ := testSession(t)

	_, err := s.CreateLayer(context.Background(), layer.TypeScript, s.RootID(), -1)
	if err == nil {
		t.Fatal("expected error for script layer")
	}
	if !strings.Contains(err.Error(), "not insertable") {
		t.Errorf("error: got %v", err)
	}
}

func TestDeleteLayer_UndoRestoresIdentity(t *testing.T) {
	s, mem := testSession(t)
	list := layerNamed(t, s, "List 1")
	items := s.tree.Children(list.ID)
	ctx := context.Background()

	if err := s.DeleteLayer(ctx, list.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := s.LayerCount(); got != 5 {
		t.Fatalf("layer count: got %d, want 5", got)
	}
	if strings.Contains(mustRender(t, mem), "<ul") {
		t.Error("surface still holds the list")
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := s.LayerCount(); got != 8 {
		t.Fatalf("layer count after undo: got %d, want 8", got)
	}
	for _, old := range append([]*layer.Layer{list}, items...) {
		if _, ok := s.GetLayer(old.ID); !ok {
			t.Errorf("layer %s (%s) not restored under its old id", old.ID, old.Name)
		}
	}
	restored := s.tree.Children(list.ID)
	if len(restored) != 2 || restored[0].Name != "One" || restored[1].Name != "Two" {
		t.Errorf("restored items: got %d", len(restored))
	}
	html := mustRender(t, mem)
	if !strings.Contains(html, "<ul") || !strings.Contains(html, "One") {
		t.Error("surface missing the restored list")
	}

	if _, err := s.Redo(ctx); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if got := s.LayerCount(); got != 5 {
		t.Errorf("layer count after redo: got %d, want 5", got)
	}
}

func TestSetTransform_UndoRedo(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	x := 30.0
	if err := s.SetTransform(ctx, hero.ID, layer.TransformPatch{X: &x}); err != nil {
		t.Fatalf("set transform: %v", err)
	}
	tr, err := s.GetTransform(hero.ID)
	if err != nil || tr.X != 30 {
		t.Fatalf("transform: got %+v, %v", tr, err)
	}
	if !strings.Contains(mustRender(t, mem), "translate(30px, 0px)") {
		t.Error("surface missing the transform style")
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if tr, _ := s.GetTransform(hero.ID); tr.X != 0 {
		t.Errorf("x after undo: got %g, want 0", tr.X)
	}
	if strings.Contains(mustRender(t, mem), "translate(") {
		t.Error("transform style survived undo")
	}

	if _, err := s.Redo(ctx); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if tr, _ := s.GetTransform(hero.ID); tr.X != 30 {
		t.Errorf("x after redo: got %g, want 30", tr.X)
	}
}

func TestMoveLayer_UndoRestores(t *testing.T) {
	s, _ := testSession(t)
	hero := layerNamed(t, s, "hero")
	para := layerNamed(t, s, "Intro copy")
	ctx := context.Background()

	if err := s.MoveLayer(ctx, para.ID, s.RootID(), 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if kids := s.tree.Children(s.RootID()); kids[0].ID != para.ID {
		t.Errorf("first root child: got %s, want %s", kids[0].ID, para.ID)
	}
	if kids := s.tree.Children(hero.ID); len(kids) != 1 {
		t.Errorf("hero children: got %d, want 1", len(kids))
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	para2, _ := s.GetLayer(para.ID)
	if para2.ParentID != hero.ID || para2.Index != 1 {
		t.Errorf("after undo: parent %s index %d", para2.ParentID, para2.Index)
	}
}

func TestLockedChain_BlocksAndOverrides(t *testing.T) {
	s, _ := testSession(t)
	hero := layerNamed(t, s, "hero")
	title := layerNamed(t, s, "Welcome")
	ctx := context.Background()

	if err := s.SetProperty(ctx, hero.ID, "locked", true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	err := s.SetProperty(ctx, title.ID, "name", "Blocked")
	if !errors.Is(err, layer.ErrLockedLayerMutation) {
		t.Fatalf("edit under lock: got %v", err)
	}
	if err := s.DeleteLayer(ctx, hero.ID); !errors.Is(err, layer.ErrLockedLayerMutation) {
		t.Fatalf("delete locked: got %v", err)
	}

	if err := s.SetProperty(ctx, title.ID, "name", "Forced", Override()); err != nil {
		t.Fatalf("override edit: %v", err)
	}

	// Unlocking needs no override, otherwise locks would be permanent.
	if err := s.SetProperty(ctx, hero.ID, "locked", false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.SetProperty(ctx, title.ID, "name", "Free"); err != nil {
		t.Fatalf("edit after unlock: %v", err)
	}
}

func TestSelection_Modes(t *testing.T) {
	s, _ := testSession(t)
	hero := layerNamed(t, s, "hero")
	list := layerNamed(t, s, "List 1")

	if err := s.Select(hero.ID, layer.SelectReplace); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ids := s.SelectedIDs(); len(ids) != 1 || ids[0] != hero.ID {
		t.Fatalf("selection: got %v", ids)
	}
	if err := s.Select(list.ID, layer.SelectAdd); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ids := s.SelectedIDs(); len(ids) != 2 {
		t.Fatalf("selection: got %v", ids)
	}
	if err := s.Select(hero.ID, layer.SelectToggle); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ids := s.SelectedIDs(); len(ids) != 1 || ids[0] != list.ID {
		t.Fatalf("selection after toggle: got %v", ids)
	}
	s.ClearSelection()
	if ids := s.SelectedIDs(); len(ids) != 0 {
		t.Fatalf("selection after clear: got %v", ids)
	}
}

func TestDragMove_CommitAndUndo(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	if err := s.BeginDrag(overlay.DragMove, hero.ID, overlay.HandleNone, pt(5, 5), false); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !s.DragActive() {
		t.Fatal("drag not active")
	}
	if _, err := s.UpdateDrag(pt(15, 10)); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Provisional: the tree moved, the surface did not.
	tr, _ := s.GetTransform(hero.ID)
	if tr.X != 10 || tr.Y != 5 {
		t.Fatalf("provisional transform: got %g,%g, want 10,5", tr.X, tr.Y)
	}
	if strings.Contains(mustRender(t, mem), "translate(") {
		t.Error("surface updated before commit")
	}

	if err := s.CommitDrag(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.DragActive() {
		t.Error("drag still active after commit")
	}
	if !strings.Contains(mustRender(t, mem), "translate(10px, 5px)") {
		t.Error("surface missing the committed transform")
	}

	name, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if name != "move hero" {
		t.Errorf("undo name: got %q, want move hero", name)
	}
	if tr, _ := s.GetTransform(hero.ID); tr.X != 0 || tr.Y != 0 {
		t.Errorf("transform after undo: got %g,%g", tr.X, tr.Y)
	}
	if strings.Contains(mustRender(t, mem), "translate(") {
		t.Error("transform style survived undo")
	}
}

func TestDragCancel_RestoresBase(t *testing.T) {
	s, mem := testSession(t)
	hero := layerNamed(t, s, "hero")

	if err := s.BeginDrag(overlay.DragMove, hero.ID, overlay.HandleNone, pt(0, 0), false); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := s.UpdateDrag(pt(40, 40)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.CancelDrag(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if tr, _ := s.GetTransform(hero.ID); tr.X != 0 || tr.Y != 0 {
		t.Errorf("transform after cancel: got %g,%g", tr.X, tr.Y)
	}
	if s.CanUndo() {
		t.Error("cancelled drag left a history entry")
	}
	if strings.Contains(mustRender(t, mem), "translate(") {
		t.Error("cancelled drag reached the surface")
	}
}

func TestBeginDrag_RejectsSecond(t *testing.T) {
	s, _ := testSession(t)
	hero := layerNamed(t, s, "hero")

	if err := s.BeginDrag(overlay.DragMove, hero.ID, overlay.HandleNone, pt(0, 0), false); err != nil {
		t.Fatalf("begin: %v", err)
	}
	err := s.BeginDrag(overlay.DragMove, hero.ID, overlay.HandleNone, pt(0, 0), false)
	if !errors.Is(err, ErrDragActive) {
		t.Fatalf("second begin: got %v, want ErrDragActive", err)
	}
	if err := s.CancelDrag(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.UpdateDrag(pt(1, 1)); !errors.Is(err, ErrNoDrag) {
		t.Fatalf("update without drag: got %v, want ErrNoDrag", err)
	}
}

func TestUndoRedo_EmptyHistory(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	if _, err := s.Undo(ctx); !errors.Is(err, layer.ErrNothingToUndo) {
		t.Fatalf("undo: got %v", err)
	}
	if _, err := s.Redo(ctx); !errors.Is(err, layer.ErrNothingToRedo) {
		t.Fatalf("redo: got %v", err)
	}
}

func TestCamera_Basics(t *testing.T) {
	s, _ := testSession(t)

	s.SetZoom(2)
	if zoom, _, _ := s.CameraState(); zoom != 2 {
		t.Errorf("zoom: got %g, want 2", zoom)
	}
	s.SetPan(30, 40)
	if _, panX, panY := s.CameraState(); panX != 30 || panY != 40 {
		t.Errorf("pan: got %g,%g, want 30,40", panX, panY)
	}
	s.PanBy(5, -10)
	if _, panX, panY := s.CameraState(); panX != 35 || panY != 30 {
		t.Errorf("pan after panBy: got %g,%g, want 35,30", panX, panY)
	}

	world := pt(7, 9)
	back := s.ScreenToWorld(s.WorldToScreen(world))
	if back.X != world.X || back.Y != world.Y {
		t.Errorf("roundtrip: got %g,%g, want %g,%g", back.X, back.Y, world.X, world.Y)
	}
}
