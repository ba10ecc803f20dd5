package canvas

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/domcanvas/canvas/internal/journal"
	"github.com/hazyhaar/domcanvas/dbopen"
	"github.com/hazyhaar/domcanvas/surface"
)

// journalSession opens a session journaled into an in-memory database.
func journalSession(t *testing.T) (*Session, *journal.Journal) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(journal.Schema))
	j := journal.New(db, nil)

	mem, err := surface.NewMemDOM(testPage)
	if err != nil {
		t.Fatalf("memdom: %v", err)
	}
	s, err := Open(context.Background(), mem, DefaultConfig(), withJournal(j))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, j
}

func TestJournal_RecordsCommands(t *testing.T) {
	s, j := journalSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	if err := s.SetProperty(ctx, hero.ID, "name", "Renamed"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if n, err := j.CountCommands(ctx); err != nil || n != 1 {
		t.Fatalf("count after edit: got %d, %v", n, err)
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if n, _ := j.CountCommands(ctx); n != 2 {
		t.Fatalf("count after undo: got %d, want 2", n)
	}

	entries, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != "undo" {
		t.Fatalf("latest entry: got %+v", entries)
	}
	if entries[0].Name == "" {
		t.Error("entry name empty")
	}
}

func TestJournal_Snapshot(t *testing.T) {
	s, j := journalSession(t)
	ctx := context.Background()

	s.snapshotJournal(ctx)

	snap, err := j.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("no snapshot written")
	}
	if snap.LayerCount != 8 {
		t.Errorf("layer count: got %d, want 8", snap.LayerCount)
	}
	if !strings.Contains(snap.Tree, "hero") {
		t.Error("snapshot tree missing layer data")
	}
}

func TestLogEvents_SubscribesAllTopics(t *testing.T) {
	s, _ := testSession(t)
	hero := layerNamed(t, s, "hero")
	ctx := context.Background()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	unsub := LogEvents(s.Bus(), logger)

	if err := s.SetProperty(ctx, hero.ID, "name", "Renamed"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if !strings.Contains(buf.String(), "tree event") {
		t.Errorf("no event logged: %q", buf.String())
	}

	unsub()
	buf.Reset()
	if err := s.SetProperty(ctx, hero.ID, "name", "Again"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unsubscribed logger still receiving: %q", buf.String())
	}
}
