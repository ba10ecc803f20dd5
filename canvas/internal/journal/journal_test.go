package journal

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domcanvas/dbopen"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return New(db, nil)
}

func TestAppendAndRecent(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	entries := []Entry{
		{Kind: "commit", Name: "create text", LayerID: "lyr-1", Payload: `{"op":"create"}`, CreatedAt: 100},
		{Kind: "commit", Name: "move hero", LayerID: "lyr-2", Payload: `{"op":"move"}`, CreatedAt: 200},
		{Kind: "undo", Name: "move hero", CreatedAt: 300},
	}
	for _, e := range entries {
		if err := j.Append(ctx, e); err != nil {
			t.Fatalf("append %q: %v", e.Name, err)
		}
	}

	n, err := j.CountCommands(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count: got %d, want 3", n)
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent: got %d entries, want 2", len(got))
	}
	if got[0].Kind != "undo" {
		t.Errorf("newest kind: got %q, want %q", got[0].Kind, "undo")
	}
	if got[1].Name != "move hero" || got[1].LayerID != "lyr-2" {
		t.Errorf("second entry: got %q/%q, want move hero/lyr-2", got[1].Name, got[1].LayerID)
	}
	if got[0].ID == "" {
		t.Error("entry id should be generated on append")
	}
}

func TestSnapshotRetention(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	for i := range keepSnapshots + 5 {
		if err := j.Snapshot(ctx, []byte(`{"layers":[]}`), i); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
	}

	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if n != keepSnapshots {
		t.Errorf("retained snapshots: got %d, want %d", n, keepSnapshots)
	}

	latest, err := j.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil {
		t.Fatal("latest: got nil")
	}
	if latest.LayerCount != keepSnapshots+4 {
		t.Errorf("latest layer_count: got %d, want %d", latest.LayerCount, keepSnapshots+4)
	}
}

func TestLatestSnapshotEmpty(t *testing.T) {
	j := testJournal(t)

	s, err := j.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if s != nil {
		t.Fatalf("latest on empty journal: got %+v, want nil", s)
	}
}
