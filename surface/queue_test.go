package surface

import (
	"strings"
	"testing"
)

func TestQueueFlushEmpty(t *testing.T) {
	q := NewQueue()
	if b := q.Flush(); b != nil {
		t.Fatalf("expected nil batch, got %+v", b)
	}
}

func TestQueueCoalescesAttrRuns(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "a", OldValue: "orig"})
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "b", OldValue: "a"})
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "c", OldValue: "b"})

	b := q.Flush()
	if b == nil || len(b.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", b)
	}
	rec := b.Records[0]
	if rec.Value != "c" {
		t.Errorf("value = %q, want %q", rec.Value, "c")
	}
	if rec.OldValue != "orig" {
		t.Errorf("old value = %q, want %q", rec.OldValue, "orig")
	}
}

func TestQueueKeepsDistinctAttrs(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "a"})
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "id", Value: "x"})
	q.Add(Record{Op: OpAttr, Ref: "r2", Name: "class", Value: "b"})

	b := q.Flush()
	if len(b.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(b.Records))
	}
}

func TestQueueCoalescesTextRuns(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpText, Ref: "r1", Value: "h", OldValue: ""})
	q.Add(Record{Op: OpText, Ref: "r1", Value: "he", OldValue: "h"})
	q.Add(Record{Op: OpText, Ref: "r1", Value: "hello", OldValue: "he"})

	b := q.Flush()
	if len(b.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(b.Records))
	}
	if got := b.Records[0].Value; got != "hello" {
		t.Errorf("value = %q, want %q", got, "hello")
	}
	if got := b.Records[0].OldValue; got != "" {
		t.Errorf("old value = %q, want empty", got)
	}
}

func TestQueueStructuralRecordsNeverCoalesce(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpInsert, Ref: "r1", ParentRef: "p"})
	q.Add(Record{Op: OpInsert, Ref: "r2", ParentRef: "p"})

	b := q.Flush()
	if len(b.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(b.Records))
	}
}

func TestQueueOrdersRemovalsLast(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpRemove, Ref: "r1"})
	q.Add(Record{Op: OpAttr, Ref: "r2", Name: "class", Value: "a"})
	q.Add(Record{Op: OpInsert, Ref: "r3", ParentRef: "p"})
	q.Add(Record{Op: OpRemove, Ref: "r4"})

	b := q.Flush()
	want := []Op{OpAttr, OpInsert, OpRemove, OpRemove}
	if len(b.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(b.Records))
	}
	for i, rec := range b.Records {
		if rec.Op != want[i] {
			t.Errorf("record %d op = %s, want %s", i, rec.Op, want[i])
		}
	}
	// Relative order inside each partition is preserved.
	if b.Records[2].Ref != "r1" || b.Records[3].Ref != "r4" {
		t.Errorf("removal order = %s, %s, want r1, r4", b.Records[2].Ref, b.Records[3].Ref)
	}
}

func TestQueueResolvesMoves(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpRemove, Ref: "r1"})
	q.Add(Record{Op: OpAttr, Ref: "r2", Name: "class", Value: "a"})
	q.Add(Record{Op: OpInsert, Ref: "r1", ParentRef: "p2", Index: 3})

	b := q.Flush()
	if len(b.Records) != 2 {
		t.Fatalf("expected 2 records, got %+v", b.Records)
	}
	for _, rec := range b.Records {
		if rec.Op == OpRemove {
			t.Errorf("remove for re-inserted ref survived flush: %+v", rec)
		}
	}
}

func TestQueueOverflowCollapsesToReset(t *testing.T) {
	q := NewQueue(WithQueueMax(3))
	for i := 0; i < 5; i++ {
		q.Add(Record{Op: OpInsert, Ref: "r", ParentRef: "p", Index: i})
	}

	b := q.Flush()
	if len(b.Records) != 1 || b.Records[0].Op != OpReset {
		t.Fatalf("expected single reset record, got %+v", b.Records)
	}
}

func TestQueueResetSupersedesLaterRecords(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "a"})
	q.Add(Record{Op: OpReset})
	q.Add(Record{Op: OpAttr, Ref: "r1", Name: "class", Value: "b"})

	b := q.Flush()
	if len(b.Records) != 1 || b.Records[0].Op != OpReset {
		t.Fatalf("expected single reset record, got %+v", b.Records)
	}
}

func TestQueueBatchMetadata(t *testing.T) {
	q := NewQueue()
	q.Add(Record{Op: OpText, Ref: "r1", Value: "a"})
	first := q.Flush()
	q.Add(Record{Op: OpText, Ref: "r1", Value: "b"})
	second := q.Flush()

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.ID == second.ID {
		t.Errorf("batch ids not unique: %s", first.ID)
	}
	if !strings.HasPrefix(first.ID, "bat_") {
		t.Errorf("batch id = %q, want bat_ prefix", first.ID)
	}
	if first.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}
