package surface

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/domcanvas/idgen"
)

// DefaultQueueMax bounds the pending record buffer. Past the bound the
// buffer collapses to a single reset record, forcing a full rebuild instead
// of replaying an unbounded backlog.
const DefaultQueueMax = 4096

// Queue accumulates surface records between reconciliation ticks. Flush
// coalesces runs of attribute and text records, resolves remove+insert
// pairs for the same ref into plain inserts, orders removals last and
// returns everything as one Batch.
type Queue struct {
	mu      sync.Mutex
	pending []Record
	max     int
	seq     atomic.Uint64
	gen     idgen.Generator
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueMax overrides the pending buffer bound.
func WithQueueMax(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.max = n
		}
	}
}

// WithBatchIDGenerator overrides the batch id generator.
func WithBatchIDGenerator(gen idgen.Generator) QueueOption {
	return func(q *Queue) { q.gen = gen }
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		max: DefaultQueueMax,
		gen: idgen.Prefixed("bat_", idgen.UUIDv7()),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add appends a record to the pending buffer. On overflow the buffer
// collapses to one reset record.
func (q *Queue) Add(rec Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec.Op == OpReset {
		q.pending = []Record{rec}
		return
	}
	if len(q.pending) == 1 && q.pending[0].Op == OpReset {
		// Everything is superseded by the pending reset.
		return
	}
	q.pending = append(q.pending, rec)
	if len(q.pending) > q.max {
		q.pending = []Record{{Op: OpReset}}
	}
}

// Len returns the number of pending records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush drains the pending buffer into a Batch, or nil when nothing is
// pending.
func (q *Queue) Flush() *Batch {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return &Batch{
		ID:        q.gen(),
		Seq:       q.seq.Add(1),
		Records:   removalsLast(resolveMoves(coalesce(pending))),
		Timestamp: time.Now().UnixMilli(),
	}
}

// coalesce collapses consecutive attribute records for the same (ref, name)
// and consecutive text records for the same ref, keeping the last value and
// the first old value. Structural records never coalesce.
func coalesce(records []Record) []Record {
	if len(records) <= 1 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if len(out) > 0 {
			last := &out[len(out)-1]
			switch {
			case rec.Op == OpAttr && last.Op == OpAttr && rec.Ref == last.Ref && rec.Name == last.Name:
				last.Value = rec.Value
				continue
			case rec.Op == OpText && last.Op == OpText && rec.Ref == last.Ref:
				last.Value = rec.Value
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// resolveMoves drops a remove whose ref is re-inserted later in the same
// batch: that pair is a move, and the insert alone carries the target
// position. Without this, ordering removals last would delete the moved
// node after its re-insert.
func resolveMoves(records []Record) []Record {
	reinserted := make(map[string]bool)
	for _, rec := range records {
		if rec.Op == OpInsert && rec.Ref != "" {
			reinserted[rec.Ref] = true
		}
	}
	if len(reinserted) == 0 {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Op == OpRemove && reinserted[rec.Ref] {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// removalsLast stable-partitions removal records behind everything else, so
// within one tick a node is never referenced after its removal.
func removalsLast(records []Record) []Record {
	removes := 0
	for _, rec := range records {
		if rec.Op == OpRemove {
			removes++
		}
	}
	if removes == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Op != OpRemove {
			out = append(out, rec)
		}
	}
	for _, rec := range records {
		if rec.Op == OpRemove {
			out = append(out, rec)
		}
	}
	return out
}
