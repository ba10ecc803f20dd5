// Package surface defines the contract between the canvas and the external
// rendering surface: the document snapshot model, the mutation records a
// surface reports, the writes the reconciler mirrors back, and the
// coalescing queue that batches records per reconciliation tick.
package surface

// Op is the kind of change a surface reports.
type Op string

const (
	OpInsert  Op = "insert"   // node added (record carries the subtree snapshot)
	OpRemove  Op = "remove"   // node removed
	OpText    Op = "text"     // text content changed
	OpAttr    Op = "attr"     // attribute set or changed
	OpAttrDel Op = "attr_del" // attribute removed
	OpReset   Op = "reset"    // whole document replaced; rebuild everything
)

// Record is a single observed change on the rendering surface. Ref is the
// opaque per-node handle a surface mints once per live node; Path is the
// selector-like locator used for re-resolution when the ref has gone stale.
type Record struct {
	Op        Op     `json:"op"`
	Ref       string `json:"ref,omitempty"`
	Path      string `json:"path,omitempty"`
	ParentRef string `json:"parent_ref,omitempty"`
	Index     int    `json:"index,omitempty"` // sibling position for inserts
	Tag       string `json:"tag,omitempty"`
	Name      string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value     string `json:"value,omitempty"`     // new attribute or text value
	OldValue  string `json:"old_value,omitempty"` // previous value
	Node      *Node  `json:"node,omitempty"`      // inserted subtree snapshot
}

// Batch is the unit the reconciler drains per tick: every record collected
// since the previous flush, coalesced, with removals ordered last.
type Batch struct {
	ID        string   `json:"id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per queue
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}
