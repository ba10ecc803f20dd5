package layer

import "errors"

// Rejected-operation outcomes. Every mutating Tree method returns one of
// these (possibly wrapped) when it refuses an operation; the tree is left
// unchanged and the invariants hold.
var (
	// ErrOrphanReference means a referenced parent or child id does not
	// resolve to a node in the tree.
	ErrOrphanReference = errors.New("layer: orphan reference")

	// ErrCycleDetected means a move would reparent a node into its own
	// subtree.
	ErrCycleDetected = errors.New("layer: move would create a cycle")

	// ErrDuplicateID means a node with the given id is already present.
	ErrDuplicateID = errors.New("layer: duplicate id")

	// ErrDetachedExternalNode means a layer's external ref no longer
	// resolves to a live node on the rendering surface.
	ErrDetachedExternalNode = errors.New("layer: external node detached")

	// ErrLockedLayerMutation means a direct edit targeted a locked layer
	// (or a descendant of one) without the override flag.
	ErrLockedLayerMutation = errors.New("layer: layer is locked")

	// ErrInvalidMove means a move was structurally invalid for a reason
	// other than a cycle (bad index, moving the root, no-op parent).
	ErrInvalidMove = errors.New("layer: invalid move")
)

// Reason maps an error to its stable machine-readable reason code, or ""
// when the error is not one of the rejected-operation kinds. Callers report
// the code alongside the no-op outcome.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrOrphanReference):
		return "ORPHAN_REFERENCE"
	case errors.Is(err, ErrCycleDetected):
		return "CYCLE_DETECTED"
	case errors.Is(err, ErrDuplicateID):
		return "DUPLICATE_ID"
	case errors.Is(err, ErrDetachedExternalNode):
		return "DETACHED_EXTERNAL_NODE"
	case errors.Is(err, ErrLockedLayerMutation):
		return "LOCKED_LAYER_MUTATION"
	case errors.Is(err, ErrInvalidMove):
		return "INVALID_MOVE"
	}
	return ""
}
