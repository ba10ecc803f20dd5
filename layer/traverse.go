package layer

import "iter"

// Order selects a traversal order.
type Order int

const (
	PreOrder Order = iota
	PostOrder
	BreadthFirst
)

// Walk returns a lazy, finite, restartable sequence over the whole tree in
// the given order. Each range over the sequence re-walks the current tree
// state. Yielded layers are snapshots.
func (t *Tree) Walk(order Order) iter.Seq[*Layer] {
	return t.WalkFrom("", order)
}

// WalkFrom is Walk rooted at the given layer; an empty id means the tree
// root. A missing id yields nothing. Nodes deleted between the order being
// fixed and their turn to be yielded are skipped.
func (t *Tree) WalkFrom(id string, order Order) iter.Seq[*Layer] {
	return func(yield func(*Layer) bool) {
		t.mu.RLock()
		start := id
		if start == "" {
			start = t.rootID
		}
		root, ok := t.nodes[start]
		if !ok {
			t.mu.RUnlock()
			return
		}
		ids := t.orderedIDsLocked(root, order)
		t.mu.RUnlock()

		for _, nid := range ids {
			l, ok := t.Get(nid)
			if !ok {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

func (t *Tree) orderedIDsLocked(root *Layer, order Order) []string {
	var ids []string
	switch order {
	case PostOrder:
		var walk func(l *Layer)
		walk = func(l *Layer) {
			for _, cid := range l.ChildIDs {
				walk(t.nodes[cid])
			}
			ids = append(ids, l.ID)
		}
		walk(root)
	case BreadthFirst:
		queue := []*Layer{root}
		for len(queue) > 0 {
			l := queue[0]
			queue = queue[1:]
			ids = append(ids, l.ID)
			for _, cid := range l.ChildIDs {
				queue = append(queue, t.nodes[cid])
			}
		}
	default:
		var walk func(l *Layer)
		walk = func(l *Layer) {
			ids = append(ids, l.ID)
			for _, cid := range l.ChildIDs {
				walk(t.nodes[cid])
			}
		}
		walk(root)
	}
	return ids
}
