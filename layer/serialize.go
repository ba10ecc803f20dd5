package layer

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Serialized is the interchange form of one layer subtree, consumed by
// persistence and export collaborators. Bounds and external refs are
// deliberately absent: bounds are renderer-derived and refs are session
// scoped.
type Serialized struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	Name          string            `json:"name"`
	ContentPath   string            `json:"contentPath,omitempty"`
	Visible       bool              `json:"visible"`
	Locked        bool              `json:"locked"`
	Collapsed     bool              `json:"collapsed"`
	Transform     Transform         `json:"transform"`
	ComputedStyle map[string]string `json:"computedStyle,omitempty"`
	Content       Content           `json:"content"`
	Children      []*Serialized     `json:"children,omitempty"`
}

// Serialize renders the whole tree in interchange form.
func (t *Tree) Serialize() *Serialized {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.serializeLocked(t.nodes[t.rootID])
}

// SerializeFrom renders the subtree rooted at the given layer.
func (t *Tree) SerializeFrom(id string) (*Serialized, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("layer: serialize %s: %w", id, ErrOrphanReference)
	}
	return t.serializeLocked(l), nil
}

func (t *Tree) serializeLocked(l *Layer) *Serialized {
	s := &Serialized{
		ID:          l.ID,
		Type:        l.Type,
		Name:        l.Name,
		ContentPath: l.ContentPath,
		Visible:     l.Visible,
		Locked:      l.Locked,
		Collapsed:   l.Collapsed,
		Transform:   l.Transform,
		Content:     l.Content,
	}
	if l.ComputedStyle != nil {
		s.ComputedStyle = maps.Clone(l.ComputedStyle)
	}
	for _, cid := range l.ChildIDs {
		s.Children = append(s.Children, t.serializeLocked(t.nodes[cid]))
	}
	return s
}

// Marshal encodes the whole tree as interchange JSON.
func Marshal(t *Tree) ([]byte, error) {
	return json.Marshal(t.Serialize())
}

// Unmarshal rebuilds a tree from interchange JSON. The result is isomorphic
// to the serialized tree: same structure and property values, fresh but
// internally consistent ids. No events are published while rebuilding.
func Unmarshal(data []byte, opts ...Option) (*Tree, error) {
	var s Serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("layer: unmarshal: %w", err)
	}
	if s.Type != TypeRoot {
		return nil, fmt.Errorf("layer: unmarshal: root has type %q, want %q", s.Type, TypeRoot)
	}

	t := NewTree(opts...)
	t.mu.Lock()
	defer t.mu.Unlock()

	root := t.nodes[t.rootID]
	root.Name = s.Name
	root.Visible = s.Visible
	root.Locked = s.Locked
	root.Collapsed = s.Collapsed
	root.Transform = s.Transform
	root.Content = s.Content
	if s.ComputedStyle != nil {
		root.ComputedStyle = maps.Clone(s.ComputedStyle)
	}
	if s.ContentPath != "" {
		root.ContentPath = s.ContentPath
		t.byPath[s.ContentPath] = root.ID
	}

	for _, child := range s.Children {
		if err := t.importNodeLocked(child, root); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) importNodeLocked(s *Serialized, parent *Layer) error {
	l := layerFromSerialized(s)
	if err := t.attachLocked(l, parent, -1); err != nil {
		return fmt.Errorf("layer: import %q: %w", s.Name, err)
	}
	for _, child := range s.Children {
		if err := t.importNodeLocked(child, l); err != nil {
			return err
		}
	}
	return nil
}

// Import attaches a serialized subtree under parentID with fresh ids,
// publishing created events in pre-order. Used for paste and template
// insertion.
func (t *Tree) Import(parentID string, s *Serialized, index int) (*Layer, error) {
	if s == nil {
		return nil, fmt.Errorf("layer: import: nil subtree")
	}
	if s.Type == TypeRoot {
		return nil, fmt.Errorf("layer: import: cannot import a root under %s", parentID)
	}

	top := layerFromSerialized(s)
	if err := t.Attach(top, parentID, index); err != nil {
		return nil, err
	}
	for _, child := range s.Children {
		if _, err := t.Import(top.ID, child, -1); err != nil {
			return nil, err
		}
	}
	snap, _ := t.Get(top.ID)
	return snap, nil
}

func layerFromSerialized(s *Serialized) *Layer {
	l := &Layer{
		Type:        s.Type,
		Name:        s.Name,
		ContentPath: s.ContentPath,
		Visible:     s.Visible,
		Locked:      s.Locked,
		Collapsed:   s.Collapsed,
		Transform:   s.Transform,
		Content:     s.Content,
	}
	if s.ComputedStyle != nil {
		l.ComputedStyle = maps.Clone(s.ComputedStyle)
	}
	return l
}
