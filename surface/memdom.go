package surface

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MemDOM is an in-process Surface backed by an x/net/html document tree.
// It performs no layout: node bounds come from SetNodeBounds. The exported
// mutators stand in for edits the canvas did not originate, like
// script-driven changes in a real browser; they report records into the
// watched queue unless the surface is suspended.
type MemDOM struct {
	mu      sync.Mutex
	doc     *html.Node
	body    *html.Node
	refs    map[string]*html.Node
	byNode  map[*html.Node]string
	bounds  map[string]Bounds
	nextRef int
	queue   *Queue
	gate    Gate
	closed  bool
}

var _ Surface = (*MemDOM)(nil)

// NewMemDOM parses src as an HTML document. Fragments are wrapped into a
// full document by the parser.
func NewMemDOM(src string) (*MemDOM, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("surface: parse document: %w", err)
	}
	m := &MemDOM{}
	m.rebindLocked(doc)
	return m, nil
}

// Snapshot returns the document body subtree. The canvas maps the body to
// its layer root.
func (m *MemDOM) Snapshot(ctx context.Context) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("surface: snapshot: surface closed")
	}
	return m.snapshotLocked(m.body), nil
}

// SnapshotFrom returns the subtree rooted at ref.
func (m *MemDOM) SnapshotFrom(ctx context.Context, ref string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("surface: snapshot from %s: surface closed", ref)
	}
	n, err := m.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	return m.snapshotLocked(n), nil
}

// Apply performs reconciler-originated writes. The whole batch runs under
// one suspension so none of it is reported back as observed change.
func (m *MemDOM) Apply(ctx context.Context, writes []Write) error {
	m.gate.Suspend()
	defer m.gate.Resume()

	for _, w := range writes {
		if err := m.applyOne(w); err != nil {
			return fmt.Errorf("surface: apply %s: %w", w.Op, err)
		}
	}
	return nil
}

func (m *MemDOM) applyOne(w Write) error {
	switch w.Op {
	case WriteSetAttr:
		return m.SetAttr(w.Ref, w.Name, w.Value)
	case WriteDelAttr:
		return m.RemoveAttr(w.Ref, w.Name)
	case WriteSetText:
		return m.SetText(w.Ref, w.Value)
	case WriteSetStyle:
		return m.SetStyleProp(w.Ref, w.Name, w.Value)
	case WriteInsert:
		_, err := m.InsertHTML(w.ParentRef, w.Index, w.HTML, w.NewRef)
		return err
	case WriteRemove:
		return m.Remove(w.Ref)
	case WriteMove:
		return m.MoveNode(w.Ref, w.ParentRef, w.Index)
	default:
		return fmt.Errorf("unknown write op %q", w.Op)
	}
}

// Watch binds q as the record sink until ctx is cancelled or the surface
// is closed.
func (m *MemDOM) Watch(ctx context.Context, q *Queue) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("surface: watch: surface closed")
	}
	m.queue = q
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.queue == q {
			m.queue = nil
		}
		m.mu.Unlock()
	}()
	return nil
}

func (m *MemDOM) Suspend() { m.gate.Suspend() }
func (m *MemDOM) Resume()  { m.gate.Resume() }

func (m *MemDOM) Close() error {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	return nil
}

// SetAttr sets an attribute on the node behind ref.
func (m *MemDOM) SetAttr(ref, name, value string) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	old, _ := attrValue(n, name)
	setAttrValue(n, name, value)
	rec := Record{Op: OpAttr, Ref: ref, Path: nodePath(n), Name: name, Value: value, OldValue: old}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(rec)
	}
	return nil
}

// RemoveAttr deletes an attribute from the node behind ref.
func (m *MemDOM) RemoveAttr(ref, name string) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	old, _ := attrValue(n, name)
	delAttrValue(n, name)
	rec := Record{Op: OpAttrDel, Ref: ref, Path: nodePath(n), Name: name, OldValue: old}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(rec)
	}
	return nil
}

// SetText replaces the direct text of the node behind ref, leaving child
// elements in place.
func (m *MemDOM) SetText(ref, text string) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	old := directText(n)
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			n.RemoveChild(c)
		}
		c = next
	}
	if text != "" {
		tn := &html.Node{Type: html.TextNode, Data: text}
		n.InsertBefore(tn, n.FirstChild)
	}
	rec := Record{Op: OpText, Ref: ref, Path: nodePath(n) + "/text()", Value: text, OldValue: old}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(rec)
	}
	return nil
}

// SetStyleProp sets one inline style property on the node behind ref.
func (m *MemDOM) SetStyleProp(ref, prop, value string) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	old, _ := attrValue(n, "style")
	style := parseStyle(old)
	if value == "" {
		delete(style, prop)
	} else {
		style[prop] = value
	}
	serialized := serializeStyle(style)
	if serialized == "" {
		delAttrValue(n, "style")
	} else {
		setAttrValue(n, "style", serialized)
	}
	rec := Record{Op: OpAttr, Ref: ref, Path: nodePath(n), Name: "style", Value: serialized, OldValue: old}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(rec)
	}
	return nil
}

// InsertHTML parses fragment in the context of the parent node and inserts
// the result at index among the parent's modeled children. When newRef is
// non-empty the first inserted element is bound to it; otherwise a fresh
// ref is minted. Returns the ref of the first inserted element.
func (m *MemDOM) InsertHTML(parentRef string, index int, fragment, newRef string) (string, error) {
	m.mu.Lock()
	parent, err := m.resolveLocked(parentRef)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	var recs []Record
	first := ""
	at := index
	for _, n := range nodes {
		if n.Type != html.ElementNode && n.Type != html.CommentNode {
			if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
				continue
			}
			insertChildAt(parent, n, at)
			continue
		}
		insertChildAt(parent, n, at)
		ref := ""
		if first == "" && newRef != "" && n.Type == html.ElementNode {
			m.bindLocked(n, newRef)
			ref = newRef
		} else {
			ref = m.mintLocked(n)
		}
		if first == "" && n.Type == html.ElementNode {
			first = ref
		}
		m.bindSubtreeLocked(n)
		recs = append(recs, Record{
			Op:        OpInsert,
			Ref:       ref,
			Path:      nodePath(n),
			ParentRef: parentRef,
			Index:     modeledIndex(n),
			Tag:       nodeTag(n),
			Node:      m.snapshotLocked(n),
		})
		at = modeledIndex(n) + 1
	}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		for _, rec := range recs {
			q.Add(rec)
		}
	}
	return first, nil
}

// Remove detaches the node behind ref and releases the subtree's refs.
func (m *MemDOM) Remove(ref string) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	rec := Record{Op: OpRemove, Ref: ref, Path: nodePath(n), ParentRef: m.byNode[n.Parent]}
	n.Parent.RemoveChild(n)
	m.releaseSubtreeLocked(n)
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(rec)
	}
	return nil
}

// MoveNode reparents the node behind ref. The node keeps its ref; observed
// output is a remove followed by an insert of the same ref, which the
// queue resolves back into a move.
func (m *MemDOM) MoveNode(ref, newParentRef string, index int) error {
	m.mu.Lock()
	n, err := m.resolveLocked(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	parent, err := m.resolveLocked(newParentRef)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for a := parent; a != nil; a = a.Parent {
		if a == n {
			m.mu.Unlock()
			return fmt.Errorf("surface: move %s into own subtree", ref)
		}
	}
	oldPath := nodePath(n)
	n.Parent.RemoveChild(n)
	insertChildAt(parent, n, index)

	recs := []Record{
		{Op: OpRemove, Ref: ref, Path: oldPath},
		{
			Op:        OpInsert,
			Ref:       ref,
			Path:      nodePath(n),
			ParentRef: newParentRef,
			Index:     modeledIndex(n),
			Tag:       nodeTag(n),
			Node:      m.snapshotLocked(n),
		},
	}
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		for _, rec := range recs {
			q.Add(rec)
		}
	}
	return nil
}

// LoadHTML replaces the whole document. Every previously minted ref is
// dead afterwards; watchers receive a single reset record.
func (m *MemDOM) LoadHTML(src string) error {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("surface: parse document: %w", err)
	}
	m.mu.Lock()
	m.rebindLocked(doc)
	q := m.sinkLocked()
	m.mu.Unlock()
	if q != nil {
		q.Add(Record{Op: OpReset})
	}
	return nil
}

// SetNodeBounds records a layout box for ref, visible in later snapshots.
func (m *MemDOM) SetNodeBounds(ref string, b Bounds) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.resolveLocked(ref); err != nil {
		return err
	}
	m.bounds[ref] = b
	return nil
}

// Render serialises the current document back to HTML.
func (m *MemDOM) Render() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf strings.Builder
	if err := html.Render(&buf, m.doc); err != nil {
		return "", fmt.Errorf("surface: render: %w", err)
	}
	return buf.String(), nil
}

// BodyRef returns the ref of the document body.
func (m *MemDOM) BodyRef() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byNode[m.body]
}

func (m *MemDOM) rebindLocked(doc *html.Node) {
	m.doc = doc
	m.refs = make(map[string]*html.Node)
	m.byNode = make(map[*html.Node]string)
	m.bounds = make(map[string]Bounds)
	m.body = findBody(doc)
	if m.body == nil {
		m.body = doc
	}
	m.bindSubtreeLocked(doc)
}

func (m *MemDOM) bindSubtreeLocked(n *html.Node) {
	if n.Type == html.ElementNode || n.Type == html.CommentNode {
		m.mintLocked(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.bindSubtreeLocked(c)
	}
}

func (m *MemDOM) releaseSubtreeLocked(n *html.Node) {
	if ref, ok := m.byNode[n]; ok {
		delete(m.refs, ref)
		delete(m.byNode, n)
		delete(m.bounds, ref)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.releaseSubtreeLocked(c)
	}
}

func (m *MemDOM) mintLocked(n *html.Node) string {
	if ref, ok := m.byNode[n]; ok {
		return ref
	}
	m.nextRef++
	ref := "m" + strconv.Itoa(m.nextRef)
	m.bindLocked(n, ref)
	return ref
}

func (m *MemDOM) bindLocked(n *html.Node, ref string) {
	if old, ok := m.byNode[n]; ok {
		delete(m.refs, old)
	}
	m.refs[ref] = n
	m.byNode[n] = ref
}

func (m *MemDOM) resolveLocked(ref string) (*html.Node, error) {
	n, ok := m.refs[ref]
	if !ok {
		return nil, fmt.Errorf("surface: ref %s: %w", ref, ErrDetached)
	}
	for a := n; a != nil; a = a.Parent {
		if a == m.doc {
			return n, nil
		}
	}
	return nil, fmt.Errorf("surface: ref %s: %w", ref, ErrDetached)
}

func (m *MemDOM) sinkLocked() *Queue {
	if m.closed || m.queue == nil || m.gate.Suspended() {
		return nil
	}
	return m.queue
}

func (m *MemDOM) snapshotLocked(n *html.Node) *Node {
	out := &Node{
		Ref:  m.mintLocked(n),
		Path: nodePath(n),
		Tag:  nodeTag(n),
	}
	switch n.Type {
	case html.CommentNode:
		out.NodeType = NodeComment
		out.Text = n.Data
		return out
	default:
		out.NodeType = NodeElement
	}
	if len(n.Attr) > 0 {
		out.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			out.Attrs[a.Key] = a.Val
		}
	}
	if style, ok := attrValue(n, "style"); ok {
		out.Style = parseStyle(style)
	}
	out.Text = directText(n)
	if b, ok := m.bounds[m.byNode[n]]; ok {
		bb := b
		out.Bounds = &bb
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || c.Type == html.CommentNode {
			out.Children = append(out.Children, m.snapshotLocked(c))
		}
	}
	return out
}

// nodePath computes a selector-like locator by walking up the tree,
// indexing same-tag element siblings as tag[n].
func nodePath(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.DocumentNode:
		return ""
	case html.TextNode:
		return nodePath(n.Parent) + "/text()"
	case html.CommentNode:
		return nodePath(n.Parent) + "/comment()"
	case html.DoctypeNode:
		return nodePath(n.Parent)
	}

	name := strings.ToLower(n.Data)
	switch n.DataAtom {
	case atom.Html:
		return "/html"
	case atom.Head:
		return "/html/head"
	case atom.Body:
		return "/html/body"
	}
	parentPath := nodePath(n.Parent)
	if n.Parent == nil {
		return parentPath + "/" + name
	}

	idx, total := 1, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != name {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, name, idx)
	}
	return parentPath + "/" + name
}

func nodeTag(n *html.Node) string {
	if n.Type == html.CommentNode {
		return "#comment"
	}
	return strings.ToLower(n.Data)
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return body
}

// insertChildAt inserts n at index among parent's modeled children, where
// index counts element and comment nodes only. Out-of-range appends.
func insertChildAt(parent, n *html.Node, index int) {
	if index < 0 {
		index = 0
	}
	seen := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode && c.Type != html.CommentNode {
			continue
		}
		if seen == index {
			parent.InsertBefore(n, c)
			return
		}
		seen++
	}
	parent.AppendChild(n)
}

// modeledIndex returns n's position among its parent's element and comment
// children.
func modeledIndex(n *html.Node) int {
	if n.Parent == nil {
		return 0
	}
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c == n {
			return idx
		}
		if c.Type == html.ElementNode || c.Type == html.CommentNode {
			idx++
		}
	}
	return idx
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttrValue(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func delAttrValue(n *html.Node, name string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// directText joins the node's direct text children. Comment nodes return
// their data.
func directText(n *html.Node) string {
	if n.Type == html.CommentNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseStyle splits an inline style attribute into property/value pairs.
func parseStyle(s string) map[string]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		val = strings.TrimSpace(val)
		if prop != "" && val != "" {
			out[prop] = val
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func serializeStyle(style map[string]string) string {
	if len(style) == 0 {
		return ""
	}
	props := make([]string, 0, len(style))
	for p := range style {
		props = append(props, p)
	}
	// Deterministic order keeps records and round-trips stable.
	slices.Sort(props)
	var sb strings.Builder
	for _, p := range props {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(p)
		sb.WriteString(": ")
		sb.WriteString(style[p])
	}
	return sb.String()
}
