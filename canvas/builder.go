package canvas

import (
	"maps"
	"strconv"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/surface"
)

// tagTypes maps element tags to layer types. Unknown tags become
// containers; custom elements (dash in the tag) become components.
var tagTypes = map[string]layer.Type{
	"p": layer.TypeText, "h1": layer.TypeText, "h2": layer.TypeText,
	"h3": layer.TypeText, "h4": layer.TypeText, "h5": layer.TypeText,
	"h6": layer.TypeText, "span": layer.TypeText, "a": layer.TypeText,
	"label": layer.TypeText, "blockquote": layer.TypeText,
	"pre": layer.TypeText, "code": layer.TypeText, "em": layer.TypeText,
	"strong": layer.TypeText, "small": layer.TypeText,

	"img": layer.TypeImage, "picture": layer.TypeImage,

	"input": layer.TypeInput, "textarea": layer.TypeInput,
	"select": layer.TypeInput,

	"button": layer.TypeButton,

	"ul": layer.TypeList, "ol": layer.TypeList, "dl": layer.TypeList,
	"li": layer.TypeListItem, "dt": layer.TypeListItem,
	"dd": layer.TypeListItem,

	"table": layer.TypeTable,

	"svg":    layer.TypeSvg,
	"canvas": layer.TypeCanvas,
	"video":  layer.TypeVideo,
	"audio":  layer.TypeAudio,

	"iframe": layer.TypeEmbed, "embed": layer.TypeEmbed,
	"object": layer.TypeEmbed,

	"script": layer.TypeScript,
	"style":  layer.TypeStyle, "link": layer.TypeStyle,
}

func typeForNode(n *surface.Node) layer.Type {
	if n.NodeType == surface.NodeComment {
		return layer.TypeComment
	}
	if t, ok := tagTypes[n.Tag]; ok {
		return t
	}
	for _, r := range n.Tag {
		if r == '-' {
			return layer.TypeComponent
		}
	}
	return layer.TypeContainer
}

func nameHints(n *surface.Node) layer.NameHints {
	return layer.NameHints{
		Role:      n.Attrs["role"],
		Tag:       n.Tag,
		Class:     n.Attrs["class"],
		ElementID: n.Attrs["id"],
		Text:      n.Text,
	}
}

// layerFromNode builds an unattached layer for one snapshot node. The
// ordinal feeds the type+ordinal naming fallback.
func layerFromNode(n *surface.Node, ordinal int) *layer.Layer {
	typ := typeForNode(n)
	l := &layer.Layer{
		Type:        typ,
		Name:        layer.DeriveName(typ, nameHints(n), ordinal),
		ExternalRef: n.Ref,
		ContentPath: n.Path,
		Visible:     n.Style["display"] != "none",
		Transform:   layer.IdentityTransform(),
		Content:     contentFromNode(typ, n),
		Metadata:    layer.Metadata{OriginPath: n.Path, AutoNamed: true},
	}
	if n.Bounds != nil {
		l.Bounds = boundsRect(n.Bounds)
	}
	if n.Style != nil {
		l.ComputedStyle = maps.Clone(n.Style)
	}
	return l
}

func boundsRect(b *surface.Bounds) layer.Rect {
	return layer.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

func contentFromNode(typ layer.Type, n *surface.Node) layer.Content {
	c := layer.Content{Text: n.Text}
	switch typ {
	case layer.TypeImage:
		c.Src = n.Attrs["src"]
		c.Alt = n.Attrs["alt"]
		c.NaturalWidth = attrFloat(n.Attrs, "width")
		c.NaturalHeight = attrFloat(n.Attrs, "height")
	case layer.TypeInput:
		c.InputKind = n.Attrs["type"]
		c.Placeholder = n.Attrs["placeholder"]
		c.Value = n.Attrs["value"]
	case layer.TypeVideo, layer.TypeAudio, layer.TypeEmbed:
		c.Src = n.Attrs["src"]
	}
	if href, ok := n.Attrs["href"]; ok {
		c.Href = href
		c.Target = n.Attrs["target"]
	}
	return c
}

func attrFloat(attrs map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(attrs[key], 64)
	if err != nil {
		return 0
	}
	return v
}

// bindRoot maps the snapshot root (the document body) onto the tree root.
func bindRoot(t *layer.Tree, snap *surface.Node) {
	rootID := t.RootID()
	t.SetExternalRef(rootID, snap.Ref)
	t.SetContentPath(rootID, snap.Path)
	if snap.Bounds != nil {
		t.SetBounds(rootID, boundsRect(snap.Bounds))
	}
	if snap.Style != nil {
		t.SetComputedStyle(rootID, snap.Style)
	}
}

// attachSubtree builds layers for n and its whole subtree under parentID.
// A negative index appends.
func attachSubtree(t *layer.Tree, n *surface.Node, parentID string, index int) (*layer.Layer, error) {
	l := layerFromNode(n, typeOrdinal(t, parentID, typeForNode(n)))
	if err := t.Attach(l, parentID, index); err != nil {
		return nil, err
	}
	for _, child := range n.Children {
		if _, err := attachSubtree(t, child, l.ID, -1); err != nil {
			return nil, err
		}
	}
	snap, _ := t.Get(l.ID)
	return snap, nil
}

func typeOrdinal(t *layer.Tree, parentID string, typ layer.Type) int {
	n := 1
	for _, c := range t.Children(parentID) {
		if c.Type == typ {
			n++
		}
	}
	return n
}
