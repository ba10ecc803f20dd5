package canvas

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/surface"
)

type exporter struct {
	conv *converter.Converter
}

func newExporter() *exporter {
	return &exporter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// ExportMarkdown renders a layer's rendered subtree as markdown. The
// root id exports the whole document.
func (s *Session) ExportMarkdown(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	l, ok := s.tree.Get(id)
	root := s.tree.RootID()
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("canvas: export %s: %w", id, layer.ErrOrphanReference)
	}

	var (
		n   *surface.Node
		err error
	)
	if id == root {
		n, err = s.surf.Snapshot(ctx)
	} else {
		if l.ExternalRef == "" {
			return "", fmt.Errorf("canvas: export %s: %w", id, layer.ErrDetachedExternalNode)
		}
		n, err = s.surf.SnapshotFrom(ctx, l.ExternalRef)
	}
	if err != nil {
		return "", fmt.Errorf("canvas: export %s: %w", id, err)
	}

	md, err := s.export.conv.ConvertString(renderNodeHTML(n))
	if err != nil {
		return "", fmt.Errorf("canvas: export %s: convert: %w", id, err)
	}
	return strings.TrimSpace(md), nil
}

// voidTags are elements serialized without a closing tag.
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// renderNodeHTML serializes a surface node snapshot back to markup.
func renderNodeHTML(n *surface.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	writeNodeHTML(&b, n)
	return b.String()
}

func writeNodeHTML(b *strings.Builder, n *surface.Node) {
	switch n.NodeType {
	case surface.NodeComment:
		b.WriteString("<!--")
		b.WriteString(n.Text)
		b.WriteString("-->")
		return
	case surface.NodeText:
		b.WriteString(html.EscapeString(n.Text))
		return
	}

	tag := strings.ToLower(n.Tag)
	if tag == "" {
		tag = "div"
	}
	b.WriteByte('<')
	b.WriteString(tag)
	for _, k := range sortedAttrKeys(n.Attrs) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(n.Attrs[k]))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidTags[tag] {
		return
	}
	if n.Text != "" && len(n.Children) == 0 {
		b.WriteString(html.EscapeString(n.Text))
	}
	for _, c := range n.Children {
		writeNodeHTML(b, c)
	}
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
}

func sortedAttrKeys(attrs map[string]string) []string {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
