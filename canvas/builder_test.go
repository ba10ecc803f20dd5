package canvas

import (
	"testing"

	"github.com/hazyhaar/domcanvas/layer"
	"github.com/hazyhaar/domcanvas/surface"
)

func TestTypeForNode(t *testing.T) {
	cases := []struct {
		tag  string
		want layer.Type
	}{
		{"div", layer.TypeContainer},
		{"section", layer.TypeContainer},
		{"h2", layer.TypeText},
		{"blockquote", layer.TypeText},
		{"a", layer.TypeText},
		{"img", layer.TypeImage},
		{"textarea", layer.TypeInput},
		{"button", layer.TypeButton},
		{"ol", layer.TypeList},
		{"dd", layer.TypeListItem},
		{"table", layer.TypeTable},
		{"canvas", layer.TypeCanvas},
		{"iframe", layer.TypeEmbed},
		{"script", layer.TypeScript},
		{"link", layer.TypeStyle},
		{"my-widget", layer.TypeComponent},
		{"x-modal-dialog", layer.TypeComponent},
	}
	for _, tc := range cases {
		got := typeForNode(&surface.Node{Tag: tc.tag, NodeType: surface.NodeElement})
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.tag, got, tc.want)
		}
	}

	comment := &surface.Node{NodeType: surface.NodeComment, Text: "note"}
	if got := typeForNode(comment); got != layer.TypeComment {
		t.Errorf("comment: got %s", got)
	}
}

func TestContentFromNode_Image(t *testing.T) {
	n := &surface.Node{
		Tag: "img",
		Attrs: map[string]string{
			"src": "photo.jpg", "alt": "A photo",
			"width": "640", "height": "480",
		},
	}
	c := contentFromNode(layer.TypeImage, n)
	if c.Src != "photo.jpg" || c.Alt != "A photo" {
		t.Errorf("src/alt: got %q/%q", c.Src, c.Alt)
	}
	if c.NaturalWidth != 640 || c.NaturalHeight != 480 {
		t.Errorf("natural size: got %gx%g", c.NaturalWidth, c.NaturalHeight)
	}
}

func TestContentFromNode_Input(t *testing.T) {
	n := &surface.Node{
		Tag: "input",
		Attrs: map[string]string{
			"type": "email", "placeholder": "you@example.com", "value": "x@y.z",
		},
	}
	c := contentFromNode(layer.TypeInput, n)
	if c.InputKind != "email" || c.Placeholder != "you@example.com" || c.Value != "x@y.z" {
		t.Errorf("input content: got %+v", c)
	}
}

func TestContentFromNode_Link(t *testing.T) {
	n := &surface.Node{
		Tag:   "a",
		Text:  "Docs",
		Attrs: map[string]string{"href": "/docs", "target": "_blank"},
	}
	c := contentFromNode(layer.TypeText, n)
	if c.Text != "Docs" || c.Href != "/docs" || c.Target != "_blank" {
		t.Errorf("link content: got %+v", c)
	}
}

func TestLayerFromNode_HiddenAndStyled(t *testing.T) {
	n := &surface.Node{
		Ref:    "m7",
		Path:   "/html/body/div",
		Tag:    "div",
		Attrs:  map[string]string{"class": "sidebar"},
		Style:  map[string]string{"display": "none", "color": "red"},
		Bounds: &surface.Bounds{X: 1, Y: 2, Width: 3, Height: 4},
	}
	l := layerFromNode(n, 1)
	if l.Visible {
		t.Error("display:none node built visible")
	}
	if l.Name != "sidebar" {
		t.Errorf("name: got %q, want sidebar", l.Name)
	}
	if l.ExternalRef != "m7" || l.ContentPath != "/html/body/div" {
		t.Errorf("refs: got %q %q", l.ExternalRef, l.ContentPath)
	}
	if l.Bounds.Width != 3 || l.Bounds.Height != 4 {
		t.Errorf("bounds: got %+v", l.Bounds)
	}
	if l.ComputedStyle["color"] != "red" {
		t.Errorf("style: got %v", l.ComputedStyle)
	}
	if l.Transform != layer.IdentityTransform() {
		t.Errorf("transform: got %+v", l.Transform)
	}
	if !l.Metadata.AutoNamed {
		t.Error("auto-named flag not set")
	}
}
