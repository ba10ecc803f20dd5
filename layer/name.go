package layer

import (
	"strconv"
	"strings"
	"unicode"
)

// NameHints carries the source-node details the naming rules draw from.
// All fields are optional.
type NameHints struct {
	Role      string // aria role or landmark role
	Tag       string // lowercase element tag
	Class     string // raw class attribute
	ElementID string // element id attribute
	Text      string // text content, for the content hint
}

// semanticTags maps landmark-ish tags to display labels, used when no
// explicit role is present.
var semanticTags = map[string]string{
	"header":  "Header",
	"footer":  "Footer",
	"nav":     "Navigation",
	"main":    "Main",
	"aside":   "Sidebar",
	"section": "Section",
	"article": "Article",
	"form":    "Form",
	"figure":  "Figure",
}

var typeLabels = map[Type]string{
	TypeRoot:      "Document",
	TypeContainer: "Container",
	TypeText:      "Text",
	TypeImage:     "Image",
	TypeInput:     "Input",
	TypeButton:    "Button",
	TypeList:      "List",
	TypeListItem:  "List Item",
	TypeTable:     "Table",
	TypeComponent: "Component",
	TypeSvg:       "Vector",
	TypeCanvas:    "Canvas",
	TypeVideo:     "Video",
	TypeAudio:     "Audio",
	TypeEmbed:     "Embed",
	TypeScript:    "Script",
	TypeStyle:     "Style",
	TypeComment:   "Comment",
}

const contentHintMax = 32

// DeriveName computes an auto name for a layer. Rules apply in order, first
// match wins: semantic role, class name, element id, content hint, then
// type plus ordinal.
func DeriveName(typ Type, h NameHints, ordinal int) string {
	if h.Role != "" {
		return titleWord(h.Role)
	}
	if label, ok := semanticTags[h.Tag]; ok {
		return label
	}
	if c := firstClass(h.Class); c != "" {
		return c
	}
	if h.ElementID != "" {
		return h.ElementID
	}
	if hint := contentHint(h.Text); hint != "" {
		return hint
	}
	label := typeLabels[typ]
	if label == "" {
		label = titleWord(string(typ))
	}
	if ordinal < 1 {
		ordinal = 1
	}
	return label + " " + strconv.Itoa(ordinal)
}

// TypeLabel returns the display label for a layer type.
func TypeLabel(typ Type) string {
	if label, ok := typeLabels[typ]; ok {
		return label
	}
	return titleWord(string(typ))
}

// firstClass returns the first class token, skipping obvious utility noise
// (tokens with separators that read as style fragments).
func firstClass(class string) string {
	for _, tok := range strings.Fields(class) {
		if strings.ContainsAny(tok, ":[]") {
			continue
		}
		return tok
	}
	return ""
}

// contentHint collapses whitespace and truncates to a label-sized prefix.
func contentHint(text string) string {
	hint := strings.Join(strings.Fields(text), " ")
	if hint == "" {
		return ""
	}
	runes := []rune(hint)
	if len(runes) > contentHintMax {
		hint = strings.TrimSpace(string(runes[:contentHintMax])) + "…"
	}
	return hint
}

func titleWord(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

