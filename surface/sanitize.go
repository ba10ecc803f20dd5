package surface

import "github.com/microcosm-cc/bluemonday"

// insertPolicy is the shared policy for HTML entering a surface through
// insert writes. User-generated-content defaults plus the attributes and
// structural elements the layer builder reads.
var insertPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "id").Globally()
	p.AllowAttrs("alt", "width", "height").OnElements("img")
	p.AllowAttrs("type", "placeholder", "value", "name").OnElements("input")
	p.AllowElements("section", "header", "footer", "nav", "main", "aside",
		"article", "figure", "figcaption", "input", "button", "label", "svg",
		"canvas", "video", "audio", "source")
	p.AllowAttrs("src", "controls", "width", "height").OnElements("video", "audio", "source")
	p.AllowAttrs("width", "height").OnElements("canvas")
	p.AllowDataURIImages()
	return p
}()

// Sanitize strips scriptable and otherwise unsafe markup from an HTML
// fragment before it reaches a surface.
func Sanitize(fragment string) string {
	return insertPolicy.Sanitize(fragment)
}
