// fastview builds simple server-side views: incoming data is converted to a
// view-model, multiplexed to one or more views, and each view emits element
// updates that a websocket client applies to the page.
package fastview

import (
	"html/template"
)

// EleUpdate is an element identifier and a set of operations to apply to its attributes/content.
type EleUpdate struct {
	// The id by which to find the element
	EleId string
	// Op keys are attrib keys or 'textContent', values are the strings to which these are set.
	// Example: ('cx','120') sets attribute 'cx' to 120, ('textContent','Step 3/50') sets the text.
	Ops []Op
}

// Op is a key and value. For example an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// TextContent is the reserved op key for replacing an element's text.
const TextContent = "textContent"

// ViewComponent is a server side view: Parse adds its template to a parent, and
// Updates is the chan by which its ele-updates are notified.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse adds the view's template to the passed parent, inheriting its func-map,
	// and returns the name under which it was defined.
	Parse(*template.Template) (string, error)
}
