// Package browser defines the browser-automation contract consumed by the
// scraping core, plus a Chrome implementation backed by Rod.
//
// The core only ever talks to a Driver. Element snapshots are plain values
// (text, attributes, visibility, bounding box, document order) so locator
// logic can be evaluated without touching the page.
package browser

import (
	"context"
	"strings"
)

// Rect is an element bounding box in CSS pixels, relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the top-left corner of o lies inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.X <= r.X+r.Width && o.Y >= r.Y && o.Y <= r.Y+r.Height
}

// Element is a point-in-time description of a DOM element returned by
// FindElements. Handle is driver-specific and opaque to callers.
type Element struct {
	Tag     string
	Text    string
	Attrs   map[string]string
	Visible bool
	Enabled bool
	Box     Rect
	// Order is the element's position in document order among all elements
	// returned by the same FindElements call.
	Order  int
	Handle any
}

// Attr returns an attribute value, or "" when absent.
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Interactable reports whether the element can receive a click.
func (e Element) Interactable() bool {
	return e.Visible && e.Enabled
}

// Describe returns a short label for logs.
func (e Element) Describe() string {
	text := e.Text
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return strings.ToLower(e.Tag) + "[" + text + "]"
}

// Cookie is a browser session cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Driver is the verb set the scraping core depends on. Implementations own
// exactly one page for the lifetime of a run.
type Driver interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// EvaluateScript runs a JS function expression such as `() => 1` in the
	// page and returns its JSON-decoded result.
	EvaluateScript(ctx context.Context, js string) (any, error)
	// FindElements returns all elements matching a CSS selector, in document
	// order. No match is not an error.
	FindElements(ctx context.Context, selector string) ([]Element, error)
	// Activate clicks an element previously returned by FindElements.
	Activate(ctx context.Context, el Element) error
	// Fill replaces the value of an input element.
	Fill(ctx context.Context, el Element, value string) error
	// Viewport returns the visible area size.
	Viewport(ctx context.Context) (Rect, error)
	// Cookies returns the session cookies for the current page.
	Cookies(ctx context.Context) ([]Cookie, error)
	// CaptureDiagnostic stores a screenshot and returns its path.
	CaptureDiagnostic(ctx context.Context, name string) (string, error)
	// Close releases the session.
	Close() error
}

// EscapeScript dispatches an Escape keydown on the document.
const EscapeScript = `() => {
	document.dispatchEvent(new KeyboardEvent('keydown', {key: 'Escape', keyCode: 27, bubbles: true}));
	return true;
}`

// HideStickyScript hides sticky call-to-action banners that intercept clicks.
const HideStickyScript = `() => {
	var n = 0;
	document.querySelectorAll('bam-sticky-cta, .sticky-cta, [class*="sticky"]').forEach(function(el) {
		el.style.display = 'none';
		n++;
	});
	return n;
}`
