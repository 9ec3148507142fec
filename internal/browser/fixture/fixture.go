// Package fixture is an in-memory browser.Driver over static HTML, used by
// tests and dry runs. Pages are parsed with goquery; element geometry comes
// from data-x/data-y/data-w/data-h attributes and visibility from `hidden`,
// inline display:none or data-visible="false" on the element or an ancestor.
//
// Clicks trigger Actions registered by element id, which can swap the page,
// drop a file into the download directory, and so on.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/albapepper/scoracle-projections/internal/browser"
)

// Action runs when a registered element is activated.
type Action func(d *Driver) error

// Driver implements browser.Driver. Not safe for concurrent use.
type Driver struct {
	// Pages maps URL to HTML served by Navigate.
	Pages map[string]string
	// OnClick maps element id to the action run on Activate.
	OnClick map[string]Action
	// OnEscape runs when EscapeScript is evaluated.
	OnEscape Action
	// Scripts maps a script body to a canned EvaluateScript result.
	Scripts map[string]any

	DownloadDir string
	Jar         []browser.Cookie
	View        browser.Rect

	// Recorded interactions.
	Navigations []string
	Activated   []string
	Filled      map[string]string
	Evaluated   []string
	Diagnostics []string
	Closed      bool

	url string
	doc *goquery.Document
}

// New returns a driver serving pages, positioned on about:blank.
func New(pages map[string]string) *Driver {
	d := &Driver{
		Pages:   pages,
		OnClick: map[string]Action{},
		Scripts: map[string]any{},
		Filled:  map[string]string{},
		View:    browser.Rect{Width: 1920, Height: 1080},
		url:     "about:blank",
	}
	if d.Pages == nil {
		d.Pages = map[string]string{}
	}
	_ = d.load("")
	return d
}

var errClosed = errors.New("fixture: driver closed")

func (d *Driver) load(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("fixture: parse page: %w", err)
	}
	d.doc = doc
	return nil
}

// Show replaces the current document without changing the URL.
func (d *Driver) Show(html string) error {
	return d.load(html)
}

// Navigate serves Pages[url].
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if d.Closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Navigations = append(d.Navigations, url)
	html, ok := d.Pages[url]
	if !ok {
		return fmt.Errorf("fixture: no page for %s", url)
	}
	d.url = url
	return d.load(html)
}

// Location returns the last navigated URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	if d.Closed {
		return "", errClosed
	}
	return d.url, nil
}

// EvaluateScript records js and returns the canned result, if any.
func (d *Driver) EvaluateScript(ctx context.Context, js string) (any, error) {
	if d.Closed {
		return nil, errClosed
	}
	d.Evaluated = append(d.Evaluated, js)
	if js == browser.EscapeScript && d.OnEscape != nil {
		if err := d.OnEscape(d); err != nil {
			return nil, err
		}
	}
	return d.Scripts[js], nil
}

const hiddenAncestor = `[hidden], [style*="display:none"], [style*="display: none"], [data-visible="false"]`

// FindElements runs a CSS selector over the current document.
func (d *Driver) FindElements(ctx context.Context, selector string) ([]browser.Element, error) {
	if d.Closed {
		return nil, errClosed
	}
	var out []browser.Element
	var findErr error
	func() {
		// cascadia panics on some malformed selectors.
		defer func() {
			if r := recover(); r != nil {
				findErr = fmt.Errorf("fixture: bad selector %q: %v", selector, r)
			}
		}()
		d.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			out = append(out, describe(i, s))
		})
	}()
	return out, findErr
}

func describe(i int, s *goquery.Selection) browser.Element {
	attrs := map[string]string{}
	for _, a := range s.Nodes[0].Attr {
		attrs[a.Key] = a.Val
	}
	visible := !s.Is(hiddenAncestor) && s.ParentsFiltered(hiddenAncestor).Length() == 0
	_, disabled := attrs["disabled"]
	enabled := !disabled && attrs["aria-disabled"] != "true"

	return browser.Element{
		Tag:     goquery.NodeName(s),
		Text:    strings.Join(strings.Fields(s.Text()), " "),
		Attrs:   attrs,
		Visible: visible,
		Enabled: enabled,
		Box: browser.Rect{
			X:      num(attrs["data-x"]),
			Y:      num(attrs["data-y"]),
			Width:  num(attrs["data-w"]),
			Height: num(attrs["data-h"]),
		},
		Order:  i,
		Handle: s,
	}
}

func num(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func key(el browser.Element) string {
	if id := el.Attr("id"); id != "" {
		return id
	}
	if name := el.Attr("name"); name != "" {
		return name
	}
	return el.Text
}

// Activate records the click and runs OnClick[id].
func (d *Driver) Activate(ctx context.Context, el browser.Element) error {
	if d.Closed {
		return errClosed
	}
	if !el.Interactable() {
		return fmt.Errorf("fixture: element %s is not interactable", el.Describe())
	}
	k := key(el)
	d.Activated = append(d.Activated, k)
	if act, ok := d.OnClick[k]; ok {
		return act(d)
	}
	return nil
}

// Fill records value under the element's id or name.
func (d *Driver) Fill(ctx context.Context, el browser.Element, value string) error {
	if d.Closed {
		return errClosed
	}
	if s, ok := el.Handle.(*goquery.Selection); ok {
		s.SetAttr("value", value)
	}
	d.Filled[key(el)] = value
	return nil
}

// Viewport returns View.
func (d *Driver) Viewport(ctx context.Context) (browser.Rect, error) {
	return d.View, nil
}

// Cookies returns Jar.
func (d *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return d.Jar, nil
}

// CaptureDiagnostic records name; nothing is written.
func (d *Driver) CaptureDiagnostic(ctx context.Context, name string) (string, error) {
	d.Diagnostics = append(d.Diagnostics, name)
	return "", nil
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.Closed = true
	return nil
}

// Clicks counts activations of the element with the given key.
func (d *Driver) Clicks(k string) int {
	n := 0
	for _, a := range d.Activated {
		if a == k {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// ShowPage swaps the current document.
func ShowPage(html string) Action {
	return func(d *Driver) error { return d.Show(html) }
}

// SetPage changes what url serves on the next Navigate.
func SetPage(url, html string) Action {
	return func(d *Driver) error {
		d.Pages[url] = html
		return nil
	}
}

// WriteDownload creates name with content in DownloadDir, stamped now.
func WriteDownload(name, content string) Action {
	return func(d *Driver) error {
		if d.DownloadDir == "" {
			return errors.New("fixture: no download dir")
		}
		path := filepath.Join(d.DownloadDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
		now := time.Now()
		return os.Chtimes(path, now, now)
	}
}

// Chain runs actions in order, stopping at the first error.
func Chain(actions ...Action) Action {
	return func(d *Driver) error {
		for _, a := range actions {
			if err := a(d); err != nil {
				return err
			}
		}
		return nil
	}
}

var _ browser.Driver = (*Driver)(nil)
