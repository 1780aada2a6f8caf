// Package fakedriver is an in-memory driver.Driver over static html, used to
// test login flows and extraction without a browser. Selectors are evaluated
// with goquery, and clicks, fills and scripts can be scripted with hooks.
package fakedriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"classbridge/internal/driver"
	"classbridge/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const blankPage = "<html><head></head><body></body></html>"

// Fill records one Fill call.
type Fill struct {
	Selector string
	Value    string
}

// Driver is safe for use by one flow at a time plus the hooks it calls.
type Driver struct {
	// Pages maps an exact url to the html served for it.
	Pages map[string]string
	// Redirects maps a requested url to the url actually landed on.
	Redirects map[string]string
	// OnClick runs after an element is clicked.
	OnClick func(d *Driver, el *Element)
	// OnFill runs after an element is filled.
	OnFill func(d *Driver, el *Element, value string)
	// Eval answers Evaluate calls. Returning a nil value means null.
	Eval func(d *Driver, script string, args []any) (any, error)
	// Jar is returned by Cookies.
	Jar []*http.Cookie

	mu          sync.Mutex
	url         string
	html        string
	doc         *goquery.Document
	navigations []string
	clicks      []string
	fills       []Fill
	screenshots []string
	closed      bool
}

func New() *Driver {
	return &Driver{
		Pages:     map[string]string{},
		Redirects: map[string]string{},
		html:      blankPage,
	}
}

// Show replaces the current page without recording a navigation, hooks use
// it to simulate redirects and client side rendering.
func (d *Driver) Show(url, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.html = html
	d.doc = nil
}

func (d *Driver) document() *goquery.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.html))
		if err != nil {
			doc, _ = goquery.NewDocumentFromReader(strings.NewReader(blankPage))
		}
		d.doc = doc
	}
	return d.doc
}

func (d *Driver) Navigate(ctx context.Context, url string, ready driver.ReadyState) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return driver.ErrClosed
	}
	d.navigations = append(d.navigations, url)
	target := url
	for i := 0; i < 10; i++ {
		next, ok := d.Redirects[target]
		if !ok {
			break
		}
		target = next
	}
	html, ok := d.Pages[target]
	if !ok {
		html = blankPage
	}
	d.mu.Unlock()

	d.Show(target, html)
	return ctx.Err()
}

func (d *Driver) URL(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *Driver) Locate(ctx context.Context, sel driver.Selector) []driver.Element {
	if d.isClosed() {
		return nil
	}
	var out []driver.Element
	d.document().Find(sel.CSS).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{d: d, sel: s, selector: sel.String()})
	})
	return driver.FilterText(ctx, out, sel.Text)
}

func (d *Driver) Content(ctx context.Context) (string, error) {
	if d.isClosed() {
		return "", driver.ErrClosed
	}
	return d.document().Html()
}

func (d *Driver) Evaluate(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if d.isClosed() {
		return nil, driver.ErrClosed
	}
	if d.Eval == nil {
		return nil, nil
	}
	v, err := d.Eval(d, script, args)
	if err != nil || v == nil {
		return nil, err
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func (d *Driver) Screenshot(ctx context.Context, label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, label)
}

func (d *Driver) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	return d.Jar, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("already closed")
	}
	d.closed = true
	return nil
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	return d.isClosed()
}

func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

func (d *Driver) Fills() []Fill {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Fill(nil), d.fills...)
}

func (d *Driver) Screenshots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.screenshots...)
}

// Element is a node of the page that was current when it was located.
type Element struct {
	d        *Driver
	sel      *goquery.Selection
	selector string
}

// Selector is the selector the element was located with.
func (e *Element) Selector() string {
	return e.selector
}

// Is reports whether the element matches a css selector.
func (e *Element) Is(css string) bool {
	return e.sel.Is(css)
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return strings.Join(htmlutil.SelectionLines(e.sel), "\n"), nil
}

func (e *Element) Attr(ctx context.Context, name string) (string, bool) {
	return e.sel.Attr(name)
}

// Visible is false for hidden inputs and for anything inside an element with
// the hidden attribute or an inline display:none.
func (e *Element) Visible(ctx context.Context) bool {
	if t, _ := e.sel.Attr("type"); strings.EqualFold(t, "hidden") {
		return false
	}
	hidden := false
	e.sel.Parents().AddBack().Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("hidden"); ok {
			hidden = true
		}
		style, _ := s.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") {
			hidden = true
		}
	})
	return !hidden
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if e.d.isClosed() {
		return driver.ErrClosed
	}
	e.d.mu.Lock()
	e.d.fills = append(e.d.fills, Fill{Selector: e.selector, Value: value})
	e.d.mu.Unlock()

	e.sel.SetAttr("value", value)
	if e.d.OnFill != nil {
		e.d.OnFill(e.d, e, value)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if e.d.isClosed() {
		return driver.ErrClosed
	}
	e.d.mu.Lock()
	e.d.clicks = append(e.d.clicks, e.selector)
	e.d.mu.Unlock()

	if e.d.OnClick != nil {
		e.d.OnClick(e.d, e)
	}
	return nil
}
