// Package driver is the narrow surface the login and extraction code uses to
// control a browser page. Lookups that find nothing are ordinary results, not
// errors, so callers can move on to their next fallback.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrClosed = errors.New("driver: session closed")

// ReadyState is how far a navigation waits before returning.
type ReadyState int

const (
	// ReadyDOM waits for DOMContentLoaded.
	ReadyDOM ReadyState = iota
	// ReadyLoad waits for the load event.
	ReadyLoad
)

// Selector is a CSS selector with an optional case-insensitive filter on the
// element's visible text.
type Selector struct {
	CSS  string
	Text string
}

func CSS(css string) Selector {
	return Selector{CSS: css}
}

func HasText(css, text string) Selector {
	return Selector{CSS: css, Text: text}
}

func (s Selector) String() string {
	if s.Text == "" {
		return s.CSS
	}
	return s.CSS + `:has-text("` + s.Text + `")`
}

// Element is a handle to one node on the current page. Handles go stale once
// the page navigates.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, bool)
	Visible(ctx context.Context) bool
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
}

// Driver is one page in one fresh browser profile.
type Driver interface {
	// Navigate loads url and waits for ready, bounded by the navigation timeout.
	Navigate(ctx context.Context, url string, ready ReadyState) error
	// URL is the address of the current page.
	URL(ctx context.Context) string
	// Locate returns every element matching sel, possibly none.
	Locate(ctx context.Context, sel Selector) []Element
	// Content is the serialized DOM of the current page.
	Content(ctx context.Context) (string, error)
	// Evaluate runs a javascript function expression in the page and returns
	// its JSON result, nil when the script returned null or undefined.
	Evaluate(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	// Screenshot captures a labeled artifact when debugging, otherwise it does
	// nothing. It never fails.
	Screenshot(ctx context.Context, label string)
	// Cookies are the cookies the browser would send to the current page.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	// Close releases the page, the profile and the browser process.
	Close() error
}

// Options configures a backend.
type Options struct {
	Headless          bool
	Debug             bool
	ViewportWidth     int
	ViewportHeight    int
	Locale            string
	NavigationTimeout time.Duration
	// ArtifactDir receives screenshots and html snapshots when Debug is set.
	ArtifactDir string
}

func DefaultOptions() Options {
	return Options{
		Headless:          false,
		ViewportWidth:     1280,
		ViewportHeight:    900,
		Locale:            "en-US",
		NavigationTimeout: 60 * time.Second,
	}
}

// FilterText keeps the elements whose text contains text, case-insensitively.
func FilterText(ctx context.Context, elements []Element, text string) []Element {
	if text == "" {
		return elements
	}
	needle := strings.ToLower(text)
	var out []Element
	for _, el := range elements {
		t, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(t), needle) {
			out = append(out, el)
		}
	}
	return out
}

// HostMatches reports whether the host of rawURL contains any of patterns.
func HostMatches(rawURL string, patterns ...string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// DecodeResult unmarshals a script result into out. A null result leaves out
// untouched and reports false.
func DecodeResult(raw json.RawMessage, out any) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}
