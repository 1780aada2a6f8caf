package brightspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"classbridge/internal/components/assert"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	telemetrylib "classbridge/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrNoResponse means the endpoint answered with nothing usable: a non-2xx
// status, a network failure inside the page, or a json null.
var ErrNoResponse = errors.New("no response")

// Fetcher reads a json endpoint of the signed in portal. path is relative to
// the portal root, like /d2l/api/le/1.0/123/news/.
type Fetcher interface {
	FetchJSON(ctx context.Context, path string) (json.RawMessage, error)
}

// fetchInPage runs inside the page so the request carries the session's
// cookies and any headers the portal's own scripts add.
const fetchInPage = `async (path) => {
	try {
		const resp = await fetch(path, { credentials: 'include' });
		if (resp.ok) {
			return await resp.json();
		}
	} catch (e) {}
	return null;
}`

type pageFetcher struct {
	d driver.Driver
}

func NewPageFetcher(d driver.Driver) Fetcher {
	assert.NotNil(d, "driver")
	return pageFetcher{d: d}
}

func (f pageFetcher) FetchJSON(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := f.d.Evaluate(ctx, fetchInPage, path)
	if err != nil {
		return nil, fmt.Errorf("evaluate fetch: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNoResponse
	}
	return raw, nil
}

type restFetcher struct {
	d    driver.Driver
	http *resty.Client
	base *url.URL
}

// NewRestFetcher makes requests outside the page with a resty client that
// copies the browser session's cookies onto every request. sink may be nil.
func NewRestFetcher(d driver.Driver, baseURL string, tel telemetry.API, sink telemetry.MessageSink) (Fetcher, error) {
	assert.NotNil(d, "driver")
	assert.NotNil(tel, "telemetry")

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("accept", "application/json")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	// 2 requests max per second
	limiter := rate.NewLimiter(2, 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("brightspace_rest", tel), sink)
	telemetrylib.TraceResty(client, "classbridge.internal.scrapers.brightspace")

	return restFetcher{d: d, http: client, base: base}, nil
}

func (f restFetcher) FetchJSON(ctx context.Context, path string) (json.RawMessage, error) {
	cookies, err := f.d.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session cookies: %w", err)
	}

	res, err := f.http.R().
		SetContext(ctx).
		SetCookies(cookies).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: %s: %w", path, res.Status(), ErrNoResponse)
	}
	body := res.Body()
	if !json.Valid(body) || string(body) == "null" {
		// an expired session is answered with the login page
		return nil, fmt.Errorf("get %s: not json: %w", path, ErrNoResponse)
	}
	return json.RawMessage(body), nil
}

// Fetchers tries each fetcher in order until one answers.
type Fetchers []Fetcher

func (fs Fetchers) FetchJSON(ctx context.Context, path string) (json.RawMessage, error) {
	var errs []error
	for _, f := range fs {
		raw, err := f.FetchJSON(ctx, path)
		if err == nil {
			return raw, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrNoResponse
	}
	return nil, errors.Join(errs...)
}

// DefaultFetcher asks the page first and falls back to a direct request.
func DefaultFetcher(d driver.Driver, tel telemetry.API, sink telemetry.MessageSink) Fetcher {
	rest, err := NewRestFetcher(d, BaseURL, tel, sink)
	if err != nil {
		tel.ReportBroken(report_scraper_fetch, err)
		return NewPageFetcher(d)
	}
	return Fetchers{NewPageFetcher(d), rest}
}

func fetchInto[T any](ctx context.Context, f Fetcher, path string, out *T) error {
	raw, err := f.FetchJSON(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
