// Package roddriver implements driver.Driver with a real Chromium controlled
// through go-rod.
package roddriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"classbridge/internal/components/assert"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/lib/dumputil"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	report_driver_launch     = "driver.launch"
	report_driver_screenshot = "driver.screenshot"
	report_driver_close      = "driver.close"
)

const elementTimeout = 10 * time.Second

// Driver owns one browser process with a throwaway profile directory and a
// single incognito page.
type Driver struct {
	opts       driver.Options
	tel        telemetry.API
	launcher   *launcher.Launcher
	profileDir string
	browser    *rod.Browser
	page       *rod.Page
	artifacts  dumputil.FilesystemOutput

	mu       sync.Mutex
	shots    int
	launched bool
	closed   bool
}

// New launches a browser on a fresh profile. Nothing is reused from earlier
// runs so the identity broker cannot silently pick a cached account.
func New(ctx context.Context, opts driver.Options, tel telemetry.API) (*Driver, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("roddriver", tel)

	profileDir, err := os.MkdirTemp("", "classbridge-profile-*")
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		UserDataDir(profileDir).
		Set("disable-blink-features", "AutomationControlled")
	if opts.Locale != "" {
		l = l.Set("lang", opts.Locale)
	}

	d := &Driver{
		opts:       opts,
		tel:        tel,
		launcher:   l,
		profileDir: profileDir,
	}
	if opts.Debug && opts.ArtifactDir != "" {
		d.artifacts = dumputil.NewFilesystemOutput(opts.ArtifactDir)
	}

	controlURL, err := l.Launch()
	if err != nil {
		tel.ReportBroken(report_driver_launch, err)
		d.Close()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	d.launched = true

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		tel.ReportBroken(report_driver_launch, err)
		d.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser

	incognito, err := browser.Incognito()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	d.page = page

	err = proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(page)
	if err != nil {
		tel.ReportWarning(report_driver_launch, fmt.Errorf("set viewport: %w", err))
	}
	if opts.Locale != "" {
		err = proto.EmulationSetLocaleOverride{Locale: opts.Locale}.Call(page)
		if err != nil {
			tel.ReportWarning(report_driver_launch, fmt.Errorf("set locale: %w", err))
		}
	}

	return d, nil
}

func (d *Driver) livePage() (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.page == nil {
		return nil, driver.ErrClosed
	}
	return d.page, nil
}

func (d *Driver) Navigate(ctx context.Context, url string, ready driver.ReadyState) error {
	page, err := d.livePage()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(d.opts.NavigationTimeout)

	event := proto.PageLifecycleEventNameDOMContentLoaded
	if ready == driver.ReadyLoad {
		event = proto.PageLifecycleEventNameLoad
	}
	wait := p.WaitNavigation(event)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()
	return nil
}

func (d *Driver) URL(ctx context.Context) string {
	page, err := d.livePage()
	if err != nil {
		return ""
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *Driver) Locate(ctx context.Context, sel driver.Selector) []driver.Element {
	page, err := d.livePage()
	if err != nil {
		return nil
	}
	found, err := page.Context(ctx).Elements(sel.CSS)
	if err != nil {
		d.tel.ReportDebug("locate failed", sel.String(), err)
		return nil
	}
	out := make([]driver.Element, 0, len(found))
	for _, el := range found {
		out = append(out, element{el: el})
	}
	return driver.FilterText(ctx, out, sel.Text)
}

func (d *Driver) Content(ctx context.Context) (string, error) {
	page, err := d.livePage()
	if err != nil {
		return "", err
	}
	return page.Context(ctx).HTML()
}

func (d *Driver) Evaluate(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	page, err := d.livePage()
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Type == proto.RuntimeRemoteObjectTypeUndefined || res.Value.Nil() {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode script result: %w", err)
	}
	return raw, nil
}

func (d *Driver) Screenshot(ctx context.Context, label string) {
	if !d.opts.Debug || d.artifacts.Dir() == "" {
		return
	}
	page, err := d.livePage()
	if err != nil {
		return
	}

	d.mu.Lock()
	d.shots++
	name := fmt.Sprintf("%02d_%s", d.shots, label)
	d.mu.Unlock()

	png, err := page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		d.tel.ReportDebug(report_driver_screenshot, label, err)
	} else {
		d.artifacts.Write(dumputil.Name(name, ".png"), png)
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		d.tel.ReportDebug(report_driver_screenshot, label, err)
		return
	}
	d.artifacts.Write(dumputil.Name(name, ".html"), []byte(html))
}

func (d *Driver) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	page, err := d.livePage()
	if err != nil {
		return nil, err
	}
	cookies, err := page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out, nil
}

// browserChildren lists the helper processes of the browser while its main
// process is still alive, once it dies they get reparented and lost.
func (d *Driver) browserChildren() []*process.Process {
	pid := d.launcher.PID()
	if pid <= 0 {
		return nil
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	children, err := proc.Children()
	if err != nil {
		return nil
	}
	return children
}

// Close tears everything down, continuing past failures. Errors are reported
// and joined but the session is released as far as possible either way.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	page, browser, launched := d.page, d.browser, d.launched
	d.mu.Unlock()

	var errs []error
	var children []*process.Process
	if launched {
		children = d.browserChildren()
	}

	if page != nil {
		if err := page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if launched {
		d.launcher.Kill()
	}

	for _, child := range children {
		running, err := child.IsRunning()
		if err != nil || !running {
			continue
		}
		if err := child.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill browser child %d: %w", child.Pid, err))
		}
	}

	if launched {
		// waits for the process to exit
		d.launcher.Cleanup()
	}
	if err := os.RemoveAll(d.profileDir); err != nil {
		errs = append(errs, fmt.Errorf("remove profile: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		d.tel.ReportWarning(report_driver_close, err)
	}
	return err
}

type element struct {
	el *rod.Element
}

func (e element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Timeout(elementTimeout).Text()
}

func (e element) Attr(ctx context.Context, name string) (string, bool) {
	v, err := e.el.Context(ctx).Timeout(elementTimeout).Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e element) Visible(ctx context.Context) bool {
	visible, err := e.el.Context(ctx).Timeout(elementTimeout).Visible()
	return err == nil && visible
}

func (e element) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx).Timeout(elementTimeout)
	// clears what autofill may have put there
	_ = el.SelectAllText()
	return el.Input(value)
}

func (e element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Timeout(elementTimeout).Click(proto.InputMouseButtonLeft, 1)
}
