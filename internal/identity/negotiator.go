// Package identity signs a browser session into a portal through the school's
// identity broker.
//
// A negotiation is a small state machine. Every field entry state races its
// form field against the destination page, since the broker finishes silently
// whenever it already holds a session. Nothing here returns an error: a flow
// that cannot find its next form leaves the session where it is and the
// caller finds out when extraction comes back empty.
package identity

import (
	"context"
	"fmt"
	"strings"

	"classbridge/internal/components/assert"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/lib/htmlutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("classbridge.internal.identity")

const (
	report_negotiator_login          = "negotiator.login"
	report_negotiator_email          = "negotiator.email-entry"
	report_negotiator_username       = "negotiator.username-entry"
	report_negotiator_password       = "negotiator.password-entry"
	report_negotiator_wrong_account  = "negotiator.wrong-account"
	report_negotiator_landing        = "negotiator.landing"
	report_negotiator_redirect       = "negotiator.redirect-wait"
	report_negotiator_stay_signed_in = "negotiator.stay-signed-in"
)

type Credentials struct {
	Username string
	Password string
}

// Result is where a negotiation ended and how it got there.
type Result struct {
	Final     State
	Path      []State
	Recovered bool
}

func (r Result) OK() bool {
	return r.Final == Destination
}

type Negotiator struct {
	creds Credentials
	tel   telemetry.API
}

func NewNegotiator(creds Credentials, tel telemetry.API) Negotiator {
	assert.NotEmptyStr(creds.Username, "username")
	assert.NotNil(tel, "telemetry")
	return Negotiator{
		creds: creds,
		tel:   telemetry.NewScopedAPI("identity", tel),
	}
}

// Login walks flow on d until it reaches the destination or a dead end.
func (n Negotiator) Login(ctx context.Context, d driver.Driver, flow Flow, profile Profile) Result {
	ctx, span := tracer.Start(ctx, "Login", trace.WithAttributes(
		attribute.String("flow", flow.Name),
	))
	defer span.End()

	m := &machine{
		n:       n,
		d:       d,
		flow:    flow,
		profile: profile,
		tel:     n.tel,
	}

	state := Start
	path := []State{}
	// each state runs at most a handful of times, this bounds a misbehaving page
	for steps := 0; !state.terminal() && steps < 16; steps++ {
		path = append(path, state)
		n.tel.ReportDebug("login state", flow.Name, state.String(), d.URL(ctx))
		span.AddEvent(state.String())
		state = m.step(ctx, state)
		if ctx.Err() != nil && !state.terminal() {
			state = Failed
		}
	}
	if !state.terminal() {
		state = Failed
	}
	path = append(path, state)

	if state == Destination {
		m.arrive(ctx)
	} else {
		err := fmt.Errorf("%s login ended on %s", flow.Name, d.URL(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.tel.ReportBroken(report_negotiator_login, err, pathString(path))
		d.Screenshot(ctx, flow.Name+"_login_failed")
	}

	return Result{Final: state, Path: path, Recovered: m.recovered}
}

func pathString(path []State) string {
	names := make([]string, len(path))
	for i, s := range path {
		names[i] = s.String()
	}
	return strings.Join(names, " -> ")
}

type machine struct {
	n         Negotiator
	d         driver.Driver
	flow      Flow
	profile   Profile
	tel       telemetry.API
	recovered bool
}

func (m *machine) step(ctx context.Context, s State) State {
	switch s {
	case Start:
		return m.start(ctx)
	case EmailEntry:
		return m.emailEntry(ctx)
	case BrokerRedirectWait:
		return m.redirectWait(ctx)
	case BrokerUsernameEntry:
		return m.usernameEntry(ctx)
	case WrongAccountRecovery:
		return m.wrongAccountRecovery(ctx)
	case BrokerPasswordEntry:
		return m.passwordEntry(ctx)
	case StaySignedInPrompt:
		return m.staySignedIn(ctx)
	}
	return Failed
}

func (m *machine) arrived(ctx context.Context) bool {
	return m.flow.Destination.Matches(m.d.URL(ctx))
}

func (m *machine) atDestination() driver.Condition {
	return m.arrived
}

func (m *machine) onBroker() driver.Condition {
	return driver.OnHost(m.d, m.flow.BrokerHosts...)
}

func (m *machine) wrongAccount() driver.Condition {
	return func(ctx context.Context) bool {
		content, err := m.d.Content(ctx)
		if err != nil {
			return false
		}
		doc, err := htmlutil.Parse(content)
		if err != nil {
			return false
		}
		text := strings.ToLower(htmlutil.CleanText(doc.Text()))
		for _, marker := range WrongAccountMarkers {
			if strings.Contains(text, strings.ToLower(marker)) {
				return true
			}
		}
		return false
	}
}

func (m *machine) unlessRecovered(cond driver.Condition) driver.Condition {
	return func(ctx context.Context) bool {
		return !m.recovered && cond(ctx)
	}
}

// enter types value into field and clicks the first submit candidate that is
// present, then lets the page settle.
func (m *machine) enter(ctx context.Context, id string, field driver.Element, value string, submit driver.Candidates) bool {
	if err := field.Fill(ctx, value); err != nil {
		m.tel.ReportWarning(id, fmt.Errorf("fill: %w", err), m.d.URL(ctx))
		return false
	}
	btn, sel, ok := submit.First(ctx, m.d)
	if !ok {
		m.tel.ReportWarning(id, "no submit button", m.d.URL(ctx))
	} else if err := btn.Click(ctx); err != nil {
		m.tel.ReportWarning(id, fmt.Errorf("click %s: %w", sel, err))
	}
	driver.Sleep(ctx, m.profile.Settle)
	return true
}

func (m *machine) start(ctx context.Context) State {
	// a previous login in this session may already have brought us here
	if m.arrived(ctx) {
		return Destination
	}
	if err := m.d.Navigate(ctx, m.flow.StartURL, driver.ReadyDOM); err != nil {
		m.tel.ReportWarning(report_negotiator_login, err)
	}
	m.d.Screenshot(ctx, m.flow.Name+"_start")
	if m.arrived(ctx) {
		return Destination
	}
	if m.flow.EmailStep {
		return EmailEntry
	}
	if len(m.flow.Landing) == 0 {
		return BrokerRedirectWait
	}

	switch driver.Race(ctx, m.profile.FieldWait,
		m.atDestination(),
		m.onBroker(),
		m.flow.Landing.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		return BrokerUsernameEntry
	case 2:
		btn, sel, ok := m.flow.Landing.First(ctx, m.d)
		if !ok {
			break
		}
		if err := btn.Click(ctx); err != nil {
			m.tel.ReportWarning(report_negotiator_landing, fmt.Errorf("click %s: %w", sel, err))
			return Failed
		}
		m.tel.ReportDebug("clicked landing button", sel.String())
		return BrokerRedirectWait
	}
	m.tel.ReportWarning(report_negotiator_landing, "no login button", m.d.URL(ctx))
	return Failed
}

func (m *machine) emailEntry(ctx context.Context) State {
	var field driver.Element
	switch driver.Race(ctx, m.profile.FieldWait,
		m.atDestination(),
		m.onBroker(),
		emailFields.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		return BrokerUsernameEntry
	case 2:
		field, _, _ = emailFields.First(ctx, m.d)
	}

	if field == nil {
		// the account chooser hides the email field behind another button
		m.d.Screenshot(ctx, m.flow.Name+"_no_email")
		alt, sel, ok := emailAlternatives.FirstWithin(ctx, m.d, m.profile.FallbackWait)
		if ok {
			if err := alt.Click(ctx); err != nil {
				m.tel.ReportWarning(report_negotiator_email, fmt.Errorf("click %s: %w", sel, err))
			}
			driver.Sleep(ctx, m.profile.Settle)
			field, _, _ = emailFields.FirstWithin(ctx, m.d, m.profile.FallbackWait)
		}
	}
	if field == nil {
		m.tel.ReportWarning(report_negotiator_email, "no email field", m.d.URL(ctx))
		return Failed
	}

	if !m.enter(ctx, report_negotiator_email, field, m.n.creds.Username, emailNext) {
		return Failed
	}
	m.d.Screenshot(ctx, m.flow.Name+"_email_entered")
	return BrokerRedirectWait
}

func (m *machine) redirectWait(ctx context.Context) State {
	idx := driver.Race(ctx, m.profile.RedirectWait,
		m.atDestination(),
		m.onBroker(),
		usernameFields.Present(m.d),
		passwordFields.Present(m.d),
	)
	if idx == 0 {
		return Destination
	}
	if idx < 0 {
		// interstitial pages sometimes submit without changing host
		m.tel.ReportWarning(report_negotiator_redirect, "broker did not show up", m.d.URL(ctx))
	}
	driver.Sleep(ctx, m.profile.Settle)
	m.d.Screenshot(ctx, m.flow.Name+"_broker")
	if m.arrived(ctx) {
		return Destination
	}
	return BrokerUsernameEntry
}

func (m *machine) usernameEntry(ctx context.Context) State {
	var field driver.Element
	switch driver.Race(ctx, m.profile.FieldWait,
		m.atDestination(),
		m.unlessRecovered(m.wrongAccount()),
		passwordFields.Present(m.d),
		usernameFields.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		return WrongAccountRecovery
	case 2:
		return BrokerPasswordEntry
	case 3:
		field, _, _ = usernameFields.First(ctx, m.d)
	}
	if field == nil {
		m.d.Screenshot(ctx, m.flow.Name+"_no_username")
		m.tel.ReportWarning(report_negotiator_username, "no username field", m.d.URL(ctx))
		return Failed
	}

	if !m.enter(ctx, report_negotiator_username, field, m.n.creds.Username, brokerSubmit) {
		return Failed
	}

	switch driver.Race(ctx, m.profile.PasswordWait,
		m.atDestination(),
		m.wrongAccount(),
		passwordFields.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		if !m.recovered {
			return WrongAccountRecovery
		}
		m.tel.ReportWarning(report_negotiator_wrong_account, "still on the wrong account after recovery")
	}
	return BrokerPasswordEntry
}

// wrongAccountRecovery runs at most once per login.
func (m *machine) wrongAccountRecovery(ctx context.Context) State {
	m.recovered = true
	m.tel.ReportWarning(report_negotiator_wrong_account, "broker picked another account", m.d.URL(ctx))
	m.d.Screenshot(ctx, m.flow.Name+"_wrong_account")

	btn, sel, ok := useAnotherAccount.FirstWithin(ctx, m.d, m.profile.FallbackWait)
	if !ok {
		m.tel.ReportDebug("no use another account button", m.d.URL(ctx))
		return BrokerUsernameEntry
	}
	if err := btn.Click(ctx); err != nil {
		m.tel.ReportWarning(report_negotiator_wrong_account, fmt.Errorf("click %s: %w", sel, err))
	}
	driver.Sleep(ctx, m.profile.Settle)
	return BrokerUsernameEntry
}

func (m *machine) passwordEntry(ctx context.Context) State {
	var field driver.Element
	switch driver.Race(ctx, m.profile.PasswordWait,
		m.atDestination(),
		passwordFields.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		field, _, _ = passwordFields.First(ctx, m.d)
	}
	if field == nil {
		m.d.Screenshot(ctx, m.flow.Name+"_no_password")
		m.tel.ReportWarning(report_negotiator_password, "no password field", m.d.URL(ctx))
		return Failed
	}

	if !m.enter(ctx, report_negotiator_password, field, m.n.creds.Password, brokerSubmit) {
		return Failed
	}
	m.d.Screenshot(ctx, m.flow.Name+"_password_entered")
	return StaySignedInPrompt
}

func (m *machine) staySignedIn(ctx context.Context) State {
	switch driver.Race(ctx, m.profile.StayPromptWait,
		m.atDestination(),
		staySignedIn.Present(m.d),
	) {
	case 0:
		return Destination
	case 1:
		btn, sel, ok := staySignedIn.First(ctx, m.d)
		if ok {
			if err := btn.Click(ctx); err != nil {
				m.tel.ReportWarning(report_negotiator_stay_signed_in, fmt.Errorf("click %s: %w", sel, err))
			}
			driver.Sleep(ctx, m.profile.StayPostClick)
		}
	default:
		m.tel.ReportDebug("no stay signed in prompt")
	}

	if driver.WaitFor(ctx, m.profile.DestinationWait, m.atDestination()) {
		return Destination
	}
	m.tel.ReportWarning(report_negotiator_redirect, "never reached destination", m.d.URL(ctx))
	return Failed
}

// arrive lets the destination finish rendering and closes the dialog some
// portals open on first visit.
func (m *machine) arrive(ctx context.Context) {
	driver.Sleep(ctx, m.profile.Settle)
	if len(m.flow.Dismiss) > 0 {
		if btn, _, ok := m.flow.Dismiss.First(ctx, m.d); ok {
			if err := btn.Click(ctx); err == nil {
				m.tel.ReportDebug("dismissed dialog", m.flow.Name)
				driver.Sleep(ctx, m.profile.Settle)
			}
		}
	}
	m.d.Screenshot(ctx, m.flow.Name+"_loaded")
}
