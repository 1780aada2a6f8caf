package telemetry

import (
	"fmt"
)

// API is the reporting surface every component logs through. Keeping it an
// interface lets tests assert that a broken login or an empty strategy was
// actually reported.
type API interface {
	// ReportBroken reports a component that failed in a way that leaves the
	// run with less data than it should have (a course that could not be
	// scraped, a login that never reached its destination).
	//
	// The `id` names the component, not the line of code. It takes the form
	// `<struct>.<method-name>`, for example `scraper.course-work`. Wrap the
	// error with fmt.Errorf or pass extra params to say what specifically
	// went wrong.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// ScopedAPI prefixes the package so ids stay short. See the `report_...`
	// constants in each package for examples.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something worth a look that does not by itself
	// lose data, like a selector candidate that matched nothing.
	ReportWarning(id string, params ...any)

	// ReportDebug reports step tracing that is only shown with --debug.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many things a step produced at this point in time.
	ReportCount(id string, count int64)
}

// ScopedAPI attaches a namespace to every id passed through it.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
