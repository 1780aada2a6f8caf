package driver

import (
	"context"
	"time"
)

// PollInterval is how often WaitFor re-checks its condition.
var PollInterval = 250 * time.Millisecond

// Condition is checked against the current page state.
type Condition func(ctx context.Context) bool

// WaitFor polls cond until it holds or timeout passes. A timeout is reported
// as false, never as an error.
func WaitFor(ctx context.Context, timeout time.Duration, cond Condition) bool {
	if cond(ctx) {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond(ctx)
		case <-ticker.C:
			if cond(ctx) {
				return true
			}
		}
	}
}

// Race waits until one of conds holds and returns its index, or -1 on timeout.
// Every poll checks conds in order so an earlier condition wins a tie.
func Race(ctx context.Context, timeout time.Duration, conds ...Condition) int {
	winner := -1
	WaitFor(ctx, timeout, func(ctx context.Context) bool {
		for i, c := range conds {
			if c(ctx) {
				winner = i
				return true
			}
		}
		return false
	})
	return winner
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Candidates is an ordered list of selectors for one target, the first one
// that matches a visible element wins.
type Candidates []Selector

// First checks every candidate once.
func (c Candidates) First(ctx context.Context, d Driver) (Element, Selector, bool) {
	for _, sel := range c {
		for _, el := range d.Locate(ctx, sel) {
			if el.Visible(ctx) {
				return el, sel, true
			}
		}
	}
	return nil, Selector{}, false
}

// FirstWithin keeps checking the candidates until one matches or timeout.
func (c Candidates) FirstWithin(ctx context.Context, d Driver, timeout time.Duration) (Element, Selector, bool) {
	var (
		found Element
		which Selector
	)
	ok := WaitFor(ctx, timeout, func(ctx context.Context) bool {
		el, sel, ok := c.First(ctx, d)
		if ok {
			found, which = el, sel
		}
		return ok
	})
	return found, which, ok
}

// Present is a Condition that holds while any candidate is visible.
func (c Candidates) Present(d Driver) Condition {
	return func(ctx context.Context) bool {
		_, _, ok := c.First(ctx, d)
		return ok
	}
}

// OnHost is a Condition that holds once the page is on one of the hosts.
func OnHost(d Driver, patterns ...string) Condition {
	return func(ctx context.Context) bool {
		return HostMatches(d.URL(ctx), patterns...)
	}
}

// Any holds when at least one of conds does.
func Any(conds ...Condition) Condition {
	return func(ctx context.Context) bool {
		for _, c := range conds {
			if c(ctx) {
				return true
			}
		}
		return false
	}
}

const (
	ScrollBottomJS = `() => { window.scrollTo(0, document.body.scrollHeight); return document.body.scrollHeight; }`
	ScrollTopJS    = `() => { window.scrollTo(0, 0); return 0; }`
)

// ScrollToLoad scrolls to the bottom until the page height stops changing,
// at most maxIterations times, then back to the top. Lazy lists render their
// remaining rows this way.
func ScrollToLoad(ctx context.Context, d Driver, maxIterations int, pause time.Duration) int {
	last := -1
	iterations := 0
	for ; iterations < maxIterations; iterations++ {
		raw, err := d.Evaluate(ctx, ScrollBottomJS)
		if err != nil {
			break
		}
		var height int
		ok, err := DecodeResult(raw, &height)
		if err != nil || !ok || height == last {
			break
		}
		last = height
		Sleep(ctx, pause)
		if ctx.Err() != nil {
			break
		}
	}
	_, _ = d.Evaluate(ctx, ScrollTopJS)
	return iterations
}
