// Package scraper runs ordered extraction strategies.
//
// Every kind of data a portal exposes (courses, assignments, announcements)
// can usually be read more than one way: an internal json endpoint, the
// structured markup of the portal's own list page, or a looser scan over raw
// html. Each way is a Strategy. They are tried in order and the first one
// that produces anything wins. A strategy that errors or panics counts as
// producing nothing, so a broken page layout only ever costs one strategy.
package scraper

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("classbridge.lib.scraper")

// Reporter is the subset of telemetry a chain reports through.
type Reporter interface {
	ReportWarning(id string, params ...any)
	ReportCount(id string, count int64)
}

type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) ([]T, error)
}

func Of[T any](name string, run func(ctx context.Context) ([]T, error)) Strategy[T] {
	return Strategy[T]{Name: name, Run: run}
}

// FirstNonEmpty returns the output of the first strategy that yields at least
// one item, and the name of that strategy. Both are empty when none did.
func FirstNonEmpty[T any](ctx context.Context, tel Reporter, kind string, strategies ...Strategy[T]) ([]T, string) {
	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil, ""
		}
		out, err := run(ctx, kind, s)
		tel.ReportCount(kind+"."+s.Name, int64(len(out)))
		if err != nil {
			tel.ReportWarning(kind+"."+s.Name, err)
		}
		if len(out) > 0 {
			return out, s.Name
		}
	}
	return nil, ""
}

func run[T any](ctx context.Context, kind string, s Strategy[T]) (out []T, err error) {
	ctx, span := tracer.Start(ctx, kind, trace.WithAttributes(
		attribute.String("strategy", s.Name),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("strategy panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("items", len(out)))
	}()

	return s.Run(ctx)
}

// Each applies parse to every input, skipping inputs it rejects. A panic in
// one parse drops only that input.
func Each[In, Out any](inputs []In, parse func(In) (Out, bool)) []Out {
	var out []Out
	for _, in := range inputs {
		if v, ok := safeParse(in, parse); ok {
			out = append(out, v)
		}
	}
	return out
}

func safeParse[In, Out any](in In, parse func(In) (Out, bool)) (v Out, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return parse(in)
}
