package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI implements API on top of the default slog logger.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(*out, fmt.Sprintf("params.%d", i), p)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	pairs := []any{"id", id}
	s.formatParams(&pairs, params)
	slog.Error("broken component", pairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	pairs := []any{"id", id}
	s.formatParams(&pairs, params)
	slog.Warn("warning", pairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	pairs := []any{}
	s.formatParams(&pairs, params)
	slog.Debug(message, pairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}
