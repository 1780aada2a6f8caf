package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutExporters(t *testing.T) {
	tel, err := Setup(context.Background(), "test:classbridge", Config{})
	require.NoError(t, err)
	require.False(t, tel.Enabled())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestInitSlog(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var out bytes.Buffer
	InitSlogTo(&out, false)
	slog.Debug("hidden")
	slog.Info("shown")
	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "shown")

	out.Reset()
	InitSlogTo(&out, true)
	slog.Debug("visible now")
	require.Contains(t, out.String(), "visible now")
}
