package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/internal/driver/roddriver"
	"classbridge/internal/pipeline"
	"classbridge/internal/report"
	"classbridge/lib/dumputil"
	"classbridge/lib/serviceutil"
	libtelemetry "classbridge/lib/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// session is everything a command needs before it starts the pipeline.
type session struct {
	ctx  context.Context
	cfg  pipeline.Config
	deps pipeline.Deps
	out  report.Renderer

	cleanup []func()
}

func (s session) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func openRod(ctx context.Context, opts driver.Options) (driver.Driver, error) {
	d, err := roddriver.New(ctx, opts, telemetry.SlogAPI{})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// newSession fails the process on any setup error, no browser exists yet.
func newSession(cmd *cobra.Command) session {
	cfg, err := loadConfig(cmd)
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}
	libtelemetry.InitSlog(cfg.Debug)

	s := session{cfg: cfg}

	ctx, cancel := serviceutil.SignalContext(cmd.Context())
	s.ctx = ctx
	s.cleanup = append(s.cleanup, cancel)

	exporters, err := libtelemetry.SetupFromEnv(ctx, "classbridge")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
	}
	if exporters.Enabled() {
		libtelemetry.InstrumentPerfStats(ctx, 15*time.Second)
		s.cleanup = append(s.cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := exporters.Shutdown(ctx); err != nil {
				slog.Warn("failed to flush telemetry", "err", err)
			}
		})
	}

	runID := uuid.NewString()
	if s.cfg.Debug && s.cfg.ArtifactDir == "" {
		s.cfg.ArtifactDir = filepath.Join(".dev", "runs", runID)
	}

	s.deps = pipeline.DefaultDeps(openRod, telemetry.SlogAPI{})
	s.deps.RunID = runID
	if s.cfg.Debug {
		s.deps.Sink = dumputil.NewFilesystemOutput(filepath.Join(s.cfg.ArtifactDir, "api"))
		slog.Info("writing debug artifacts", "dir", s.cfg.ArtifactDir)
	}

	s.out = report.New(os.Stdout, report.Options{Color: isTerminal(os.Stdout)})
	slog.Debug("starting run", "id", runID, "username", s.cfg.Username, "classes", s.cfg.SubjectCodes)
	return s
}
