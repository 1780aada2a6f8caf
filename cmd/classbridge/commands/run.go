package commands

import (
	"log/slog"
	"time"

	"classbridge/internal/pipeline"
	"classbridge/lib/serviceutil"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	bindRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func bindRunFlags(f *pflag.FlagSet) {
	f.StringVar(&flags.db, "db", "", "Also write the results of the run to this sqlite database.")
}

var runCmd = &cobra.Command{
	Use:   "run [--db <path/to/results.db>]",
	Short: "Signs into both portals and prints every class and the work still due in them.",
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(cmd)
		defer s.close()

		t1 := time.Now()
		result, err := pipeline.Run(s.ctx, s.cfg, s.deps)
		if err != nil {
			s.close()
			serviceutil.Fatal("failed to start the browser", err)
		}
		t2 := time.Now()
		slog.Info("run finished", "seconds", t2.Sub(t1).Seconds(), "items", len(result.Items))

		s.out.Render(result, t2)
	},
}
