package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "classbridge",
	Short: "classbridge signs into Google Classroom and Brightspace and reports the work that is still due.",
}

type cliFlags struct {
	config        string
	username      string
	password      string
	headless      bool
	debug         bool
	classes       []string
	db            string
	noClassroom   bool
	noBrightspace bool
	artifactDir   string
}

var flags cliFlags

func init() {
	bindFlags(rootCmd.PersistentFlags())
}

func bindFlags(f *pflag.FlagSet) {
	f.StringVar(&flags.config, "config", "config.json5", "The json5 config file, <name>.local.json5 is merged over it.")
	f.StringVar(&flags.username, "username", "", "The school account, overrides TDSB_USERNAME.")
	f.StringVar(&flags.password, "password", "", "The school account password, overrides TDSB_PASSWORD.")
	f.BoolVar(&flags.headless, "headless", false, "Run the browser without a window.")
	f.BoolVar(&flags.debug, "debug", false, "Log every step and keep screenshots and page snapshots.")
	f.StringSliceVar(&flags.classes, "classes", nil, "Subject codes of this semester's classes, overrides SEMESTER_CLASSES.")
	f.BoolVar(&flags.noClassroom, "no-classroom", false, "Skip Google Classroom.")
	f.BoolVar(&flags.noBrightspace, "no-brightspace", false, "Skip Brightspace.")
	f.StringVar(&flags.artifactDir, "artifacts", "", "Where debug artifacts are written, defaults to .dev/runs/<run id>.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
