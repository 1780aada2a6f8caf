package commands

import (
	"errors"
	"fmt"
	"os"

	"classbridge/internal/pipeline"
	"classbridge/lib/configutil"

	"github.com/spf13/cobra"
)

var errNoCredentials = errors.New("username and password are required, set TDSB_USERNAME and TDSB_PASSWORD or pass --username and --password")

// loadConfig layers, lowest first: the config file, .env, the environment,
// then flags given on the command line.
func loadConfig(cmd *cobra.Command) (pipeline.Config, error) {
	cfg, err := configutil.ReadConfig[pipeline.Config](flags.config)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return pipeline.Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := configutil.LoadEnv(".env"); err != nil {
		return pipeline.Config{}, err
	}
	configutil.EnvString("TDSB_USERNAME", &cfg.Username)
	configutil.EnvString("TDSB_PASSWORD", &cfg.Password)
	configutil.EnvList("SEMESTER_CLASSES", &cfg.SubjectCodes)
	configutil.EnvBool("HEADLESS", &cfg.Headless)
	configutil.EnvBool("CLASSBRIDGE_DEBUG", &cfg.Debug)

	set := cmd.Flags().Changed
	if set("username") {
		cfg.Username = flags.username
	}
	if set("password") {
		cfg.Password = flags.password
	}
	if set("headless") {
		cfg.Headless = flags.headless
	}
	if set("debug") {
		cfg.Debug = flags.debug
	}
	if set("classes") {
		cfg.SubjectCodes = flags.classes
	}
	if set("db") {
		cfg.DB = flags.db
	}
	if set("no-classroom") {
		cfg.SkipClassroom = flags.noClassroom
	}
	if set("no-brightspace") {
		cfg.SkipBrightspace = flags.noBrightspace
	}
	if set("artifacts") {
		cfg.ArtifactDir = flags.artifactDir
	}

	if len(cfg.SubjectCodes) == 0 {
		cfg.SubjectCodes = pipeline.DefaultSubjectCodes
	}
	if cfg.Username == "" || cfg.Password == "" {
		return cfg, errNoCredentials
	}
	return cfg, nil
}
