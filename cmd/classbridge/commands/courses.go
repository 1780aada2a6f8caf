package commands

import (
	"classbridge/internal/pipeline"
	"classbridge/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Signs into both portals and only lists this semester's classes.",
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(cmd)
		defer s.close()

		courses, err := pipeline.Courses(s.ctx, s.cfg, s.deps)
		if err != nil {
			s.close()
			serviceutil.Fatal("failed to start the browser", err)
		}
		s.out.Classes(courses)
	},
}
