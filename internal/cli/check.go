package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"seed-ingest/internal/app"
)

var (
	checkRepo   string
	checkBase   string
	checkSource string
	submitPR    int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a seed repository checkout and report violations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), checkOptions())
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [checkout...]",
	Short: "Validate checkouts and queue each one for ingestion when accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitPR < 0 {
			return fmt.Errorf("--pr must not be negative")
		}
		if len(args) > 0 && checkBase != "" {
			return fmt.Errorf("--base cannot be combined with extra checkouts")
		}
		return getApp().Submit(cmd.Context(), app.SubmitOptions{
			CheckOptions: checkOptions(),
			PR:           submitPR,
			Extra:        args,
		})
	},
}

func checkOptions() app.CheckOptions {
	return app.CheckOptions{
		RepoDir: checkRepo,
		BaseDir: checkBase,
		Source:  checkSource,
	}
}

func init() {
	for _, cmd := range []*cobra.Command{checkCmd, submitCmd} {
		cmd.Flags().StringVar(&checkRepo, "repo", ".", "Path to the submitted seed repository checkout")
		cmd.Flags().StringVar(&checkBase, "base", "", "Path to the base checkout (defaults to the live storage state)")
		cmd.Flags().StringVar(&checkSource, "source", "", "Label recorded on the change set, e.g. a pull request URL")
	}
	submitCmd.Flags().IntVar(&submitPR, "pr", 0, "Pull request number to comment on")
}
