package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion service on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single ingestion cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context())
	},
}
