package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"seed-ingest/internal/app"
)

var (
	showSymbol string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display live symbols and pending change sets, or rows of one symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Symbol: showSymbol,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Show the latest rows of this symbol")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of entries to display")
}
