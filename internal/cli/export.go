package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"seed-ingest/internal/app"
	"seed-ingest/internal/model"
)

var (
	exportSymbol    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a symbol's rows as seed CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Symbol:    exportSymbol,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		var err error
		if opts.From, err = parseTimeFlag("from", exportFrom); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportTo); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

// parseTimeFlag accepts RFC3339 or the seed row layouts.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := model.ParseTime(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYYMMDDT[HHMMSS]", name, value)
	}
	return &t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "", "Symbol to export")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp, inclusive (RFC3339 or YYYYMMDDT)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp, exclusive (RFC3339 or YYYYMMDDT)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write seed CSV rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to plot (defaults to config)")
}
