package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"seed-ingest/internal/model"
	"seed-ingest/internal/seedrepo"
)

// Export writes a symbol's stored rows as seed CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	var from, to time.Time
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if opts.To != nil {
		to = opts.To.UTC()
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return errors.New("from must be before to")
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	state, err := backend.Symbol(ctx, opts.Symbol)
	if err != nil {
		return err
	}
	if !state.Live {
		return fmt.Errorf("symbol %s is not live", opts.Symbol)
	}

	rows, err := backend.Rows(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no rows found for export window")
		return nil
	}

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(rows) < 2 {
			return fmt.Errorf("chart needs at least 2 rows, %s has %d in range", opts.Symbol, len(rows))
		}
		downsampled := downsampleRows(rows, opts.MaxPoints)
		a.Logger.Info().Int("total", len(rows)).Int("plotted", len(downsampled)).Msg("rendering chart")
		if err := writeRowsPNG(opts.PNGPath, state.Record, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRows(rows []model.DataRow, max int) []model.DataRow {
	if max <= 1 || len(rows) <= max {
		return rows
	}

	result := make([]model.DataRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

// writeRowsCSV emits the seed repository format so exports can be committed back.
func writeRowsCSV(path string, rows []model.DataRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return seedrepo.WriteCSV(file, rows)
}

func writeRowsPNG(path string, rec model.SymbolRecord, rows []model.DataRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	closes := make([]float64, len(rows))
	volumes := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = row.Time
		closes[i] = row.Close.InexactFloat64()
		volumes[i] = row.Volume.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4g")
	}
	graph := chart.Chart{
		Title:  rec.Name,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Close",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Volume",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "Volume",
				XValues: x,
				YValues: volumes,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
