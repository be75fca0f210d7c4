package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

// Show prints live symbols and the queue, or the latest rows of one symbol.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if opts.Symbol != "" {
		return a.showSymbol(ctx, backend, opts)
	}

	symbols, err := backend.Symbols(ctx)
	if err != nil {
		return err
	}
	pending, err := backend.Pending(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	if len(symbols) == 0 {
		fmt.Fprintln(writer, "no live symbols")
	} else {
		fmt.Fprintln(writer, "Symbol\tExchange\tType\tRows\tFirst\tLast\tVersion")
		for i, st := range symbols {
			if opts.Limit > 0 && i >= opts.Limit {
				fmt.Fprintf(writer, "... %d more\n", len(symbols)-i)
				break
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
				st.Record.Name,
				st.Record.Exchange,
				st.Record.Type,
				st.RowCount,
				formatTime(st.FirstTime),
				formatTime(st.LastTime),
				st.Version,
			)
		}
	}

	fmt.Fprintf(writer, "\nPending change sets: %d\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(writer, "%s\t%s\t%s\tattempts=%d\t%s\n",
			p.ChangeSet.ID,
			p.ChangeSet.Source,
			strings.Join(p.ChangeSet.Touched(), ","),
			p.Attempts,
			sanitizeInline(p.LastError),
		)
	}
	return writer.Flush()
}

func (a *App) showSymbol(ctx context.Context, tier storage.Tier, opts ShowOptions) error {
	rows, err := tier.Rows(ctx, opts.Symbol, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(a.Out, "no rows for %s\n", opts.Symbol)
		return nil
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[len(rows)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tOpen\tHigh\tLow\tClose\tVolume")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			model.FormatTime(row.Time),
			formatDecimal(row.Open),
			formatDecimal(row.High),
			formatDecimal(row.Low),
			formatDecimal(row.Close),
			formatDecimal(row.Volume),
		)
	}
	return writer.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return model.FormatTime(t)
}

func formatDecimal(d decimal.Decimal) string {
	return d.String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
