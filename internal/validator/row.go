package validator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
)

// RowColumns is the number of fields in a seed CSV row.
const RowColumns = 6

var rowFields = [RowColumns]string{"time", "open", "high", "low", "close", "volume"}

// ParseRow decodes one CSV record for symbol. line is used for reporting only.
func ParseRow(symbol string, line int, fields []string) (model.DataRow, model.Violations) {
	row := model.DataRow{Symbol: symbol}
	bad := func(field, format string, args ...any) model.Violation {
		return model.Violation{
			Kind:    model.KindSchema,
			Symbol:  symbol,
			Line:    line,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		}
	}

	if len(fields) != RowColumns {
		return row, model.Violations{bad("", "expected %d columns, got %d", RowColumns, len(fields))}
	}

	var out model.Violations
	ts, err := model.ParseTime(strings.TrimSpace(fields[0]))
	if err != nil {
		out = append(out, bad("time", "timestamp %q must be YYYYMMDDT or YYYYMMDDTHHMMSS", fields[0]))
	}
	row.Time = ts

	values := [RowColumns - 1]*decimal.Decimal{&row.Open, &row.High, &row.Low, &row.Close, &row.Volume}
	for i, dst := range values {
		raw := strings.TrimSpace(fields[i+1])
		if raw == "" {
			out = append(out, bad(rowFields[i+1], "%s is required", rowFields[i+1]))
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			out = append(out, bad(rowFields[i+1], "%s %q is not a number", rowFields[i+1], raw))
			continue
		}
		*dst = d
	}
	if len(out) > 0 {
		return row, out
	}

	for _, v := range ValidateRow(row) {
		v.Line = line
		out = append(out, v)
	}
	return row, out
}

// ValidateRow checks the value ranges of one row.
func ValidateRow(r model.DataRow) model.Violations {
	var out model.Violations
	bad := func(field, format string, args ...any) {
		out = append(out, model.Violation{
			Kind:    model.KindSchema,
			Symbol:  r.Symbol,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if r.Symbol == "" {
		bad("symbol", "row has no symbol")
	}
	if r.Time.IsZero() {
		bad("time", "timestamp is required")
	}
	if r.Volume.IsNegative() {
		bad("volume", "volume %s cannot be negative", r.Volume)
	}
	if r.Low.GreaterThan(r.High) {
		bad("low", "low %s is above high %s", r.Low, r.High)
	}
	if r.Open.GreaterThan(r.High) || r.Close.GreaterThan(r.High) {
		bad("high", "high %s is below open %s or close %s", r.High, r.Open, r.Close)
	}
	if r.Open.LessThan(r.Low) || r.Close.LessThan(r.Low) {
		bad("low", "low %s is above open %s or close %s", r.Low, r.Open, r.Close)
	}
	return out
}

// ValidateSeries checks that rows are strictly increasing in time. rows must
// be in file order; line numbers are derived as index+1.
func ValidateSeries(symbol string, rows []model.DataRow) model.Violations {
	var out model.Violations
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].Time, rows[i].Time
		switch {
		case cur.Equal(prev):
			out = append(out, model.Violation{
				Kind:    model.KindDuplicateKey,
				Symbol:  symbol,
				Line:    i + 1,
				Field:   "time",
				Message: fmt.Sprintf("timestamp %s repeats the previous row", model.FormatTime(cur)),
			})
		case cur.Before(prev):
			out = append(out, model.Violation{
				Kind:    model.KindOrdering,
				Symbol:  symbol,
				Line:    i + 1,
				Field:   "time",
				Message: fmt.Sprintf("timestamp %s is earlier than the previous row %s", model.FormatTime(cur), model.FormatTime(prev)),
			})
		}
	}
	return out
}
