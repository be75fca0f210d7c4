package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp layouts used by seed data files.
const (
	DailyLayout    = "20060102T"
	IntradayLayout = "20060102T150405"
)

// DataRow is one OHLCV observation of a symbol.
type DataRow struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Equal compares every field numerically.
func (r DataRow) Equal(other DataRow) bool {
	return r.Symbol == other.Symbol &&
		r.Time.Equal(other.Time) &&
		r.Open.Equal(other.Open) &&
		r.High.Equal(other.High) &&
		r.Low.Equal(other.Low) &&
		r.Close.Equal(other.Close) &&
		r.Volume.Equal(other.Volume)
}

// FormatTime renders t in the shortest layout that preserves it.
func FormatTime(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(DailyLayout)
	}
	return t.Format(IntradayLayout)
}

// ParseTime accepts the daily and intraday layouts.
func ParseTime(v string) (time.Time, error) {
	layout := DailyLayout
	if len(v) > len(DailyLayout) {
		layout = IntradayLayout
	}
	t, err := time.ParseInLocation(layout, v, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
