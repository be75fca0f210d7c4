package cache

import (
	"testing"
	"time"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

func TestSummaryFields(t *testing.T) {
	state := storage.SymbolState{
		Record:    model.SymbolRecord{Name: "XYZ", Exchange: "TEST", PriceScale: 100},
		Version:   3,
		RowCount:  2,
		FirstTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastTime:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	fields := SummaryFields(state)
	if len(fields)%2 != 0 {
		t.Fatalf("fields has odd length %d", len(fields))
	}
	got := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1]
	}

	want := map[string]string{
		"symbol":     "XYZ",
		"pricescale": "100",
		"version":    "3",
		"rows":       "2",
		"first":      "20240101T",
		"last":       "20240102T",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %s", k, got[k], v)
		}
	}
	if _, ok := got["updated_at"]; ok {
		t.Error("updated_at should be omitted when zero")
	}
}

func TestSummaryFieldsWithoutRows(t *testing.T) {
	fields := SummaryFields(storage.SymbolState{Record: model.SymbolRecord{Name: "XYZ"}})
	for i := 0; i < len(fields); i += 2 {
		if k := fields[i]; k == "first" || k == "last" {
			t.Errorf("unexpected field %v for empty symbol", k)
		}
	}
}

func TestSymbolKey(t *testing.T) {
	if got := SymbolKey("seed", "BTCUSD"); got != "seed:symbol:BTCUSD" {
		t.Errorf("SymbolKey = %q", got)
	}
}
