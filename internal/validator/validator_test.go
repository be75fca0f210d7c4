package validator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
)

func TestValidateRecordAcceptsMinimal(t *testing.T) {
	vs := ValidateRecord(model.SymbolRecord{Name: "XYZ", Exchange: "TEST"})
	if len(vs) != 0 {
		t.Fatalf("minimal record should pass, got %v", vs)
	}
}

func TestValidateRecordAcceptsFull(t *testing.T) {
	rec := model.SymbolRecord{
		Name:        "BTC_SENTIMENT_POSITIVE_TOTAL",
		Exchange:    "SEED_CRYPTO",
		Description: "Bitcoin positive sentiment",
		Currency:    "USD",
		Session:     "0930-1600:23456,1700-1800",
		Timezone:    "America/New_York",
		Type:        "crypto",
		PriceScale:  1000,
	}
	if vs := ValidateRecord(rec); len(vs) != 0 {
		t.Fatalf("full record should pass, got %v", vs)
	}
}

func TestValidateRecordMissingRequired(t *testing.T) {
	cases := map[string]model.SymbolRecord{
		"no name":     {Exchange: "TEST"},
		"no exchange": {Name: "XYZ"},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			vs := ValidateRecord(rec)
			if len(vs) == 0 {
				t.Fatal("expected violations")
			}
			if !vs.HasKind(model.KindSchema) {
				t.Errorf("kinds = %v, want SchemaViolation", vs)
			}
		})
	}
}

func TestValidateRecordOutOfRange(t *testing.T) {
	cases := map[string]model.SymbolRecord{
		"lower-case name": {Name: "xyz", Exchange: "TEST"},
		"currency":        {Name: "XYZ", Exchange: "TEST", Currency: "usd"},
		"timezone":        {Name: "XYZ", Exchange: "TEST", Timezone: "Mars/Olympus"},
		"session":         {Name: "XYZ", Exchange: "TEST", Session: "0930-2561"},
		"type":            {Name: "XYZ", Exchange: "TEST", Type: "warrant"},
		"pricescale":      {Name: "XYZ", Exchange: "TEST", PriceScale: 250},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			if vs := ValidateRecord(rec); len(vs) == 0 {
				t.Fatalf("%+v should be rejected", rec)
			}
		})
	}
}

func TestValidateRecordsDuplicate(t *testing.T) {
	vs := ValidateRecords([]model.SymbolRecord{
		{Name: "XYZ", Exchange: "TEST"},
		{Name: "XYZ", Exchange: "OTHER"},
	})
	if !vs.HasKind(model.KindDuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", vs)
	}
}

func TestValidateRawRecordWrongTypes(t *testing.T) {
	rec, vs := ValidateRawRecord(map[string]any{
		"symbol":     "XYZ",
		"exchange":   42.0,
		"pricescale": "100",
	})
	if rec.Name != "XYZ" {
		t.Errorf("Name = %q, want XYZ", rec.Name)
	}
	if len(vs) < 2 {
		t.Fatalf("expected type violations, got %v", vs)
	}
}

func TestValidateRawRecordNameAlias(t *testing.T) {
	rec, vs := ValidateRawRecord(map[string]any{"name": "XYZ", "exchange": "TEST", "pricescale": 100.0})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if rec.Name != "XYZ" || rec.PriceScale != 100 {
		t.Errorf("rec = %+v", rec)
	}
}

func TestValidateRawRecordNeverPanics(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"symbol": nil},
		{"symbol": []any{"A"}, "exchange": map[string]any{}},
		{"symbol": "A", "pricescale": 1e300},
		{"symbol": "A", "pricescale": -1.0},
	}
	for _, in := range inputs {
		if _, vs := ValidateRawRecord(in); len(vs) == 0 {
			t.Errorf("%v should produce violations", in)
		}
	}
}

func TestParseRow(t *testing.T) {
	row, vs := ParseRow("XYZ", 1, []string{"20240102T", "1", "2", "0.5", "1.5", "100"})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !row.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", row.Time, want)
	}
	if !row.Close.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Close = %s, want 1.5", row.Close)
	}
}

func TestParseRowIntraday(t *testing.T) {
	row, vs := ParseRow("XYZ", 1, []string{"20240102T133000", "1", "1", "1", "1", "0"})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if row.Time.Hour() != 13 || row.Time.Minute() != 30 {
		t.Errorf("Time = %v", row.Time)
	}
}

func TestParseRowRejects(t *testing.T) {
	cases := map[string][]string{
		"columns":    {"20240102T", "1", "2"},
		"timestamp":  {"2024-01-02", "1", "2", "0.5", "1.5", "100"},
		"not number": {"20240102T", "one", "2", "0.5", "1.5", "100"},
		"empty":      {"20240102T", "", "2", "0.5", "1.5", "100"},
		"high":       {"20240102T", "3", "2", "0.5", "1.5", "100"},
		"low":        {"20240102T", "1", "2", "1.2", "1.5", "100"},
		"volume":     {"20240102T", "1", "2", "0.5", "1.5", "-1"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			_, vs := ParseRow("XYZ", 7, fields)
			if len(vs) == 0 {
				t.Fatal("expected violations")
			}
			if vs[0].Line != 7 {
				t.Errorf("Line = %d, want 7", vs[0].Line)
			}
		})
	}
}

func TestValidateSeries(t *testing.T) {
	day := func(d int) model.DataRow {
		return model.DataRow{Symbol: "XYZ", Time: time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)}
	}

	if vs := ValidateSeries("XYZ", []model.DataRow{day(1), day(2), day(3)}); len(vs) != 0 {
		t.Fatalf("increasing series should pass, got %v", vs)
	}
	if vs := ValidateSeries("XYZ", []model.DataRow{day(1), day(1)}); !vs.HasKind(model.KindDuplicateKey) {
		t.Errorf("repeated timestamp should be DuplicateKey, got %v", vs)
	}
	if vs := ValidateSeries("XYZ", []model.DataRow{day(2), day(1)}); !vs.HasKind(model.KindOrdering) {
		t.Errorf("decreasing timestamp should be OrderingViolation, got %v", vs)
	}
}

func TestValidateChangeSet(t *testing.T) {
	cs := model.NewChangeSet("test", time.Now())
	cs.Symbols = []model.SymbolChange{
		{Op: model.OpAdd, Record: model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}},
		{Op: model.OpRemove, Record: model.SymbolRecord{Name: "OLD"}},
	}
	if vs := ValidateChangeSet(cs); len(vs) != 0 {
		t.Fatalf("valid change set rejected: %v", vs)
	}

	cs.Data = []model.DataChange{{
		Symbol:  "XYZ",
		Upserts: []model.DataRow{{Symbol: "ABC", Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}}
	if vs := ValidateChangeSet(cs); len(vs) == 0 {
		t.Fatal("row for a different symbol should be rejected")
	}
}
