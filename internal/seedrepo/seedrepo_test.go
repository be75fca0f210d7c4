package seedrepo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestLoadColumnarMetadataAndData(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "symbol_info/seed_demo.json", `{
		"symbol": ["BTC_DEV_ACTIVITY", "ETH_DEV_ACTIVITY"],
		"description": ["Bitcoin dev activity", "Ethereum dev activity"],
		"exchange": "SEED_DEMO",
		"pricescale": 100
	}`)
	writeFile(t, root, "data/BTC_DEV_ACTIVITY.csv", "20240101T,1,2,0.5,1.5,0\n20240102T,1.5,3,1,2,10\n")

	snap, vs, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if len(snap.Symbols) != 2 {
		t.Fatalf("Symbols = %d, want 2", len(snap.Symbols))
	}
	eth := snap.Symbols["ETH_DEV_ACTIVITY"]
	if eth.Exchange != "SEED_DEMO" || eth.Description != "Ethereum dev activity" || eth.PriceScale != 100 {
		t.Errorf("ETH record = %+v", eth)
	}
	rows := snap.Data["BTC_DEV_ACTIVITY"]
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if !rows[1].High.Equal(decimal.NewFromInt(3)) {
		t.Errorf("High = %s, want 3", rows[1].High)
	}
}

func TestLoadListMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "symbol_info/list.json", `[{"symbol":"XYZ","exchange":"TEST"},{"name":"ABC","exchange":"TEST"}]`)

	snap, vs, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if _, ok := snap.Symbols["ABC"]; !ok {
		t.Error("ABC missing")
	}
	if snap.HasData() {
		t.Error("absent data directory should leave Data nil")
	}
}

func TestLoadPartialSubmission(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/XYZ.csv", "20240101T,1,1,1,1,0\n")

	snap, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.HasMetadata() {
		t.Error("absent symbol_info should leave Symbols nil")
	}
	if !snap.HasData() {
		t.Error("data directory should be present")
	}
}

func TestLoadReportsViolations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "symbol_info/a.json", `{"symbol":["XYZ","XYZ"],"exchange":"TEST","description":["only one"]}`)
	writeFile(t, root, "data/XYZ.csv", "20240102T,1,1,1,1,0\n20240101T,1,1,1,1,0\nbad,row\n")
	writeFile(t, root, "data/lower.csv", "20240101T,1,1,1,1,0\n")

	snap, vs, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, kind := range []model.Kind{model.KindSchema, model.KindDuplicateKey, model.KindOrdering} {
		if !vs.HasKind(kind) {
			t.Errorf("missing %s in %v", kind, vs)
		}
	}
	if _, ok := snap.Data["lower"]; ok {
		t.Error("invalid file name should not be loaded")
	}
	if got := len(snap.Data["XYZ"]); got != 2 {
		t.Errorf("XYZ rows = %d, want 2", got)
	}
	for _, v := range vs {
		if v.Kind == model.KindOrdering && v.Line != 2 {
			t.Errorf("ordering violation line = %d, want 2", v.Line)
		}
	}
}

func TestLoadMissingRepository(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("missing directory should be an error")
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	rows := []model.DataRow{
		{Symbol: "XYZ", Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2), Volume: decimal.Zero},
		{Symbol: "XYZ", Time: time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), Open: decimal.NewFromInt(2), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(2), Close: decimal.NewFromInt(2), Volume: decimal.NewFromInt(5)},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "20240101T,1,2,1,2,0\n20240101T153000,") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	got, vs, err := ReadCSV("XYZ", &buf)
	if err != nil || len(vs) != 0 {
		t.Fatalf("ReadCSV: %v %v", err, vs)
	}
	if len(got) != 2 || !got[1].Equal(rows[1]) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
