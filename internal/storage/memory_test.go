package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
)

func dayRow(symbol string, day int) model.DataRow {
	one := decimal.NewFromInt(1)
	return model.DataRow{
		Symbol: symbol,
		Time:   time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:   one,
		High:   one,
		Low:    one,
		Close:  one,
		Volume: decimal.Zero,
	}
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}
	v, err := store.Apply(ctx, Mutation{Symbol: "XYZ", Upsert: &rec})
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}

	if _, err := store.Apply(ctx, Mutation{Symbol: "XYZ", ExpectedVersion: 0, Upsert: &rec}); !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("stale apply err = %v, want ErrVersionConflict", err)
	}

	state, err := store.Symbol(ctx, "XYZ")
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	if !state.Live || state.Record.Session != model.DefaultSession || state.RowCount != 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestMemoryStoreRowsRequireLiveSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Apply(ctx, Mutation{Symbol: "XYZ", UpsertRows: []model.DataRow{dayRow("XYZ", 1)}})
	if !errors.Is(err, model.ErrOrdering) {
		t.Fatalf("err = %v, want ErrOrdering", err)
	}
	if state, _ := store.Symbol(ctx, "XYZ"); state.Version != 0 {
		t.Errorf("failed apply changed version to %d", state.Version)
	}
}

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}
	rows := []model.DataRow{dayRow("XYZ", 1), dayRow("XYZ", 2)}

	v, err := store.Apply(ctx, Mutation{Symbol: "XYZ", Upsert: &rec, UpsertRows: rows})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := store.Apply(ctx, Mutation{Symbol: "XYZ", ExpectedVersion: v, UpsertRows: rows}); err != nil {
		t.Fatalf("reapply: %v", err)
	}

	got, _ := store.Rows(ctx, "XYZ", time.Time{}, time.Time{})
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
}

func TestMemoryStoreRemoveKeepsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}

	v, _ := store.Apply(ctx, Mutation{Symbol: "XYZ", Upsert: &rec, UpsertRows: []model.DataRow{dayRow("XYZ", 1)}})
	v, err := store.Apply(ctx, Mutation{Symbol: "XYZ", ExpectedVersion: v, RemoveSymbol: true})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	state, _ := store.Symbol(ctx, "XYZ")
	if state.Live || state.RowCount != 0 || state.Version != v {
		t.Errorf("state after remove = %+v", state)
	}
	if syms, _ := store.Symbols(ctx); len(syms) != 0 {
		t.Errorf("Symbols = %+v, want none", syms)
	}
}

func TestMemoryStoreRowsWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}
	rows := []model.DataRow{dayRow("XYZ", 3), dayRow("XYZ", 1), dayRow("XYZ", 2)}
	if _, err := store.Apply(ctx, Mutation{Symbol: "XYZ", Upsert: &rec, UpsertRows: rows}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := store.Rows(ctx, "XYZ", rows[2].Time, rows[0].Time)
	if len(got) != 1 || got[0].Time.Day() != 2 {
		t.Fatalf("window = %+v, want day 2 only", got)
	}

	state, _ := store.Symbol(ctx, "XYZ")
	if state.FirstTime.Day() != 1 || state.LastTime.Day() != 3 {
		t.Errorf("first/last = %v/%v", state.FirstTime, state.LastTime)
	}
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := model.NewChangeSet("a", time.Now())
	b := model.NewChangeSet("b", time.Now())
	for _, cs := range []model.ChangeSet{a, b, a} {
		if err := store.Enqueue(ctx, cs); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	pending, _ := store.Pending(ctx)
	if len(pending) != 2 || pending[0].ChangeSet.ID != a.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if err := store.RecordFailure(ctx, b.ID, "boom"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := store.Ack(ctx, a.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := store.Ack(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ack err = %v, want ErrNotFound", err)
	}

	pending, _ = store.Pending(ctx)
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "boom" {
		t.Errorf("pending = %+v", pending)
	}
}
