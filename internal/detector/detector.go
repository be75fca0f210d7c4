// Package detector diffs two repository snapshots into a ChangeSet.
package detector

import (
	"sort"
	"time"

	"seed-ingest/internal/model"
	"seed-ingest/internal/seedrepo"
)

// Detect compares the previously accepted snapshot with a new submission.
//
// A part missing from next (nil Symbols or nil Data) is treated as unchanged.
// A present part is authoritative: anything absent from it was removed.
// Symbol changes precede data changes, and both are sorted by symbol.
func Detect(prev, next seedrepo.Snapshot, source string, now time.Time) model.ChangeSet {
	cs := model.NewChangeSet(source, now)
	if next.HasMetadata() {
		cs.Symbols = diffSymbols(prev.Symbols, next.Symbols)
	}
	if next.HasData() {
		cs.Data = diffData(prev.Data, next.Data)
	}
	return cs
}

func diffSymbols(prev, next map[string]model.SymbolRecord) []model.SymbolChange {
	var changes []model.SymbolChange
	for name, rec := range next {
		old, existed := prev[name]
		switch {
		case !existed:
			changes = append(changes, model.SymbolChange{Op: model.OpAdd, Record: rec})
		case !old.Equal(rec):
			changes = append(changes, model.SymbolChange{Op: model.OpModify, Record: rec})
		}
	}
	for name, rec := range prev {
		if _, ok := next[name]; !ok {
			changes = append(changes, model.SymbolChange{Op: model.OpRemove, Record: rec})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Record.Name < changes[j].Record.Name
	})
	return changes
}

func diffData(prev, next map[string][]model.DataRow) []model.DataChange {
	var changes []model.DataChange
	for symbol, rows := range next {
		dc := diffRows(symbol, prev[symbol], rows)
		if !dc.Empty() {
			changes = append(changes, dc)
		}
	}
	for symbol := range prev {
		if _, ok := next[symbol]; !ok {
			changes = append(changes, model.DataChange{Symbol: symbol, RemoveFile: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Symbol < changes[j].Symbol
	})
	return changes
}

func diffRows(symbol string, prev, next []model.DataRow) model.DataChange {
	dc := model.DataChange{Symbol: symbol}

	old := make(map[int64]model.DataRow, len(prev))
	for _, row := range prev {
		old[row.Time.UnixNano()] = row
	}

	seen := make(map[int64]struct{}, len(next))
	for _, row := range next {
		key := row.Time.UnixNano()
		seen[key] = struct{}{}
		if existing, ok := old[key]; ok && existing.Equal(row) {
			continue
		}
		dc.Upserts = append(dc.Upserts, row)
	}
	for key, row := range old {
		if _, ok := seen[key]; !ok {
			dc.Deletes = append(dc.Deletes, row.Time)
		}
	}

	sort.Slice(dc.Upserts, func(i, j int) bool { return dc.Upserts[i].Time.Before(dc.Upserts[j].Time) })
	sort.Slice(dc.Deletes, func(i, j int) bool { return dc.Deletes[i].Before(dc.Deletes[j]) })
	return dc
}
