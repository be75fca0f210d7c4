package validator

import (
	"seed-ingest/internal/model"
)

// ValidateChangeSet checks every record and row carried by cs.
func ValidateChangeSet(cs model.ChangeSet) model.Violations {
	var out model.Violations

	records := make([]model.SymbolRecord, 0, len(cs.Symbols))
	for _, sc := range cs.Symbols {
		if sc.Op == model.OpRemove {
			out = append(out, ValidateName(sc.Record.Name)...)
			continue
		}
		records = append(records, sc.Record)
	}
	out = append(out, ValidateRecords(records)...)

	seenData := make(map[string]struct{}, len(cs.Data))
	for _, dc := range cs.Data {
		out = append(out, ValidateName(dc.Symbol)...)
		if _, dup := seenData[dc.Symbol]; dup {
			out = append(out, model.Violation{
				Kind:    model.KindDuplicateKey,
				Symbol:  dc.Symbol,
				Message: "data file submitted more than once",
			})
		}
		seenData[dc.Symbol] = struct{}{}

		for i, row := range dc.Upserts {
			for _, v := range ValidateRow(row) {
				v.Line = i + 1
				out = append(out, v)
			}
			if row.Symbol != dc.Symbol {
				out = append(out, model.Violation{
					Kind:    model.KindSchema,
					Symbol:  dc.Symbol,
					Line:    i + 1,
					Field:   "symbol",
					Message: "row belongs to " + row.Symbol,
				})
			}
		}
		out = append(out, ValidateSeries(dc.Symbol, dc.Upserts)...)
	}
	return out
}
