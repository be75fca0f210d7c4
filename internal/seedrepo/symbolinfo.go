package seedrepo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"seed-ingest/internal/model"
	"seed-ingest/internal/validator"
)

func loadSymbolInfo(dir string) (map[string]model.SymbolRecord, model.Violations, error) {
	files, present, err := listFiles(dir, ".json")
	if err != nil || !present {
		return nil, nil, err
	}

	records := make(map[string]model.SymbolRecord)
	var violations model.Violations
	for _, path := range files {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}

		rel := filepath.Join(SymbolInfoDir, filepath.Base(path))
		raws, vs := DecodeSymbolInfo(payload)
		for i := range vs {
			vs[i].File = rel
		}
		violations = append(violations, vs...)

		for _, raw := range raws {
			rec, vs := validator.ValidateRawRecord(raw)
			for i := range vs {
				vs[i].File = rel
			}
			violations = append(violations, vs...)
			if rec.Name == "" {
				continue
			}
			if _, dup := records[rec.Name]; dup {
				violations = append(violations, model.Violation{
					Kind:    model.KindDuplicateKey,
					Symbol:  rec.Name,
					File:    rel,
					Field:   "symbol",
					Message: "symbol name appears more than once",
				})
				continue
			}
			records[rec.Name] = rec
		}
	}
	return records, violations, nil
}

// DecodeSymbolInfo splits a metadata document into per-symbol raw objects.
// Columnar documents are transposed; scalar columns broadcast to every symbol.
func DecodeSymbolInfo(payload []byte) ([]map[string]any, model.Violations) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, model.Violations{{Kind: model.KindSchema, Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	switch v := doc.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		var violations model.Violations
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				violations = append(violations, model.Violation{
					Kind:    model.KindSchema,
					Message: fmt.Sprintf("entry %d must be an object", i),
				})
				continue
			}
			out = append(out, obj)
		}
		return out, violations
	case map[string]any:
		return transpose(v)
	default:
		return nil, model.Violations{{Kind: model.KindSchema, Message: "metadata must be an object or an array of objects"}}
	}
}

func transpose(doc map[string]any) ([]map[string]any, model.Violations) {
	key := "symbol"
	names, ok := doc[key]
	if !ok {
		key = "name"
		names, ok = doc[key]
	}
	if !ok {
		return nil, model.Violations{{Kind: model.KindSchema, Field: "symbol", Message: "symbol column is required"}}
	}

	column, isColumn := names.([]any)
	if !isColumn {
		return []map[string]any{doc}, nil
	}

	out := make([]map[string]any, len(column))
	for i := range out {
		out[i] = make(map[string]any, len(doc))
	}

	var violations model.Violations
	for field, value := range doc {
		values, isArray := value.([]any)
		if !isArray {
			for i := range out {
				out[i][field] = value
			}
			continue
		}
		if len(values) != len(column) {
			violations = append(violations, model.Violation{
				Kind:    model.KindSchema,
				Field:   field,
				Message: fmt.Sprintf("column has %d values, %s has %d", len(values), key, len(column)),
			})
			continue
		}
		for i := range out {
			out[i][field] = values[i]
		}
	}
	return out, violations
}
