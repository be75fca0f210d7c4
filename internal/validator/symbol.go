// Package validator checks symbol metadata and OHLCV rows against the seed
// formats. Every function is pure and safe for concurrent use; problems are
// returned as violations, never as panics.
package validator

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"seed-ingest/internal/model"
)

// MaxNameLength bounds full symbol names.
const MaxNameLength = 64

var (
	namePattern     = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_.:-]*$`)
	exchangePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	sessionPattern  = regexp.MustCompile(`^\d{4}-\d{4}(:[1-7]+)?$`)
)

var symbolTypes = map[string]struct{}{
	"stock":    {},
	"index":    {},
	"forex":    {},
	"futures":  {},
	"bitcoin":  {},
	"crypto":   {},
	"fund":     {},
	"dr":       {},
	"bond":     {},
	"economic": {},
}

// ValidateName checks a full symbol name.
func ValidateName(name string) []model.Violation {
	switch {
	case strings.TrimSpace(name) == "":
		return []model.Violation{{Kind: model.KindSchema, Field: "symbol", Message: "symbol name is required"}}
	case len(name) > MaxNameLength:
		return []model.Violation{{Kind: model.KindSchema, Symbol: name, Field: "symbol", Message: fmt.Sprintf("symbol name longer than %d characters", MaxNameLength)}}
	case !namePattern.MatchString(name):
		return []model.Violation{{Kind: model.KindSchema, Symbol: name, Field: "symbol", Message: "symbol name must be upper-case letters, digits or _ . : -"}}
	}
	return nil
}

// ValidateRecord checks one record. An empty result means the record passes.
func ValidateRecord(r model.SymbolRecord) model.Violations {
	var out model.Violations
	out = append(out, ValidateName(r.Name)...)

	bad := func(field, format string, args ...any) {
		out = append(out, model.Violation{
			Kind:    model.KindSchema,
			Symbol:  r.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	switch {
	case r.Exchange == "":
		bad("exchange", "exchange is required")
	case !exchangePattern.MatchString(r.Exchange):
		bad("exchange", "exchange %q must be upper-case letters, digits or _", r.Exchange)
	}

	if r.Currency != "" && !currencyPattern.MatchString(r.Currency) {
		bad("currency", "currency %q must be a three-letter upper-case code", r.Currency)
	}

	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil || strings.EqualFold(r.Timezone, "local") {
			bad("timezone", "unknown timezone %q", r.Timezone)
		}
	}

	if r.Session != "" && !validSession(r.Session) {
		bad("session", "session %q must be 24x7 or HHMM-HHMM[:days] ranges", r.Session)
	}

	if r.Type != "" {
		if _, ok := symbolTypes[r.Type]; !ok {
			bad("type", "unsupported type %q", r.Type)
		}
	}

	if r.PriceScale != 0 && !powerOfTen(r.PriceScale) {
		bad("pricescale", "pricescale %d must be a power of 10 between 1 and 1e15", r.PriceScale)
	}

	return out
}

// ValidateRecords checks every record and flags repeated names.
func ValidateRecords(records []model.SymbolRecord) model.Violations {
	var out model.Violations
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		out = append(out, ValidateRecord(r)...)
		if r.Name == "" {
			continue
		}
		if _, dup := seen[r.Name]; dup {
			out = append(out, model.Violation{
				Kind:    model.KindDuplicateKey,
				Symbol:  r.Name,
				Field:   "symbol",
				Message: "symbol name appears more than once",
			})
			continue
		}
		seen[r.Name] = struct{}{}
	}
	return out
}

// ValidateRawRecord decodes a JSON object into a record, reporting wrong types
// instead of failing.
func ValidateRawRecord(raw map[string]any) (model.SymbolRecord, model.Violations) {
	var (
		rec model.SymbolRecord
		out model.Violations
	)

	name, nameViolation := stringField(raw, "symbol", "")
	if _, ok := raw["symbol"]; !ok {
		name, nameViolation = stringField(raw, "name", "")
	}
	rec.Name = name
	out = appendIf(out, nameViolation)

	fields := []struct {
		key string
		dst *string
	}{
		{"exchange", &rec.Exchange},
		{"description", &rec.Description},
		{"currency", &rec.Currency},
		{"session", &rec.Session},
		{"timezone", &rec.Timezone},
		{"type", &rec.Type},
	}
	for _, f := range fields {
		v, violation := stringField(raw, f.key, rec.Name)
		*f.dst = v
		out = appendIf(out, violation)
	}
	if _, ok := raw["session"]; !ok {
		v, violation := stringField(raw, "session-regular", rec.Name)
		rec.Session = v
		out = appendIf(out, violation)
	}

	if v, ok := raw["pricescale"]; ok && v != nil {
		n, isNum := v.(float64)
		switch {
		case !isNum:
			out = append(out, model.Violation{Kind: model.KindSchema, Symbol: rec.Name, Field: "pricescale", Message: fmt.Sprintf("pricescale must be a number, got %s", typeName(v))})
		case n != math.Trunc(n) || n < 1 || n > 1e15:
			out = append(out, model.Violation{Kind: model.KindSchema, Symbol: rec.Name, Field: "pricescale", Message: fmt.Sprintf("pricescale %v must be a power of 10 between 1 and 1e15", n)})
		default:
			rec.PriceScale = int64(n)
		}
	}

	out = append(out, ValidateRecord(rec)...)
	return rec, out
}

func stringField(raw map[string]any, key, symbol string) (string, *model.Violation) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", &model.Violation{
			Kind:    model.KindSchema,
			Symbol:  symbol,
			Field:   key,
			Message: fmt.Sprintf("%s must be a string, got %s", key, typeName(v)),
		}
	}
	return strings.TrimSpace(s), nil
}

func appendIf(out model.Violations, v *model.Violation) model.Violations {
	if v == nil {
		return out
	}
	return append(out, *v)
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func validSession(s string) bool {
	if s == model.DefaultSession {
		return true
	}
	for _, part := range strings.Split(s, ",") {
		if !sessionPattern.MatchString(part) {
			return false
		}
		if !validClock(part[0:4]) || !validClock(part[5:9]) {
			return false
		}
	}
	return true
}

func validClock(hhmm string) bool {
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[2]-'0')*10 + int(hhmm[3]-'0')
	return h <= 24 && m < 60 && !(h == 24 && m != 0)
}

func powerOfTen(n int64) bool {
	if n < 1 || n > 1_000_000_000_000_000 {
		return false
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}
