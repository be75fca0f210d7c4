package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a violation or failure.
type Kind string

const (
	KindSchema        Kind = "SchemaViolation"
	KindOrdering      Kind = "OrderingViolation"
	KindDuplicateKey  Kind = "DuplicateKey"
	KindUploadFailure Kind = "UploadFailure"
)

var (
	// ErrSchema marks malformed or missing fields.
	ErrSchema = errors.New("schema violation")
	// ErrOrdering marks data submitted before its symbol is live.
	ErrOrdering = errors.New("ordering violation")
	// ErrDuplicateKey marks a symbol name or timestamp collision.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUpload marks a transient storage-tier failure.
	ErrUpload = errors.New("upload failure")
	// ErrVersionConflict is returned when a compare-and-swap loses.
	ErrVersionConflict = errors.New("version conflict")
)

// Sentinel maps a kind onto its sentinel error.
func (k Kind) Sentinel() error {
	switch k {
	case KindSchema:
		return ErrSchema
	case KindOrdering:
		return ErrOrdering
	case KindDuplicateKey:
		return ErrDuplicateKey
	case KindUploadFailure:
		return ErrUpload
	default:
		return fmt.Errorf("unknown violation kind %q", string(k))
	}
}

// Violation is one reportable problem with a submission.
type Violation struct {
	Kind    Kind   `json:"kind"`
	Symbol  string `json:"symbol,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	var b strings.Builder
	b.WriteString(string(v.Kind))
	loc := v.File
	if loc != "" && v.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, v.Line)
	}
	if loc != "" {
		b.WriteString(" [" + loc + "]")
	}
	if v.Symbol != "" {
		b.WriteString(" " + v.Symbol)
	}
	if v.Field != "" {
		b.WriteString("." + v.Field)
	}
	b.WriteString(": " + v.Message)
	return b.String()
}

// Violations is a list that can be returned as an error.
type Violations []Violation

func (vs Violations) Error() string {
	if len(vs) == 0 {
		return "no violations"
	}
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}

// Is lets errors.Is match the sentinel of any contained kind.
func (vs Violations) Is(target error) bool {
	for _, v := range vs {
		if v.Kind.Sentinel() == target {
			return true
		}
	}
	return false
}

// HasKind reports whether any violation has kind k.
func (vs Violations) HasKind(k Kind) bool {
	for _, v := range vs {
		if v.Kind == k {
			return true
		}
	}
	return false
}

// Err returns nil for an empty list.
func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	return vs
}
