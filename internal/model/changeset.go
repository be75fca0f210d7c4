package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SymbolOp is the kind of metadata change.
type SymbolOp string

const (
	OpAdd    SymbolOp = "add"
	OpModify SymbolOp = "modify"
	OpRemove SymbolOp = "remove"
)

// SymbolChange is one metadata addition, modification or removal.
type SymbolChange struct {
	Op     SymbolOp     `json:"op"`
	Record SymbolRecord `json:"record"`
}

// DataChange carries row-level changes for one symbol's data file.
type DataChange struct {
	Symbol     string      `json:"symbol"`
	Upserts    []DataRow   `json:"upserts,omitempty"`
	Deletes    []time.Time `json:"deletes,omitempty"`
	RemoveFile bool        `json:"remove_file,omitempty"`
}

// Empty reports whether the change carries nothing to apply.
func (d DataChange) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Deletes) == 0 && !d.RemoveFile
}

// ChangeSet is the batch of changes detected between two repository states.
type ChangeSet struct {
	ID        uuid.UUID      `json:"id"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
	Symbols   []SymbolChange `json:"symbols,omitempty"`
	Data      []DataChange   `json:"data,omitempty"`
}

// NewChangeSet allocates an empty change set for source.
func NewChangeSet(source string, now time.Time) ChangeSet {
	return ChangeSet{ID: uuid.New(), Source: source, CreatedAt: now.UTC()}
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Symbols) == 0 && len(c.Data) == 0
}

// Touched returns the sorted set of symbol names affected by the change set.
func (c ChangeSet) Touched() []string {
	seen := make(map[string]struct{}, len(c.Symbols)+len(c.Data))
	for _, s := range c.Symbols {
		seen[s.Record.Name] = struct{}{}
	}
	for _, d := range c.Data {
		seen[d.Symbol] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SymbolChangeFor returns the metadata change for name, if any.
func (c ChangeSet) SymbolChangeFor(name string) (SymbolChange, bool) {
	for _, s := range c.Symbols {
		if s.Record.Name == name {
			return s, true
		}
	}
	return SymbolChange{}, false
}

// DataChangeFor returns the data change for name, if any.
func (c ChangeSet) DataChangeFor(name string) (DataChange, bool) {
	for _, d := range c.Data {
		if d.Symbol == name {
			return d, true
		}
	}
	return DataChange{}, false
}

// RowCount counts upserted rows across all data changes.
func (c ChangeSet) RowCount() int {
	n := 0
	for _, d := range c.Data {
		n += len(d.Upserts)
	}
	return n
}
