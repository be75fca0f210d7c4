package storage

import (
	"time"

	"github.com/google/uuid"

	"seed-ingest/internal/model"
)

// SymbolState is the storage tier's view of one symbol. Version is bumped on
// every applied mutation and survives removal so stale writers still lose.
type SymbolState struct {
	Record    model.SymbolRecord
	Version   int64
	Live      bool
	RowCount  int64
	FirstTime time.Time
	LastTime  time.Time
	UpdatedAt time.Time
}

// Mutation is applied to one symbol atomically. The steps run in field order:
// metadata upsert, row upserts, row deletes, row clearing, symbol removal.
type Mutation struct {
	Symbol          string
	ExpectedVersion int64
	Upsert          *model.SymbolRecord
	UpsertRows      []model.DataRow
	DeleteRows      []time.Time
	ClearRows       bool
	RemoveSymbol    bool
}

// Empty reports whether the mutation would change nothing.
func (m Mutation) Empty() bool {
	return m.Upsert == nil && len(m.UpsertRows) == 0 && len(m.DeleteRows) == 0 && !m.ClearRows && !m.RemoveSymbol
}

// PendingChangeSet is a queued change set awaiting ingestion.
type PendingChangeSet struct {
	Seq        int64
	ChangeSet  model.ChangeSet
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
}

// PendingID is a shorthand used in logs.
func (p PendingChangeSet) PendingID() uuid.UUID { return p.ChangeSet.ID }
