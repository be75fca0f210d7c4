// Package storage holds the storage tier served to the charting frontend and
// the queue of accepted change sets waiting for ingestion.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"seed-ingest/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a queued change set is unknown.
	ErrNotFound = errors.New("storage: not found")
)

// Tier is the versioned symbol store. Apply is compare-and-swap per symbol and
// returns model.ErrVersionConflict when ExpectedVersion is stale.
type Tier interface {
	Symbol(ctx context.Context, name string) (SymbolState, error)
	Symbols(ctx context.Context) ([]SymbolState, error)
	Rows(ctx context.Context, name string, from, to time.Time) ([]model.DataRow, error)
	Apply(ctx context.Context, m Mutation) (int64, error)
}

// Queue holds accepted change sets until the uploader confirms them.
type Queue interface {
	Enqueue(ctx context.Context, cs model.ChangeSet) error
	Pending(ctx context.Context) ([]PendingChangeSet, error)
	Ack(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, msg string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend bundles a tier and its queue.
type Backend interface {
	Tier
	Queue
	Close()
}
