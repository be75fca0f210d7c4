package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seed-ingest/internal/model"
)

// MemoryStore is an in-process Backend used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	symbols map[string]*memSymbol
	queue   []PendingChangeSet
	seq     int64
	now     func() time.Time

	// FailApply, when set, is consulted before each Apply.
	FailApply func(m Mutation) error
}

type memSymbol struct {
	state SymbolState
	rows  map[int64]model.DataRow
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		symbols: make(map[string]*memSymbol),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Symbol returns the state of name; unknown symbols have Version 0.
func (s *MemoryStore) Symbol(ctx context.Context, name string) (SymbolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[name]
	if !ok {
		return SymbolState{Record: model.SymbolRecord{Name: name}}, nil
	}
	return sym.snapshot(), nil
}

// Symbols lists live symbols by name.
func (s *MemoryStore) Symbols(ctx context.Context) ([]SymbolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SymbolState, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if sym.state.Live {
			out = append(out, sym.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.Name < out[j].Record.Name })
	return out, nil
}

// Rows returns rows within [from, to); zero bounds are open.
func (s *MemoryStore) Rows(ctx context.Context, name string, from, to time.Time) ([]model.DataRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[name]
	if !ok || !sym.state.Live {
		return nil, nil
	}
	out := make([]model.DataRow, 0, len(sym.rows))
	for _, row := range sym.rows {
		if !from.IsZero() && row.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !row.Time.Before(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Apply performs m atomically under the store lock.
func (s *MemoryStore) Apply(ctx context.Context, m Mutation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailApply != nil {
		if err := s.FailApply(m); err != nil {
			return 0, err
		}
	}

	cur, ok := s.symbols[m.Symbol]
	current := int64(0)
	if ok {
		current = cur.state.Version
	}
	if current != m.ExpectedVersion {
		return current, fmt.Errorf("apply %s: expected version %d, found %d: %w", m.Symbol, m.ExpectedVersion, current, model.ErrVersionConflict)
	}

	next := &memSymbol{
		state: SymbolState{Record: model.SymbolRecord{Name: m.Symbol}},
		rows:  make(map[int64]model.DataRow),
	}
	if ok {
		next.state = cur.state
		for k, v := range cur.rows {
			next.rows[k] = v
		}
	}

	if m.Upsert != nil {
		next.state.Record = m.Upsert.WithDefaults()
		next.state.Live = true
	}
	if len(m.UpsertRows) > 0 && !next.state.Live {
		return current, fmt.Errorf("apply %s: rows for a symbol that is not live: %w", m.Symbol, model.ErrOrdering)
	}
	for _, row := range m.UpsertRows {
		next.rows[row.Time.UnixNano()] = row
	}
	for _, ts := range m.DeleteRows {
		delete(next.rows, ts.UnixNano())
	}
	if m.ClearRows || m.RemoveSymbol {
		next.rows = make(map[int64]model.DataRow)
	}
	if m.RemoveSymbol {
		next.state.Live = false
	}

	next.state.Version = current + 1
	next.state.UpdatedAt = s.now()
	s.symbols[m.Symbol] = next
	return next.state.Version, nil
}

func (sym *memSymbol) snapshot() SymbolState {
	st := sym.state
	st.RowCount = int64(len(sym.rows))
	st.FirstTime, st.LastTime = time.Time{}, time.Time{}
	for _, row := range sym.rows {
		if st.FirstTime.IsZero() || row.Time.Before(st.FirstTime) {
			st.FirstTime = row.Time
		}
		if row.Time.After(st.LastTime) {
			st.LastTime = row.Time
		}
	}
	return st
}

// Enqueue appends cs; enqueuing the same ID twice is a no-op.
func (s *MemoryStore) Enqueue(ctx context.Context, cs model.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.queue {
		if p.ChangeSet.ID == cs.ID {
			return nil
		}
	}
	s.seq++
	s.queue = append(s.queue, PendingChangeSet{Seq: s.seq, ChangeSet: cs, EnqueuedAt: s.now()})
	return nil
}

// Pending returns queued change sets in acceptance order.
func (s *MemoryStore) Pending(ctx context.Context) ([]PendingChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingChangeSet, len(s.queue))
	copy(out, s.queue)
	return out, nil
}

// Ack removes a confirmed change set.
func (s *MemoryStore) Ack(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.queue {
		if p.ChangeSet.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// RecordFailure notes a failed attempt without dropping the change set.
func (s *MemoryStore) RecordFailure(ctx context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].ChangeSet.ID == id {
			s.queue[i].Attempts++
			s.queue[i].LastError = msg
			return nil
		}
	}
	return ErrNotFound
}

var _ Backend = (*MemoryStore)(nil)
