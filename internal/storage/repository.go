package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const (
	selectSymbolSQL = `SELECT
        name, exchange, description, currency, session, timezone, type, pricescale,
        version, live, updated_at,
        (SELECT COUNT(*) FROM symbol_rows r WHERE r.symbol = s.name),
        (SELECT MIN(ts) FROM symbol_rows r WHERE r.symbol = s.name),
        (SELECT MAX(ts) FROM symbol_rows r WHERE r.symbol = s.name)
    FROM symbols s
    WHERE name = $1;`

	listLiveSymbolsSQL = `SELECT
        name, exchange, description, currency, session, timezone, type, pricescale,
        version, live, updated_at,
        (SELECT COUNT(*) FROM symbol_rows r WHERE r.symbol = s.name),
        (SELECT MIN(ts) FROM symbol_rows r WHERE r.symbol = s.name),
        (SELECT MAX(ts) FROM symbol_rows r WHERE r.symbol = s.name)
    FROM symbols s
    WHERE live
    ORDER BY name;`

	lockSymbolSQL = `SELECT version, live FROM symbols WHERE name = $1 FOR UPDATE;`

	upsertSymbolSQL = `INSERT INTO symbols (
        name, exchange, description, currency, session, timezone, type, pricescale, version, live, updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,now()
    )
    ON CONFLICT (name) DO UPDATE
    SET
        exchange    = EXCLUDED.exchange,
        description = EXCLUDED.description,
        currency    = EXCLUDED.currency,
        session     = EXCLUDED.session,
        timezone    = EXCLUDED.timezone,
        type        = EXCLUDED.type,
        pricescale  = EXCLUDED.pricescale,
        version     = EXCLUDED.version,
        live        = TRUE,
        updated_at  = now();`

	insertTombstoneSQL = `INSERT INTO symbols (name, version, live) VALUES ($1, $2, FALSE)
    ON CONFLICT (name) DO NOTHING;`

	bumpVersionSQL = `UPDATE symbols SET version = $2, updated_at = now() WHERE name = $1;`

	retireSymbolSQL = `UPDATE symbols SET live = FALSE WHERE name = $1;`

	upsertRowSQL = `INSERT INTO symbol_rows (symbol, ts, open, high, low, close, volume)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (symbol, ts) DO UPDATE
    SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
        close = EXCLUDED.close, volume = EXCLUDED.volume;`

	deleteRowsSQL = `DELETE FROM symbol_rows WHERE symbol = $1 AND ts = ANY($2);`

	clearRowsSQL = `DELETE FROM symbol_rows WHERE symbol = $1;`

	listRowsSQL = `SELECT ts, open, high, low, close, volume
    FROM symbol_rows
    WHERE symbol = $1
      AND ($2::timestamptz IS NULL OR ts >= $2)
      AND ($3::timestamptz IS NULL OR ts < $3)
    ORDER BY ts;`

	enqueueSQL = `INSERT INTO pending_changesets (id, source, payload, enqueued_at)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (id) DO NOTHING;`

	listPendingSQL = `SELECT seq, payload, attempts, last_error, enqueued_at
    FROM pending_changesets
    ORDER BY seq;`

	ackSQL = `DELETE FROM pending_changesets WHERE id = $1;`

	recordFailureSQL = `UPDATE pending_changesets
    SET attempts = attempts + 1, last_error = $2
    WHERE id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL Backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a lost unlock is released when the session ends
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Symbol returns the state of name; unknown symbols have Version 0.
func (s *Store) Symbol(ctx context.Context, name string) (SymbolState, error) {
	pool, err := s.getPool()
	if err != nil {
		return SymbolState{}, err
	}
	state, err := scanSymbolState(pool.QueryRow(ctx, selectSymbolSQL, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return SymbolState{Record: model.SymbolRecord{Name: name}}, nil
	}
	if err != nil {
		return SymbolState{}, fmt.Errorf("select symbol: %w", err)
	}
	return state, nil
}

// Symbols lists live symbols by name.
func (s *Store) Symbols(ctx context.Context) ([]SymbolState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listLiveSymbolsSQL)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	states := make([]SymbolState, 0)
	for rows.Next() {
		state, scanErr := scanSymbolState(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		states = append(states, state)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

// Rows returns rows within [from, to); zero bounds are open.
func (s *Store) Rows(ctx context.Context, name string, from, to time.Time) ([]model.DataRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRowsSQL, name, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	out := make([]model.DataRow, 0)
	for rows.Next() {
		var (
			ts                                  time.Time
			openS, highS, lowS, closeS, volumeS string
		)
		if err := rows.Scan(&ts, &openS, &highS, &lowS, &closeS, &volumeS); err != nil {
			return nil, err
		}
		row := model.DataRow{Symbol: name, Time: ts.UTC()}
		for _, f := range []struct {
			raw string
			dst *decimal.Decimal
		}{{openS, &row.Open}, {highS, &row.High}, {lowS, &row.Low}, {closeS, &row.Close}, {volumeS, &row.Volume}} {
			d, convErr := decimal.NewFromString(f.raw)
			if convErr != nil {
				return nil, fmt.Errorf("parse row value: %w", convErr)
			}
			*f.dst = d
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Apply performs m inside one transaction, locking the symbol row.
func (s *Store) Apply(ctx context.Context, m Mutation) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current int64
		live    bool
	)
	switch err := tx.QueryRow(ctx, lockSymbolSQL, m.Symbol).Scan(&current, &live); {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("lock symbol %s: %w", m.Symbol, err)
	}
	if current != m.ExpectedVersion {
		return current, fmt.Errorf("apply %s: expected version %d, found %d: %w", m.Symbol, m.ExpectedVersion, current, model.ErrVersionConflict)
	}
	next := current + 1

	if m.Upsert != nil {
		rec := m.Upsert.WithDefaults()
		if _, err := tx.Exec(ctx, upsertSymbolSQL,
			m.Symbol, rec.Exchange, rec.Description, rec.Currency,
			rec.Session, rec.Timezone, rec.Type, rec.PriceScale, next,
		); err != nil {
			return current, fmt.Errorf("upsert symbol %s: %w", m.Symbol, err)
		}
		live = true
	} else {
		if _, err := tx.Exec(ctx, insertTombstoneSQL, m.Symbol, next); err != nil {
			return current, fmt.Errorf("insert symbol %s: %w", m.Symbol, err)
		}
	}

	if len(m.UpsertRows) > 0 {
		if !live {
			return current, fmt.Errorf("apply %s: rows for a symbol that is not live: %w", m.Symbol, model.ErrOrdering)
		}
		if err := upsertRows(ctx, tx, m.Symbol, m.UpsertRows); err != nil {
			return current, err
		}
	}
	if len(m.DeleteRows) > 0 {
		if _, err := tx.Exec(ctx, deleteRowsSQL, m.Symbol, m.DeleteRows); err != nil {
			return current, fmt.Errorf("delete rows %s: %w", m.Symbol, err)
		}
	}
	if m.ClearRows || m.RemoveSymbol {
		if _, err := tx.Exec(ctx, clearRowsSQL, m.Symbol); err != nil {
			return current, fmt.Errorf("clear rows %s: %w", m.Symbol, err)
		}
	}
	if m.RemoveSymbol {
		if _, err := tx.Exec(ctx, retireSymbolSQL, m.Symbol); err != nil {
			return current, fmt.Errorf("retire symbol %s: %w", m.Symbol, err)
		}
	}
	if _, err := tx.Exec(ctx, bumpVersionSQL, m.Symbol, next); err != nil {
		return current, fmt.Errorf("bump version %s: %w", m.Symbol, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("commit apply %s: %w", m.Symbol, err)
	}
	return next, nil
}

func upsertRows(ctx context.Context, tx pgx.Tx, symbol string, rows []model.DataRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertRowSQL, symbol, r.Time.UTC(),
			r.Open.String(), r.High.String(), r.Low.String(), r.Close.String(), r.Volume.String())
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert rows %s: %w", symbol, err)
		}
	}
	return results.Close()
}

// Enqueue stores cs; enqueuing the same ID twice is a no-op.
func (s *Store) Enqueue(ctx context.Context, cs model.ChangeSet) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}
	if _, err := pool.Exec(ctx, enqueueSQL, cs.ID, cs.Source, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("enqueue change set: %w", err)
	}
	return nil
}

// Pending returns queued change sets in acceptance order.
func (s *Store) Pending(ctx context.Context) ([]PendingChangeSet, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listPendingSQL)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	out := make([]PendingChangeSet, 0)
	for rows.Next() {
		var (
			p       PendingChangeSet
			payload []byte
			lastErr sql.NullString
		)
		if err := rows.Scan(&p.Seq, &payload, &p.Attempts, &lastErr, &p.EnqueuedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &p.ChangeSet); err != nil {
			return nil, fmt.Errorf("decode change set %d: %w", p.Seq, err)
		}
		if lastErr.Valid {
			p.LastError = lastErr.String
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Ack removes a confirmed change set.
func (s *Store) Ack(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, ackSQL, id)
	if err != nil {
		return fmt.Errorf("ack change set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure notes a failed attempt without dropping the change set.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, msg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, recordFailureSQL, id, msg)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSymbolState(row pgx.Row) (SymbolState, error) {
	var (
		st          SymbolState
		first, last sql.NullTime
	)
	if err := row.Scan(
		&st.Record.Name,
		&st.Record.Exchange,
		&st.Record.Description,
		&st.Record.Currency,
		&st.Record.Session,
		&st.Record.Timezone,
		&st.Record.Type,
		&st.Record.PriceScale,
		&st.Version,
		&st.Live,
		&st.UpdatedAt,
		&st.RowCount,
		&first,
		&last,
	); err != nil {
		return SymbolState{}, err
	}
	if first.Valid {
		st.FirstTime = first.Time.UTC()
	}
	if last.Valid {
		st.LastTime = last.Time.UTC()
	}
	return st, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

var (
	_ Backend        = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
