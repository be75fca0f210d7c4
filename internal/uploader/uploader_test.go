package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

type recordingPublisher struct {
	mu          sync.Mutex
	published   map[string]storage.SymbolState
	unpublished []string
	states      []model.CycleState
	u           *Uploader
	entered     chan struct{}
	release     chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{published: make(map[string]storage.SymbolState)}
}

func (p *recordingPublisher) Publish(ctx context.Context, state storage.SymbolState) error {
	if p.entered != nil {
		close(p.entered)
		p.entered = nil
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[state.Record.Name] = state
	if p.u != nil {
		p.states = append(p.states, p.u.State())
	}
	return nil
}

func (p *recordingPublisher) Unpublish(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.published, symbol)
	p.unpublished = append(p.unpublished, symbol)
	return nil
}

func row(day int, price int64) model.DataRow {
	v := decimal.NewFromInt(price)
	return model.DataRow{
		Symbol: "XYZ",
		Time:   time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:   v,
		High:   v,
		Low:    v,
		Close:  v,
		Volume: decimal.NewFromInt(10),
	}
}

func addXYZ() model.ChangeSet {
	cs := model.NewChangeSet("test", time.Now())
	cs.Symbols = []model.SymbolChange{{Op: model.OpAdd, Record: model.SymbolRecord{Name: "XYZ", Exchange: "TEST"}}}
	return cs
}

func dataXYZ(rows ...model.DataRow) model.ChangeSet {
	cs := model.NewChangeSet("test", time.Now())
	cs.Data = []model.DataChange{{Symbol: "XYZ", Upserts: rows}}
	return cs
}

func removeXYZ() model.ChangeSet {
	cs := model.NewChangeSet("test", time.Now())
	cs.Symbols = []model.SymbolChange{{Op: model.OpRemove, Record: model.SymbolRecord{Name: "XYZ"}}}
	cs.Data = []model.DataChange{{Symbol: "XYZ", RemoveFile: true}}
	return cs
}

func newUploader(store *storage.MemoryStore, pub Publisher) *Uploader {
	return New(store, store, pub, Options{ConflictRetries: 2}, zerolog.Nop())
}

func enqueue(t *testing.T, store *storage.MemoryStore, sets ...model.ChangeSet) {
	t.Helper()
	for _, cs := range sets {
		if err := store.Enqueue(context.Background(), cs); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
}

func pendingCount(t *testing.T, store *storage.MemoryStore) int {
	t.Helper()
	pending, err := store.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	return len(pending)
}

func TestRunCycleMetadataOnlyIsQueryableWithNoRows(t *testing.T) {
	store := storage.NewMemoryStore()
	enqueue(t, store, addXYZ())

	cycle, err := newUploader(store, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if cycle.Collected != 1 || cycle.Acked != 1 {
		t.Fatalf("cycle = %+v, want 1 collected and acked", cycle)
	}

	state, err := store.Symbol(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	if !state.Live || state.RowCount != 0 {
		t.Fatalf("state = %+v, want live with zero rows", state)
	}
	if state.Record.Session != "24x7" || state.Record.PriceScale != 100 {
		t.Errorf("defaults not applied: %+v", state.Record)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestRunCycleReapplyDoesNotDuplicateRows(t *testing.T) {
	store := storage.NewMemoryStore()
	up := newUploader(store, nil)
	enqueue(t, store, addXYZ())
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	data := dataXYZ(row(1, 10), row(2, 11))
	for i := 0; i < 2; i++ {
		enqueue(t, store, data)
		if _, err := up.RunCycle(context.Background()); err != nil {
			t.Fatalf("data cycle %d: %v", i, err)
		}
	}

	rows, err := store.Rows(context.Background(), "XYZ", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}

func TestRunCycleRemovesSymbol(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := newRecordingPublisher()
	up := newUploader(store, pub)

	enqueue(t, store, addXYZ())
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("add cycle: %v", err)
	}
	enqueue(t, store, dataXYZ(row(1, 10)))
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("data cycle: %v", err)
	}
	if _, ok := pub.published["XYZ"]; !ok {
		t.Fatal("expected XYZ to be published")
	}

	enqueue(t, store, removeXYZ())
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("remove cycle: %v", err)
	}

	state, _ := store.Symbol(context.Background(), "XYZ")
	if state.Live || state.RowCount != 0 {
		t.Fatalf("state = %+v, want removed", state)
	}
	live, _ := store.Symbols(context.Background())
	if len(live) != 0 {
		t.Errorf("live symbols = %d, want 0", len(live))
	}
	if _, ok := pub.published["XYZ"]; ok {
		t.Error("XYZ still published after removal")
	}
}

func TestRunCycleRemovalWinsWithinCycle(t *testing.T) {
	store := storage.NewMemoryStore()
	enqueue(t, store, addXYZ(), removeXYZ())

	if _, err := newUploader(store, nil).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	state, _ := store.Symbol(context.Background(), "XYZ")
	if state.Live {
		t.Fatalf("state = %+v, want not live", state)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestRunCycleKeepsFailedChangeSetPending(t *testing.T) {
	store := storage.NewMemoryStore()
	boom := errors.New("disk full")
	store.FailApply = func(m storage.Mutation) error {
		if m.Symbol == "XYZ" {
			return boom
		}
		return nil
	}

	other := model.NewChangeSet("test", time.Now())
	other.Symbols = []model.SymbolChange{{Op: model.OpAdd, Record: model.SymbolRecord{Name: "ABC", Exchange: "TEST"}}}
	enqueue(t, store, addXYZ(), other)

	up := newUploader(store, nil)
	cycle, err := up.RunCycle(context.Background())
	if !errors.Is(err, model.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if _, ok := cycle.Failed["XYZ"]; !ok {
		t.Fatalf("failed = %v, want XYZ", cycle.Failed)
	}
	if cycle.Acked != 1 {
		t.Errorf("acked = %d, want 1", cycle.Acked)
	}

	pending, _ := store.Pending(context.Background())
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Errorf("pending = %+v, want one recorded attempt", pending[0])
	}

	store.FailApply = nil
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("pending after retry = %d, want 0", n)
	}
	state, _ := store.Symbol(context.Background(), "XYZ")
	if !state.Live {
		t.Error("XYZ not live after retry")
	}
}

func TestRunCycleRetriesVersionConflict(t *testing.T) {
	store := storage.NewMemoryStore()
	conflicts := 2
	store.FailApply = func(m storage.Mutation) error {
		if conflicts > 0 {
			conflicts--
			return model.ErrVersionConflict
		}
		return nil
	}
	enqueue(t, store, addXYZ())

	if _, err := newUploader(store, nil).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	state, _ := store.Symbol(context.Background(), "XYZ")
	if !state.Live {
		t.Fatal("XYZ not applied after conflict retries")
	}
}

func TestRunCycleGivesUpAfterConflictRetries(t *testing.T) {
	store := storage.NewMemoryStore()
	store.FailApply = func(m storage.Mutation) error { return model.ErrVersionConflict }
	enqueue(t, store, addXYZ())

	cycle, err := newUploader(store, nil).RunCycle(context.Background())
	if !errors.Is(err, model.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if !errors.Is(cycle.Failed["XYZ"], model.ErrVersionConflict) {
		t.Errorf("failure = %v, want ErrVersionConflict", cycle.Failed["XYZ"])
	}
	if n := pendingCount(t, store); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestStateMachine(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := newRecordingPublisher()
	up := newUploader(store, pub)
	pub.u = up

	if up.State() != model.StateIdle {
		t.Fatalf("initial state = %s, want idle", up.State())
	}
	enqueue(t, store, addXYZ())
	if _, err := up.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(pub.states) != 1 || pub.states[0] != model.StateUploading {
		t.Errorf("states during publish = %v, want [uploading]", pub.states)
	}
	if up.State() != model.StateIdle {
		t.Errorf("final state = %s, want idle", up.State())
	}
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := newRecordingPublisher()
	pub.entered = make(chan struct{})
	pub.release = make(chan struct{})
	entered := pub.entered
	up := newUploader(store, pub)
	enqueue(t, store, addXYZ())

	done := make(chan error, 1)
	go func() {
		_, err := up.RunCycle(context.Background())
		done <- err
	}()

	<-entered
	if _, err := up.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("overlapping cycle err = %v, want ErrCycleInProgress", err)
	}
	close(pub.release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestRunCycleEmptyQueue(t *testing.T) {
	store := storage.NewMemoryStore()
	cycle, err := newUploader(store, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if cycle.Collected != 0 || !cycle.Succeeded() {
		t.Errorf("cycle = %+v, want empty success", cycle)
	}
}
