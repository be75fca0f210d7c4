// Package uploader applies queued change sets to the storage tier.
//
// Each cycle moves Idle -> Collecting -> Uploading -> Idle. Symbols are applied
// one at a time with compare-and-swap, all-or-nothing per symbol. A change set
// leaves the queue only once every symbol it touches has applied; anything
// else is retried on the next cycle.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while one runs.
var ErrCycleInProgress = errors.New("uploader: cycle already in progress")

// Publisher mirrors applied symbols into a serving cache.
type Publisher interface {
	Publish(ctx context.Context, state storage.SymbolState) error
	Unpublish(ctx context.Context, symbol string) error
}

// Options tune the uploader.
type Options struct {
	ConflictRetries int
	AdvisoryLockKey int64
	CycleTimeout    time.Duration
}

// Uploader drains the queue into the storage tier.
type Uploader struct {
	tier      storage.Tier
	queue     storage.Queue
	publisher Publisher
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	cycleMu sync.Mutex
	stateMu sync.RWMutex
	state   model.CycleState
}

// New constructs an Uploader. publisher may be nil.
func New(tier storage.Tier, queue storage.Queue, publisher Publisher, opts Options, logger zerolog.Logger) *Uploader {
	var locker storage.AdvisoryLocker
	if l, ok := tier.(storage.AdvisoryLocker); ok {
		locker = l
	}
	return &Uploader{
		tier:      tier,
		queue:     queue,
		publisher: publisher,
		locker:    locker,
		opts:      opts,
		logger:    logger.With().Str("component", "uploader").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		state:     model.StateIdle,
	}
}

// State reports the current position in the cycle state machine.
func (u *Uploader) State() model.CycleState {
	u.stateMu.RLock()
	defer u.stateMu.RUnlock()
	return u.state
}

func (u *Uploader) setState(s model.CycleState) {
	u.stateMu.Lock()
	u.state = s
	u.stateMu.Unlock()
	u.logger.Debug().Str("state", string(s)).Msg("uploader state")
}

// Tick adapts RunCycle to the scheduler.
func (u *Uploader) Tick(ctx context.Context, _ time.Time) error {
	_, err := u.RunCycle(ctx)
	return err
}

// RunCycle performs one ingestion cycle. The returned error wraps
// model.ErrUpload when any symbol failed to apply.
func (u *Uploader) RunCycle(ctx context.Context) (model.IngestionCycle, error) {
	if !u.cycleMu.TryLock() {
		return model.IngestionCycle{}, ErrCycleInProgress
	}
	defer u.cycleMu.Unlock()

	cycle := model.IngestionCycle{ID: uuid.New(), StartedAt: u.now(), Failed: make(map[string]error)}
	log := u.logger.With().Str("cycle", cycle.ID.String()).Logger()

	if u.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.CycleTimeout)
		defer cancel()
	}

	unlock, proceed, err := u.acquireLock(ctx)
	if err != nil {
		return cycle, err
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return cycle, nil
	}
	if unlock != nil {
		defer unlock()
	}

	defer u.setState(model.StateIdle)
	u.setState(model.StateCollecting)

	pending, err := u.queue.Pending(ctx)
	if err != nil {
		return cycle, fmt.Errorf("collect pending change sets: %w", err)
	}
	cycle.Collected = len(pending)
	if len(pending) == 0 {
		cycle.FinishedAt = u.now()
		log.Debug().Msg("nothing to ingest")
		return cycle, nil
	}

	u.setState(model.StateUploading)

	failedSets := make(map[uuid.UUID]error)
	for _, plan := range buildPlans(pending) {
		if err := u.applyPlan(ctx, plan); err != nil {
			cycle.Failed[plan.symbol] = err
			for _, id := range plan.changeSets {
				if _, seen := failedSets[id]; !seen {
					failedSets[id] = err
				}
			}
			log.Error().Err(err).Str("symbol", plan.symbol).Msg("symbol upload failed; will retry next cycle")
			continue
		}
		cycle.Applied = append(cycle.Applied, plan.symbol)
	}

	for _, pc := range pending {
		id := pc.ChangeSet.ID
		if failErr, failed := failedSets[id]; failed {
			if err := u.queue.RecordFailure(ctx, id, failErr.Error()); err != nil {
				log.Error().Err(err).Str("changeset", id.String()).Msg("failed to record upload failure")
			}
			continue
		}
		if err := u.queue.Ack(ctx, id); err != nil {
			log.Error().Err(err).Str("changeset", id.String()).Msg("failed to ack change set")
			continue
		}
		cycle.Acked++
	}

	cycle.FinishedAt = u.now()
	log.Info().
		Int("collected", cycle.Collected).
		Int("acked", cycle.Acked).
		Int("applied_symbols", len(cycle.Applied)).
		Int("failed_symbols", len(cycle.Failed)).
		Dur("elapsed", cycle.FinishedAt.Sub(cycle.StartedAt)).
		Msg("ingestion cycle finished")

	if !cycle.Succeeded() {
		return cycle, fmt.Errorf("%d symbol(s) failed to apply: %w", len(cycle.Failed), model.ErrUpload)
	}
	return cycle, nil
}

func (u *Uploader) applyPlan(ctx context.Context, plan *symbolPlan) error {
	attempts := u.opts.ConflictRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		state, err := u.tier.Symbol(ctx, plan.symbol)
		if err != nil {
			return fmt.Errorf("read %s: %w", plan.symbol, err)
		}

		m := plan.mutation(state.Version)
		if m.Empty() {
			return nil
		}
		if _, err := u.tier.Apply(ctx, m); err != nil {
			lastErr = err
			if errors.Is(err, model.ErrVersionConflict) {
				continue
			}
			return err
		}

		u.publish(ctx, plan.symbol)
		return nil
	}
	return lastErr
}

func (u *Uploader) publish(ctx context.Context, symbol string) {
	if u.publisher == nil {
		return
	}
	state, err := u.tier.Symbol(ctx, symbol)
	if err == nil {
		if state.Live {
			err = u.publisher.Publish(ctx, state)
		} else {
			err = u.publisher.Unpublish(ctx, symbol)
		}
	}
	if err != nil {
		u.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to refresh serving cache")
	}
}

func (u *Uploader) acquireLock(ctx context.Context) (func(), bool, error) {
	if u.opts.AdvisoryLockKey == 0 || u.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := u.locker.TryAdvisoryLock(ctx, u.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
