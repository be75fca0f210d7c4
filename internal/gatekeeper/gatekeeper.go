// Package gatekeeper decides whether a change set may be merged and queued for
// ingestion.
package gatekeeper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
	"seed-ingest/internal/validator"
)

// Decision is the outcome of reviewing one change set.
type Decision struct {
	ChangeSet  model.ChangeSet
	Accepted   bool
	Queued     bool
	Violations model.Violations
}

// Err returns the violations as an error when the change set was rejected.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return d.Violations.Err()
}

// Options tune the gatekeeper.
type Options struct {
	Workers int
}

// Gatekeeper validates change sets against the schema and the storage tier.
type Gatekeeper struct {
	tier   storage.Tier
	queue  storage.Queue
	opts   Options
	locks  *symbolLocks
	logger zerolog.Logger
}

// New constructs a Gatekeeper.
func New(tier storage.Tier, queue storage.Queue, opts Options, logger zerolog.Logger) *Gatekeeper {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Gatekeeper{
		tier:   tier,
		queue:  queue,
		opts:   opts,
		locks:  newSymbolLocks(),
		logger: logger.With().Str("component", "gatekeeper").Logger(),
	}
}

// Review validates cs and enqueues it when accepted. prior carries violations
// found while loading the submission; any prior violation rejects cs and
// replaces the content check, which would report the same rows again.
// The returned error is reserved for storage failures.
func (g *Gatekeeper) Review(ctx context.Context, cs model.ChangeSet, prior model.Violations) (Decision, error) {
	decision := Decision{ChangeSet: cs}
	violations := append(model.Violations(nil), prior...)
	if len(prior) == 0 {
		violations = validator.ValidateChangeSet(cs)
	}

	release := g.locks.acquire(cs.Touched())
	defer release()

	ordering, err := g.checkOrdering(ctx, cs)
	if err != nil {
		return decision, err
	}
	violations = append(violations, ordering...)

	log := g.logger.With().Str("changeset", cs.ID.String()).Str("source", cs.Source).Logger()
	if len(violations) > 0 {
		decision.Violations = violations
		log.Info().Int("violations", len(violations)).Msg("change set rejected")
		return decision, nil
	}

	decision.Accepted = true
	if cs.Empty() {
		log.Info().Msg("change set empty; nothing to queue")
		return decision, nil
	}
	if err := g.queue.Enqueue(ctx, cs); err != nil {
		return decision, fmt.Errorf("enqueue change set: %w", err)
	}
	decision.Queued = true
	log.Info().
		Int("symbols", len(cs.Symbols)).
		Int("data_files", len(cs.Data)).
		Int("rows", cs.RowCount()).
		Msg("change set accepted")
	return decision, nil
}

// Candidate is a change set awaiting review with the violations found while
// loading it.
type Candidate struct {
	ChangeSet model.ChangeSet
	Prior     model.Violations
}

// ReviewAll reviews candidates concurrently; decisions keep input order.
func (g *Gatekeeper) ReviewAll(ctx context.Context, candidates []Candidate) ([]Decision, error) {
	decisions := make([]Decision, len(candidates))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.opts.Workers)
	for i, c := range candidates {
		i, c := i, c
		grp.Go(func() error {
			d, err := g.Review(gctx, c.ChangeSet, c.Prior)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

type queuedOps struct {
	metadata     map[string]model.SymbolOp
	fileRemovals map[string]bool
}

// pendingOps returns, per symbol, the last queued metadata operation and
// whether a data file removal is queued.
func (g *Gatekeeper) pendingOps(ctx context.Context) (queuedOps, error) {
	ops := queuedOps{
		metadata:     make(map[string]model.SymbolOp),
		fileRemovals: make(map[string]bool),
	}
	pending, err := g.queue.Pending(ctx)
	if err != nil {
		return ops, fmt.Errorf("list pending change sets: %w", err)
	}
	for _, p := range pending {
		for _, sc := range p.ChangeSet.Symbols {
			ops.metadata[sc.Record.Name] = sc.Op
		}
		for _, dc := range p.ChangeSet.Data {
			if dc.RemoveFile {
				ops.fileRemovals[dc.Symbol] = true
			}
		}
	}
	return ops, nil
}

func (g *Gatekeeper) checkOrdering(ctx context.Context, cs model.ChangeSet) (model.Violations, error) {
	if cs.Empty() {
		return nil, nil
	}
	queued, err := g.pendingOps(ctx)
	if err != nil {
		return nil, err
	}

	var out model.Violations
	ordering := func(symbol, format string, args ...any) {
		out = append(out, model.Violation{
			Kind:    model.KindOrdering,
			Symbol:  symbol,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for _, sc := range cs.Symbols {
		if sc.Op != model.OpRemove && queued.metadata[sc.Record.Name] == model.OpRemove {
			ordering(sc.Record.Name, "symbol removal is still pending ingestion; resubmit after the next cycle")
		}
	}

	for _, dc := range cs.Data {
		if len(dc.Upserts) == 0 && len(dc.Deletes) == 0 {
			continue
		}
		if sc, ok := cs.SymbolChangeFor(dc.Symbol); ok && sc.Op == model.OpAdd {
			ordering(dc.Symbol, "symbol is added in this change set; submit data once its metadata is live")
			continue
		}
		switch queued.metadata[dc.Symbol] {
		case model.OpAdd:
			ordering(dc.Symbol, "symbol metadata is still pending ingestion; submit data after the next cycle")
			continue
		case model.OpRemove:
			ordering(dc.Symbol, "symbol removal is still pending ingestion")
			continue
		}
		if queued.fileRemovals[dc.Symbol] && !dc.RemoveFile {
			ordering(dc.Symbol, "data file removal is still pending ingestion; resubmit after the next cycle")
			continue
		}

		state, err := g.tier.Symbol(ctx, dc.Symbol)
		if err != nil {
			return nil, fmt.Errorf("read symbol %s: %w", dc.Symbol, err)
		}
		if !state.Live {
			ordering(dc.Symbol, "symbol has no metadata in storage; add it to symbol info first")
		}
	}
	return out, nil
}
