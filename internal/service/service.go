package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"seed-ingest/internal/detector"
	"seed-ingest/internal/gatekeeper"
	"seed-ingest/internal/model"
	"seed-ingest/internal/notify"
	"seed-ingest/internal/scheduler"
	"seed-ingest/internal/seedrepo"
	"seed-ingest/internal/storage"
	"seed-ingest/internal/uploader"
	"seed-ingest/internal/validator"
)

// Options carry the knobs the service reads from configuration.
type Options struct {
	Source        string
	MaxViolations int
}

// Submission names the two checkouts of a seed repository. An empty BaseDir
// compares against what is live in the storage tier.
type Submission struct {
	BaseDir string
	HeadDir string
	Source  string
}

// Outcome is the result of checking or submitting a submission.
type Outcome struct {
	ChangeSet  model.ChangeSet
	Violations model.Violations
	Accepted   bool
	Queued     bool
	Report     notify.Report
}

// Err returns the violations as an error when the submission failed.
func (o Outcome) Err() error {
	if len(o.Violations) == 0 {
		return nil
	}
	return o.Violations.Err()
}

// Service orchestrates checking, gatekeeping, and periodic ingestion.
type Service struct {
	tier       storage.Tier
	gatekeeper *gatekeeper.Gatekeeper
	uploader   *uploader.Uploader
	scheduler  *scheduler.Scheduler
	reporter   notify.Reporter
	alerter    notify.Alerter
	opts       Options
	logger     zerolog.Logger
	now        func() time.Time
}

// Deps groups the collaborators a Service needs. Reporter, Alerter,
// Uploader and Scheduler are optional.
type Deps struct {
	Tier       storage.Tier
	Gatekeeper *gatekeeper.Gatekeeper
	Uploader   *uploader.Uploader
	Scheduler  *scheduler.Scheduler
	Reporter   notify.Reporter
	Alerter    notify.Alerter
}

// New constructs the service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		tier:       deps.Tier,
		gatekeeper: deps.Gatekeeper,
		uploader:   deps.Uploader,
		scheduler:  deps.Scheduler,
		reporter:   deps.Reporter,
		alerter:    deps.Alerter,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Check loads and diffs a submission and validates its content. It never
// touches the queue.
func (s *Service) Check(ctx context.Context, sub Submission) (Outcome, error) {
	cs, violations, err := s.prepare(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}
	if len(violations) == 0 {
		violations = validator.ValidateChangeSet(cs)
	}

	out := Outcome{
		ChangeSet:  cs,
		Violations: violations,
		Accepted:   len(violations) == 0,
	}
	out.Report = s.report("Check data", out)
	s.logger.Info().
		Str("changeset", cs.ID.String()).
		Strs("touched", cs.Touched()).
		Int("violations", len(violations)).
		Msg("submission checked")
	return out, nil
}

// Submit checks a submission and, when it passes, asks the gatekeeper to
// queue it. The report is delivered to the configured reporter either way.
func (s *Service) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	outs, err := s.SubmitAll(ctx, []Submission{sub})
	if err != nil {
		return Outcome{}, err
	}
	return outs[0], nil
}

// SubmitAll prepares every submission, then reviews them concurrently.
// Outcomes keep input order.
func (s *Service) SubmitAll(ctx context.Context, subs []Submission) ([]Outcome, error) {
	if s.gatekeeper == nil {
		return nil, errors.New("gatekeeper not configured")
	}

	candidates := make([]gatekeeper.Candidate, 0, len(subs))
	for _, sub := range subs {
		cs, prior, err := s.prepare(ctx, sub)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, gatekeeper.Candidate{ChangeSet: cs, Prior: prior})
	}

	decisions, err := s.gatekeeper.ReviewAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	outs := make([]Outcome, len(decisions))
	for i, decision := range decisions {
		out := Outcome{
			ChangeSet:  decision.ChangeSet,
			Violations: decision.Violations,
			Accepted:   decision.Accepted,
			Queued:     decision.Queued,
		}
		out.Report = s.report("Upload data", out)
		if s.reporter != nil {
			if err := s.reporter.Report(ctx, out.Report); err != nil {
				s.logger.Error().Err(err).Str("changeset", out.ChangeSet.ID.String()).Msg("failed to deliver report")
			}
		}
		outs[i] = out
	}
	return outs, nil
}

// Cycle runs one ingestion cycle on a scheduler tick.
func (s *Service) Cycle(ctx context.Context, tick time.Time) error {
	_, err := s.RunCycle(ctx)
	if errors.Is(err, uploader.ErrCycleInProgress) {
		s.logger.Warn().Time("tick", tick).Msg("skip tick because a cycle is still running")
		return nil
	}
	return err
}

// RunCycle drains the queue once and alerts operators when symbols fail.
func (s *Service) RunCycle(ctx context.Context) (model.IngestionCycle, error) {
	if s.uploader == nil {
		return model.IngestionCycle{}, errors.New("uploader not configured")
	}
	cycle, err := s.uploader.RunCycle(ctx)
	if err != nil && len(cycle.Failed) > 0 && s.alerter != nil {
		if alertErr := s.alerter.CycleFailed(ctx, cycle); alertErr != nil {
			s.logger.Error().Err(alertErr).Str("cycle", cycle.ID.String()).Msg("failed to dispatch cycle alert")
		}
	}
	return cycle, err
}

// Run begins the periodic ingestion loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Cycle)
}

func (s *Service) prepare(ctx context.Context, sub Submission) (model.ChangeSet, model.Violations, error) {
	head, violations, err := seedrepo.Load(sub.HeadDir)
	if err != nil {
		return model.ChangeSet{}, nil, fmt.Errorf("load submission: %w", err)
	}

	var base seedrepo.Snapshot
	if sub.BaseDir != "" {
		var baseViolations model.Violations
		base, baseViolations, err = seedrepo.Load(sub.BaseDir)
		if err != nil {
			return model.ChangeSet{}, nil, fmt.Errorf("load base: %w", err)
		}
		if len(baseViolations) > 0 {
			s.logger.Warn().Int("violations", len(baseViolations)).Msg("base revision carries violations")
		}
	} else {
		base, err = s.tierSnapshot(ctx, head)
		if err != nil {
			return model.ChangeSet{}, nil, err
		}
	}

	source := sub.Source
	if source == "" {
		source = s.opts.Source
	}
	return detector.Detect(base, head, source, s.now()), violations, nil
}

// tierSnapshot rebuilds the accepted state from storage. Rows are read only
// when the submission carries a data directory.
func (s *Service) tierSnapshot(ctx context.Context, head seedrepo.Snapshot) (seedrepo.Snapshot, error) {
	if s.tier == nil {
		return seedrepo.Snapshot{}, errors.New("no base revision and no storage tier to compare against")
	}
	live, err := s.tier.Symbols(ctx)
	if err != nil {
		return seedrepo.Snapshot{}, fmt.Errorf("list live symbols: %w", err)
	}

	snap := seedrepo.Snapshot{Symbols: make(map[string]model.SymbolRecord, len(live))}
	for _, st := range live {
		snap.Symbols[st.Record.Name] = st.Record
	}
	if !head.HasData() {
		return snap, nil
	}

	snap.Data = make(map[string][]model.DataRow)
	for _, st := range live {
		if st.RowCount == 0 {
			continue
		}
		rows, err := s.tier.Rows(ctx, st.Record.Name, time.Time{}, time.Time{})
		if err != nil {
			return seedrepo.Snapshot{}, fmt.Errorf("read rows for %s: %w", st.Record.Name, err)
		}
		snap.Data[st.Record.Name] = rows
	}
	return snap, nil
}

func (s *Service) report(title string, out Outcome) notify.Report {
	r := notify.NewReport(title, out.ChangeSet, out.Accepted, out.Queued, out.Violations)
	r.MaxViolations = s.opts.MaxViolations
	return r
}
