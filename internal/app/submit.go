package app

import (
	"context"
	"errors"
	"fmt"

	"seed-ingest/internal/service"
	"seed-ingest/internal/storage"
	"seed-ingest/internal/uploader"
)

func (o CheckOptions) submission() service.Submission {
	return service.Submission{BaseDir: o.BaseDir, HeadDir: o.RepoDir, Source: o.Source}
}

// Check validates a seed repository checkout without queueing anything.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc := service.New(service.Deps{Tier: backend}, a.serviceOptions(), a.Logger)
	out, err := svc.Check(ctx, opts.submission())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(a.Out, out.Report.Markdown()); err != nil {
		return err
	}
	if err := out.Err(); err != nil {
		return fmt.Errorf("check failed with %d violation(s): %w", len(out.Violations), err)
	}
	return nil
}

// Submit checks a checkout and queues it for ingestion when the gatekeeper
// accepts it.
func (a *App) Submit(ctx context.Context, opts SubmitOptions) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc := service.New(service.Deps{
		Tier:       backend,
		Gatekeeper: a.newGatekeeper(backend),
		Reporter:   a.newReporter(opts.PR),
	}, a.serviceOptions(), a.Logger)

	subs := []service.Submission{opts.submission()}
	for _, dir := range opts.Extra {
		subs = append(subs, service.Submission{HeadDir: dir, Source: opts.Source})
	}
	outs, err := svc.SubmitAll(ctx, subs)
	if err != nil {
		return err
	}

	var errs []error
	for i, out := range outs {
		if !out.Accepted {
			errs = append(errs, fmt.Errorf("submission %s rejected with %d violation(s): %w",
				subs[i].HeadDir, len(out.Violations), out.Err()))
		}
	}
	return errors.Join(errs...)
}

// Ingest runs a single ingestion cycle.
func (a *App) Ingest(ctx context.Context) error {
	return a.withUploader(ctx, func(backend storage.Backend, up *uploader.Uploader) error {
		svc := service.New(service.Deps{
			Tier:     backend,
			Uploader: up,
			Alerter:  a.newAlerter(),
		}, a.serviceOptions(), a.Logger)

		cycle, err := svc.RunCycle(ctx)
		fmt.Fprintf(a.Out, "cycle %s: %d change set(s) collected, %d acked, %d symbol(s) applied, %d failed\n",
			cycle.ID, cycle.Collected, cycle.Acked, len(cycle.Applied), len(cycle.Failed))
		return err
	})
}
