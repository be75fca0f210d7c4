package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"seed-ingest/internal/cache"
	"seed-ingest/internal/config"
	"seed-ingest/internal/gatekeeper"
	"seed-ingest/internal/notify"
	"seed-ingest/internal/scheduler"
	"seed-ingest/internal/service"
	"seed-ingest/internal/storage"
	"seed-ingest/internal/uploader"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// backend, when set, is shared by every command instead of dialing storage.
	backend storage.Backend
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// openBackend connects to PostgreSQL, or falls back to an in-memory store
// when no DSN is configured.
func (a *App) openBackend(ctx context.Context) (storage.Backend, error) {
	if a.backend != nil {
		return sharedBackend{a.backend}, nil
	}
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory storage, nothing will persist")
		return storage.NewMemoryStore(), nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

type sharedBackend struct {
	storage.Backend
}

func (sharedBackend) Close() {}

func (a *App) newPublisher(ctx context.Context) (*cache.RedisPublisher, error) {
	if !a.Config.Redis.Enabled {
		return nil, nil
	}
	return cache.NewRedisPublisher(ctx, a.Config.Redis, a.Logger)
}

func (a *App) newReporter(pr int) notify.Reporter {
	reporters := notify.Multi{notify.StdoutReporter{W: a.Out}}
	if a.Config.GitHub.Enabled && pr > 0 {
		reporters = append(reporters, notify.NewGitHubCommenter(a.Config.GitHub, pr, a.Logger))
	}
	return reporters
}

func (a *App) newAlerter() notify.Alerter {
	if !a.Config.Telegram.Enabled {
		return nil
	}
	return notify.NewTelegramNotifier(a.Config.Telegram, 10*time.Second, a.Logger)
}

func (a *App) newGatekeeper(backend storage.Backend) *gatekeeper.Gatekeeper {
	return gatekeeper.New(backend, backend, gatekeeper.Options{Workers: a.Config.Ingest.ReviewWorkers}, a.Logger)
}

func (a *App) newUploader(backend storage.Backend, publisher uploader.Publisher) *uploader.Uploader {
	return uploader.New(backend, backend, publisher, uploader.Options{
		ConflictRetries: a.Config.Ingest.ConflictRetries,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
		CycleTimeout:    a.Config.Ingest.CycleTimeout,
	}, a.Logger)
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		Source:        a.Config.Ingest.Source,
		MaxViolations: a.Config.Ingest.MaxViolations,
	}
}

// withUploader wires the storage tier, the optional Redis cache and the
// uploader, then hands them to fn.
func (a *App) withUploader(ctx context.Context, fn func(backend storage.Backend, up *uploader.Uploader) error) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	var publisher uploader.Publisher
	redisPub, err := a.newPublisher(ctx)
	if err != nil {
		return err
	}
	if redisPub != nil {
		defer redisPub.Close()
		publisher = redisPub
	}

	return fn(backend, a.newUploader(backend, publisher))
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.withUploader(ctx, func(backend storage.Backend, up *uploader.Uploader) error {
		sched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
			RunOnStart:   true,
		}, a.Logger)

		svc := service.New(service.Deps{
			Tier:      backend,
			Uploader:  up,
			Scheduler: sched,
			Alerter:   a.newAlerter(),
		}, a.serviceOptions(), a.Logger)

		a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting ingestion service")
		err := svc.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("service terminated with error")
			return err
		}

		a.Logger.Info().Msg("ingestion service stopped")
		return nil
	})
}

// CheckOptions configure the check command.
type CheckOptions struct {
	RepoDir string
	BaseDir string
	Source  string
}

// SubmitOptions configure the submit command.
type SubmitOptions struct {
	CheckOptions
	PR int
	// Extra checkouts are compared against the storage tier and reviewed
	// alongside RepoDir.
	Extra []string
}

// ExportOptions hold parameters for exporting a symbol's rows.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol string
	Limit  int
}
