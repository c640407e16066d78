package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/config"
	_ "github.com/tickethub/tickethub/database/migrations"
	"github.com/tickethub/tickethub/internal/kernel"
	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/cache"
	appctx "github.com/tickethub/tickethub/pkg/ctx"
	"github.com/tickethub/tickethub/pkg/database"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/mail"
	"github.com/tickethub/tickethub/pkg/migration"
	"github.com/tickethub/tickethub/pkg/notification"
	"github.com/tickethub/tickethub/pkg/queue"
	"github.com/tickethub/tickethub/pkg/schedule"
)

// App holds the wired process: stores, queue, scheduler and the HTTP
// dependencies built on them.
type App struct {
	Repos     repositories.Repositories
	Cache     cache.Store
	Queue     *queue.Manager
	Mailer    *mail.Mailer
	Scheduler *schedule.Scheduler
	Kernel    kernel.Dependencies

	closers []func(context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Boot connects every backing service selected by config. On error the
// parts already opened are closed.
func Boot(ctx context.Context) (app *App, err error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("boot: config: %w", err)
	}

	app = &App{Scheduler: schedule.New()}
	checks := map[string]kernel.Check{}
	defer func() {
		if err != nil {
			app.Close(context.Background())
			app = nil
		}
	}()

	if err := appctx.SetTrustedProxies(config.TrustedProxies()); err != nil {
		return app, fmt.Errorf("boot: %w", err)
	}

	codec, err := auth.NewCodec(config.JWTSecret())
	if err != nil {
		return app, fmt.Errorf("boot: codec: %w", err)
	}

	// ─── Document store ───────────────────────────────────────────────────
	if err := openRepositories(ctx, app, checks); err != nil {
		return app, err
	}

	// ─── Credential cache ─────────────────────────────────────────────────
	store, closeCache, err := cache.Open(ctx)
	if err != nil {
		return app, fmt.Errorf("boot: cache: %w", err)
	}
	app.Cache = store
	app.closers = append(app.closers, func(context.Context) error { return closeCache() })
	if p, ok := store.(pinger); ok {
		checks["cache"] = p.Ping
	}
	if p, ok := store.(pruner); ok {
		app.Scheduler.Every(time.Minute).Name("cache:prune").WithoutOverlapping().Run(func(ctx context.Context) error {
			n, err := p.Prune(ctx)
			if n > 0 {
				logger.Debug("cache: pruned expired entries", "count", n)
			}
			return err
		})
	}

	// ─── Queue ────────────────────────────────────────────────────────────
	q, err := openQueue(ctx, app)
	if err != nil {
		return app, err
	}
	app.Queue = q

	app.Mailer = mail.New(mail.FromConfig())
	notifier := notification.New(app.Mailer, q)

	// ─── Services ─────────────────────────────────────────────────────────
	app.Kernel = kernel.Dependencies{
		Codec: codec,
		Auth: services.NewAuthService(services.AuthDeps{
			Users:      app.Repos.Users,
			Cache:      store,
			Notifier:   notifier,
			Codec:      codec,
			AppURL:     config.AppURL(),
			OTPTTL:     config.OTPTTL(),
			SessionTTL: config.JWTTTL(),
		}),
		Orders:   services.NewOrderService(app.Repos),
		Payments: services.NewPaymentService(app.Repos),
		Users:    services.NewUserService(app.Repos.Users),
		Checks:   checks,
	}
	return app, nil
}

// openRepositories selects the document store. checks may be nil.
func openRepositories(ctx context.Context, app *App, checks map[string]kernel.Check) error {
	if config.StoreDriver() == "memory" {
		logger.Warn("boot: using in-memory repositories; data is lost on exit")
		app.Repos = repositories.NewMemory()
		return nil
	}

	client, db, err := database.ConnectMongo(ctx)
	if err != nil {
		return fmt.Errorf("boot: mongo: %w", err)
	}
	app.closers = append(app.closers, client.Disconnect)
	if err := repositories.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("boot: mongo indexes: %w", err)
	}
	app.Repos = repositories.NewMongo(db)
	if checks != nil {
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	}
	return nil
}

// openQueue picks the queue driver and the failed-job store. Failed jobs
// go to the SQL database when it is reachable.
func openQueue(ctx context.Context, app *App) (*queue.Manager, error) {
	var opts []queue.Option
	if db, err := database.Connect(); err != nil {
		logger.Warn("boot: sql database unavailable; failed jobs kept in memory", "error", err)
	} else {
		if _, err := migration.New(db).Run(ctx); err != nil {
			return nil, fmt.Errorf("boot: migrate: %w", err)
		}
		opts = append(opts, queue.WithFailedStore(queue.NewGormFailedStore(db)))
		app.closers = append(app.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}

	if config.QueueDriver() != "redis" {
		return queue.New(queue.NewMemoryDriver(), opts...), nil
	}
	rdb, err := cache.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("boot: queue redis: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
	return queue.New(queue.NewRedisDriver(rdb), opts...), nil
}

// Close releases everything Boot opened, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
