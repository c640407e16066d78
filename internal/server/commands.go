package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/mail"
	"github.com/tickethub/tickethub/pkg/notification"
)

// WithRepositories opens only the document store, hands it to fn and
// closes it again. CLI commands use it instead of a full Boot.
func WithRepositories(ctx context.Context, fn func(repositories.Repositories) error) (err error) {
	if err := config.Load(); err != nil {
		return err
	}
	app := &App{}
	defer func() {
		err = errors.Join(err, app.Close(context.Background()))
	}()
	if err := openRepositories(ctx, app, nil); err != nil {
		return err
	}
	return fn(app.Repos)
}

// Work consumes notification jobs until ctx is cancelled. It only makes
// sense with the redis queue driver, where the API process pushes jobs.
func Work(ctx context.Context, workers int) (err error) {
	if err := config.Load(); err != nil {
		return err
	}
	closeLogs, err := logger.Setup(ctx)
	if err != nil {
		return err
	}
	defer closeLogs()

	if config.QueueDriver() != "redis" {
		return fmt.Errorf("queue:work needs QUEUE_DRIVER=redis, got %q", config.QueueDriver())
	}

	app := &App{}
	defer func() {
		err = errors.Join(err, app.Close(context.Background()))
	}()
	q, err := openQueue(ctx, app)
	if err != nil {
		return err
	}
	notification.RegisterJobs(q, mail.New(mail.FromConfig()))

	logger.Info("queue: worker started", "workers", workers)
	q.Run(ctx, workers)
	logger.Info("queue: worker stopped")
	return nil
}
