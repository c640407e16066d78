// Package server boots the application and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/internal/kernel"
	"github.com/tickethub/tickethub/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// Serve runs the API, the in-process queue workers and the scheduler until
// ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context) error {
	closeLogs, err := logger.Setup(ctx)
	if err != nil {
		return err
	}
	defer closeLogs()

	app, err := Boot(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("server: close", "error", err)
		}
	}()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		app.Queue.Run(bgCtx, config.QueueWorkers())
	}()
	app.Scheduler.Start(bgCtx)

	srv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           kernel.New(app.Kernel).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", srv.Addr, "env", config.AppEnv())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("server: shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}

	stopBackground()
	<-workersDone
	return err
}
