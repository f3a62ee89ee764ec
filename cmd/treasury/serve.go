package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/treasury/internal/di"
	"github.com/aristath/treasury/internal/scheduler"
	"github.com/aristath/treasury/internal/server"
)

type serveCmd struct {
	devMode bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run ingestion on a schedule and serve the HTTP API" }
func (*serveCmd) Usage() string {
	return `treasury serve [-dev]

  Starts the cron scheduler (ingestion on SCHEDULE plus database
  maintenance) and the HTTP API on HTTP_PORT until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.devMode, "dev", false, "Disable response compression.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	log := a.log
	log.Info().Msg("Starting treasury")

	sched := scheduler.New(log)
	jobs, err := di.RegisterJobs(a.container, a.cfg, sched, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register jobs")
		return subcommands.ExitFailure
	}

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: a.container.HistoryDB,
		Store:     a.container.Store,
		Runs:      a.container.Runs,
		Events:    a.container.Events,
		Metrics:   a.container.Metrics,
		Ingest:    jobs.Ingest,
		Port:      a.cfg.HTTPPort,
		DevMode:   c.devMode,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().Int("port", a.cfg.HTTPPort).Msg("Server started successfully")

	log.Info().Str("schedule", a.cfg.Schedule).Int("jobs", sched.Len()).Msg("Registered jobs")
	sched.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	status := subcommands.ExitSuccess
	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
		status = subcommands.ExitFailure
	}

	log.Info().Msg("Shutting down...")

	// Stop blocks until a running ingestion finishes
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return status
}
