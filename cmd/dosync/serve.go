package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dosync/internal/database"
	"dosync/internal/logging"
	"dosync/internal/metrics"
	"dosync/internal/service"
	"dosync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import worker and the recurrence scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *app) error {
	startMetrics(ctx, app)

	importer := worker.NewStatsImporter(app.stats, service.DataViewNamer(app.cfg.Sync))
	importWorker := worker.NewImportWorker(
		app.db,
		app.queue,
		importer,
		app.cfg.Worker,
		app.clock,
		logging.Component(&app.logger, "import-worker"),
	)
	scheduler := worker.NewScheduler(
		app.db,
		app.queue,
		app.cfg.Worker,
		app.clock,
		logging.Component(&app.logger, "recurrence"),
	)

	backups := database.NewBackupService(
		app.db,
		app.cfg.Backup,
		app.clock,
		logging.Component(&app.logger, "backup"),
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		importWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		backups.Start(ctx)
	}()

	app.logger.Info().
		Dur("poll_interval", app.cfg.Worker.PollInterval).
		Dur("recurrence_interval", app.cfg.Worker.RecurrenceInterval).
		Msg("dosync worker started")

	<-ctx.Done()
	app.logger.Info().Msg("shutdown signal received")

	wg.Wait()
	app.logger.Info().Msg("dosync worker stopped")
	return nil
}

func startMetrics(ctx context.Context, app *app) {
	if !app.cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := app.cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, &app.logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
