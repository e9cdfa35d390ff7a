package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	importsources "contentflow/pipeline/internal/import"
	"contentflow/pipeline/internal/process"
	"contentflow/pipeline/internal/server"
	"contentflow/pipeline/internal/server/storage"
)

func importCmd(opts *rootOptions) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import sources from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if csvPath == "" {
				csvPath = cfg.SourcesCSVPath
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := importsources.NewImporter(db, cfg.RemoteSourcesURL).ImportSources(cmd.Context(), csvPath)
			if err != nil {
				return fmt.Errorf("import sources: %w", err)
			}
			for _, e := range res.Errors {
				log.Warn().Str("row", e).Msg("Skipped source")
			}
			log.Info().
				Int("total", res.Total).
				Int("imported", res.Imported).
				Int("skipped", len(res.Errors)).
				Msg("Import finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the sources CSV file (env: PIPELINE_SOURCES_CSV)")
	return cmd
}

func pollCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll [source-id]",
		Short: "Poll one source, or every active feed source, once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(args) == 1 {
				res, err := app.processor.PollSource(ctx, args[0])
				if err != nil {
					return err
				}
				if res.Err != nil {
					return fmt.Errorf("poll source %s: %w", args[0], res.Err)
				}
				log.Info().Int("fetched", res.Fetched).Int("created", res.Created).Int("skipped", res.Skipped).Msg("Poll finished")
				return nil
			}

			res, err := app.processor.PollAll(ctx)
			if err != nil {
				return err
			}
			logBatch(res)
			return nil
		},
	}
}

func startCmd(opts *rootOptions) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Poll due sources on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = cfg.CronSchedule
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScheduler(ctx, app.processor, schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression for polling (env: PIPELINE_CRON_SCHEDULE)")
	return cmd
}

func serverCmd(opts *rootOptions) *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if withScheduler {
				go func() {
					if err := runScheduler(ctx, app.processor, cfg.CronSchedule); err != nil {
						log.Error().Err(err).Msg("Scheduler stopped")
					}
				}()
			}

			deps := server.Deps{
				Repo:      storage.NewRepository(app.db),
				Health:    app.db,
				Poller:    app.processor,
				Drafter:   app.drafter,
				Editorial: app.editorial,
				APIKey:    cfg.APIKey,
			}
			return server.RunServer(ctx, deps, cfg.ListenAddr(), log.Logger)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind the server to (env: PIPELINE_SERVER_HOST)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (env: PIPELINE_SERVER_PORT)")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also poll due sources on the cron schedule")
	return cmd
}

// runScheduler polls due sources once immediately and then on every cron tick
// until ctx is done.
func runScheduler(ctx context.Context, processor *process.FeedProcessor, schedule string) error {
	runCycle := func() {
		cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()

		log.Info().Int("worker_count", processor.WorkerCount).Msg("Starting processing cycle")
		startTime := time.Now()
		res, err := processor.PollDue(cycleCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("Processing cycle canceled by shutdown signal")
				return
			}
			log.Error().Err(err).Msg("Processing cycle failed")
			return
		}
		log.Info().Dur("duration", time.Since(startTime)).Msg("Processing cycle finished")
		logBatch(res)
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(schedule, runCycle); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	runCycle()
	scheduler.Start()
	log.Info().Str("schedule", schedule).Msg("Scheduler started")

	<-ctx.Done()
	log.Info().Msg("Shutting down scheduler")
	<-scheduler.Stop().Done()
	return nil
}

func logBatch(res *process.BatchResult) {
	for _, e := range res.Errors {
		log.Warn().Str("source_id", e.SourceID).Str("url", e.URL).Str("error", e.Error).Msg("Source failed")
	}
	log.Info().
		Int("sources", len(res.Sources)).
		Int("created", res.Created).
		Int("duplicates", res.Skipped).
		Int("failed", res.Failed).
		Msg("Processing stats")
}
