package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/endoflow/endoflow/internal/platform/db"
	"github.com/endoflow/endoflow/internal/platform/jobs"
)

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued maintenance passes and register their cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			noSchedule, _ := cmd.Flags().GetBool("no-schedule")
			return runWorker(!noSchedule)
		},
	}
	cmd.Flags().Bool("no-schedule", false, "Only process tasks; do not register cron entries")
	return cmd
}

func runWorker(schedule bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if !cfg.JobsEnabled() {
		logger.Error().Msg("REDIS_URL is required to run the worker")
		return errRedisRequired
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()

	w, err := jobs.NewWorker(cfg.RedisURL, cfg.JobsQueue, cfg.JobsConcurrency, newService(pool, logger), clinicScope(pool), logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })

	if schedule {
		s, err := jobs.NewScheduler(cfg.RedisURL, cfg.JobsQueue, jobs.Schedule{
			ClinicID:          cfg.DefaultClinic,
			LinkageRepairCron: cfg.LinkageRepairCron,
			AuditCron:         cfg.AuditCron,
		}, logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return s.Run(gctx) })
	}

	logger.Info().Str("queue", cfg.JobsQueue).Int("concurrency", cfg.JobsConcurrency).Msg("worker started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}
