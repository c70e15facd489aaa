package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bluehex/server/internal/jobs"
	"github.com/bluehex/server/internal/notify"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued emails and run the scheduled session sweep",
		Long: `Start the background worker. It consumes notification tasks from Redis
and enqueues the expired-session sweep on SWEEP_CRON. Requires REDIS_ADDR.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "number of tasks processed in parallel")
	return cmd
}

func runWorker(parent context.Context, concurrency int) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required to run the worker")
	}

	// The worker only consumes events; it never emits them.
	svc := d.service(notify.Nop)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   d.redisOpts(),
		Logger:      d.log,
		Handlers:    jobs.NewHandlers(d.mailer(), svc, d.log),
		Concurrency: concurrency,
		SweepCron:   d.cfg.Redis.SweepCron,
	})
	if err != nil {
		d.log.Error().Err(err).Msg("init worker")
		return err
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Error().Err(err).Msg("worker run")
		return err
	}
	return nil
}
