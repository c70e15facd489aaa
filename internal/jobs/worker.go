package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/notify"
)

// Sweeper removes expired sessions.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// Handlers implements the task handlers.
type Handlers struct {
	deliverer notify.Deliverer
	sweeper   Sweeper
	log       zerolog.Logger
}

// NewHandlers constructs the task handlers.
func NewHandlers(deliverer notify.Deliverer, sweeper Sweeper, log zerolog.Logger) *Handlers {
	return &Handlers{deliverer: deliverer, sweeper: sweeper, log: log.With().Str("component", "jobs").Logger()}
}

// HandleEmail delivers the event carried by task.
func (h *Handlers) HandleEmail(ctx context.Context, task *asynq.Task) error {
	event, err := ParseEmailTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.deliverer.Deliver(ctx, event); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

// HandleSessionSweep runs one expired-session sweep.
func (h *Handlers) HandleSessionSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := h.sweeper.SweepExpiredSessions(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("session sweep failed")
		return err
	}
	h.log.Info().Int64("removed", n).Msg("session sweep finished")
	return nil
}

// Register mounts the handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeEmail, h.HandleEmail)
	mux.HandleFunc(TaskTypeSessionSweep, h.HandleSessionSweep)
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      zerolog.Logger
	Handlers    *Handlers
	Concurrency int
	// SweepCron schedules TaskTypeSessionSweep. Empty disables the schedule.
	SweepCron string
}

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	log       zerolog.Logger
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handlers == nil {
		return nil, errors.New("worker: handlers required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	log := cfg.Logger.With().Str("component", "worker").Logger()

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueNotifications: 3,
			QueueMaintenance:   1,
		},
		Logger:   asynqLogger{log: log},
		LogLevel: asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	cfg.Handlers.Register(mux)

	var scheduler *asynq.Scheduler
	if cfg.SweepCron != "" {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   asynqLogger{log: log},
			LogLevel: asynq.WarnLevel,
		})
		if _, err := scheduler.Register(cfg.SweepCron, NewSessionSweepTask()); err != nil {
			return nil, fmt.Errorf("register sweep schedule %q: %w", cfg.SweepCron, err)
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, log: log}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	w.log.Info().Msg("worker started")
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// asynqLogger routes asynq's logs through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
