package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/auth"
	"github.com/bluehex/server/internal/config"
	"github.com/bluehex/server/internal/db"
	"github.com/bluehex/server/internal/jobs"
	"github.com/bluehex/server/internal/logging"
	"github.com/bluehex/server/internal/notify"
	"github.com/bluehex/server/internal/observability"
	"github.com/bluehex/server/internal/repo"
	"github.com/bluehex/server/internal/repo/memrepo"
)

const (
	dispatcherBuffer  = 256
	dispatcherWorkers = 2
)

// deps holds the process-wide dependencies shared by the subcommands.
type deps struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *observability.Metrics
	db      *sql.DB

	identities repo.IdentityRepo
	sessions   repo.SessionRepo
	resets     repo.ResetRepo

	closers []func()
}

// loadDeps reads configuration, builds the logger and opens the store.
func loadDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	d := &deps{
		cfg:     cfg,
		log:     logging.New(cfg.LogLevel, cfg.LogPretty),
		metrics: observability.NewMetrics(),
	}

	if cfg.UseMemoryStore() {
		d.log.Warn().Msg("DEV_MODE without DATABASE_URL: using in-memory store, data is lost on exit")
		store := memrepo.New()
		d.identities, d.sessions, d.resets = store.Identities(), store.Sessions(), store.Resets()
		return d, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, d.log)
	if err != nil {
		return nil, err
	}
	d.db = database
	d.closers = append(d.closers, func() { _ = database.Close() })
	d.identities = repo.NewIdentityRepo(database)
	d.sessions = repo.NewSessionRepo(database)
	d.resets = repo.NewResetRepo(database)
	return d, nil
}

func (d *deps) redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     d.cfg.Redis.Addr,
		Password: d.cfg.Redis.Password,
		DB:       d.cfg.Redis.DB,
	}
}

func (d *deps) mailer() *notify.Mailer {
	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:       d.cfg.Mail.Host,
		Port:       d.cfg.Mail.Port,
		Username:   d.cfg.Mail.Username,
		Password:   d.cfg.Mail.Password,
		FromEmail:  d.cfg.Mail.FromEmail,
		FromName:   d.cfg.Mail.FromName,
		AdminEmail: d.cfg.Mail.AdminEmail,
	}, d.log)
	return notify.NewMailer(notify.NewComposer(d.cfg.AppName, d.cfg.BaseURL), sender, d.log, d.metrics)
}

// notifier returns the Redis queue when REDIS_ADDR is set and an in-process
// dispatcher otherwise.
func (d *deps) notifier() notify.Notifier {
	if d.cfg.Redis.Addr != "" {
		q := jobs.NewQueue(d.redisOpts())
		d.closers = append(d.closers, func() { _ = q.Close() })
		d.log.Info().Str("redis", d.cfg.Redis.Addr).Msg("notifications go through the job queue")
		return q
	}
	dispatcher := notify.NewDispatcher(d.mailer(), dispatcherBuffer, dispatcherWorkers, d.log)
	d.closers = append(d.closers, dispatcher.Close)
	d.log.Info().Msg("notifications are delivered in-process")
	return dispatcher
}

func (d *deps) service(notifier notify.Notifier) *auth.Service {
	return auth.NewService(
		d.identities, d.sessions, d.resets,
		auth.NewBcryptHasher(d.cfg.BcryptCost),
		auth.WithNotifier(notifier),
		auth.WithLogger(d.log),
		auth.WithMetrics(d.metrics),
	)
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}
