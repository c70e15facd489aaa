package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluehex/server/internal/auth"
	"github.com/bluehex/server/internal/db"
	apphttp "github.com/bluehex/server/internal/http"
	"github.com/bluehex/server/internal/http/handlers"
)

const inProcessSweepInterval = time.Hour

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending database migrations on startup")
	return cmd
}

func runServe(parent context.Context, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.db != nil && migrate {
		if err := db.Migrate(ctx, d.db, d.log); err != nil {
			d.log.Error().Err(err).Msg("migrations failed")
			return err
		}
	}

	svc := d.service(d.notifier())

	var pinger handlers.Pinger
	if d.db != nil {
		pinger = d.db
	}
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Auth:          handlers.NewAuthHandler(svc, d.cfg.CookieSecure, d.log),
		Health:        handlers.NewHealthHandler(pinger),
		Sessions:      svc,
		Metrics:       d.metrics,
		Logger:        d.log,
		SecureCookies: d.cfg.CookieSecure,
	})

	srv := &http.Server{
		Addr:              ":" + d.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Without a job queue nothing else schedules the sweep.
	if d.cfg.Redis.Addr == "" {
		go sweepLoop(ctx, svc, inProcessSweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info().Str("port", d.cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			d.log.Error().Err(err).Msg("server failed to start")
			return err
		}
	case <-ctx.Done():
	}

	d.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	d.log.Info().Msg("server exited")
	return nil
}

func sweepLoop(ctx context.Context, svc *auth.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by the service.
			_, _ = svc.SweepExpiredSessions(ctx)
		}
	}
}
