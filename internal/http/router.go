package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"

	"github.com/bluehex/server/internal/http/handlers"
	"github.com/bluehex/server/internal/middleware"
	"github.com/bluehex/server/internal/notify"
	"github.com/bluehex/server/internal/observability"
)

// RouterConfig collects the router's dependencies.
type RouterConfig struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Sessions middleware.SessionResolver
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	// SecureCookies also enables HSTS.
	SecureCookies bool
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		IsDevelopment:         !cfg.SecureCookies,
	})

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(secureMiddleware.Handler)

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	r.Get("/health", health.ServeHTTP)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoadSession(cfg.Sessions, cfg.Logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", cfg.Auth.HandleSignup)
			r.Post("/login", cfg.Auth.HandleLogin)
			r.Post("/logout", cfg.Auth.HandleLogout)
			r.Get("/logout", cfg.Auth.HandleLogout)
			r.Post("/forgot-password", cfg.Auth.HandleForgotPassword)
			r.Get("/reset-password", cfg.Auth.HandleResetPasswordForm)
			r.Post("/reset-password", cfg.Auth.HandleResetPassword)
		})

		// Pages linked from notification emails.
		r.Get(notify.LoginPath, cfg.Auth.HandleLoginForm)
		r.Get(notify.ForgotPasswordPath, cfg.Auth.HandleForgotPasswordForm)
		r.Get(notify.ResetPasswordPath, cfg.Auth.HandleResetPasswordForm)

		r.With(middleware.RequireSession).Get("/me", cfg.Auth.HandleMe)
	})

	return r
}
