package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/model"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "session_token"

type contextKey string

const sessionKey contextKey = "session"

// SessionResolver resolves a session token to its session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (model.SessionView, bool, error)
}

// SessionToken returns the session token cookie value, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// LoadSession resolves the session cookie on every request and attaches the
// session to the context when it is valid. Requests without a valid session
// pass through unchanged.
func LoadSession(resolver SessionResolver, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			session, ok, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				log.Error().Err(err).Msg("failed to resolve session")
				respondWithError(w, http.StatusInternalServerError, "an error occurred, please try again")
				return
			}
			if ok {
				r = r.WithContext(context.WithValue(r.Context(), sessionKey, session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests that LoadSession did not authenticate.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			respondWithError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSession returns the session attached to the request context (set by LoadSession)
func GetSession(ctx context.Context) (model.SessionView, bool) {
	s, ok := ctx.Value(sessionKey).(model.SessionView)
	return s, ok
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session model.SessionView) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
