package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/auth"
	"github.com/bluehex/server/internal/logging"
	"github.com/bluehex/server/internal/middleware"
	"github.com/bluehex/server/internal/model"
)

const (
	sessionCookieMaxAge = 86400

	msgInvalidCredentials = "invalid email or password"
	msgInvalidResetToken  = "invalid or expired reset token"
	msgEmailTaken         = "email already registered"
	msgResetRequested     = "If an account with that email exists, we've sent you a password reset link."
)

// AuthService is the subset of auth.Service the handlers need.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (model.IdentityView, error)
	Authenticate(ctx context.Context, email, password string) (model.IdentityView, error)
	CreateSession(ctx context.Context, identityID uuid.UUID) (model.SessionView, error)
	EndSession(ctx context.Context, token string) (bool, error)
	RequestPasswordReset(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	NotifyLogin(ctx context.Context, identity model.IdentityView)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service      AuthService
	validate     *validator.Validate
	cookieSecure bool
	log          zerolog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service AuthService, cookieSecure bool, log zerolog.Logger) *AuthHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &AuthHandler{
		service:      service,
		validate:     v,
		cookieSecure: cookieSecure,
		log:          log.With().Str("component", "http").Logger(),
	}
}

// signupRequest is the request body for POST /auth/signup
type signupRequest struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	PhoneCountry    string `json:"phone_country" validate:"required_with=PhoneNumber,omitempty,oneof=au ph"`
	PhoneNumber     string `json:"phone_number" validate:"required_with=PhoneCountry,omitempty,max=20"`
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// forgotPasswordRequest is the request body for POST /auth/forgot-password
type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// resetPasswordRequest is the request body for POST /auth/reset-password
type resetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// sessionResponse is returned after signup and login. The token itself only
// travels in the cookie.
type sessionResponse struct {
	User      model.IdentityView `json:"user"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// HandleSignup handles POST /auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	in := auth.RegisterInput{
		Email:     strings.TrimSpace(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
	}
	if req.PhoneCountry != "" {
		country := model.PhoneCountry(req.PhoneCountry)
		phone := strings.TrimSpace(req.PhoneNumber)
		in.PhoneCountry = &country
		in.PhoneNumber = &phone
	}
	identity, err := h.service.Register(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateIdentity):
			respondWithError(w, http.StatusConflict, msgEmailTaken)
		case errors.Is(err, auth.ErrEmptyPassword), errors.Is(err, auth.ErrPasswordTooLong),
			errors.Is(err, auth.ErrInvalidPhoneCountry), errors.Is(err, auth.ErrInvalidRole):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("email", logging.MaskEmail(req.Email)).Msg("signup failed")
			respondWithError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	session, err := h.service.CreateSession(r.Context(), identity.ID)
	if err != nil {
		// The account exists; the client can still log in.
		h.log.Error().Err(err).Str("identity_id", identity.ID.String()).Msg("auto-login after signup failed")
		respondWithJSON(w, http.StatusCreated, sessionResponse{User: identity})
		return
	}

	h.setSessionCookie(w, session.Token)
	respondWithJSON(w, http.StatusCreated, sessionResponse{User: identity, ExpiresAt: session.ExpiresAt})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	identity, err := h.service.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Str("email", logging.MaskEmail(req.Email)).Msg("login failed")
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	session, err := h.service.CreateSession(r.Context(), identity.ID)
	if err != nil {
		h.log.Error().Err(err).Str("identity_id", identity.ID.String()).Msg("session creation failed")
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.setSessionCookie(w, session.Token)
	h.service.NotifyLogin(r.Context(), identity)
	respondWithJSON(w, http.StatusOK, sessionResponse{User: identity, ExpiresAt: session.ExpiresAt})
}

// HandleLogout handles POST and GET /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if _, err := h.service.EndSession(r.Context(), token); err != nil {
			h.log.Error().Err(err).Msg("logout failed")
			respondWithError(w, http.StatusInternalServerError, msgInternal)
			return
		}
	}
	h.clearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// HandleForgotPassword handles POST /auth/forgot-password. The response is
// the same whether or not the email is registered.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if _, err := h.service.RequestPasswordReset(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		h.log.Error().Err(err).Str("email", logging.MaskEmail(req.Email)).Msg("password reset request failed")
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, messageResponse{Message: msgResetRequested})
}

// formResponse tells a client that followed an emailed link where to submit.
type formResponse struct {
	Action string   `json:"action"`
	Method string   `json:"method"`
	Fields []string `json:"fields"`
	Token  string   `json:"token,omitempty"`
}

// HandleLoginForm handles GET /login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, formResponse{
		Action: "/auth/login",
		Method: http.MethodPost,
		Fields: []string{"email", "password"},
	})
}

// HandleForgotPasswordForm handles GET /forgot-password
func (h *AuthHandler) HandleForgotPasswordForm(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, formResponse{
		Action: "/auth/forgot-password",
		Method: http.MethodPost,
		Fields: []string{"email"},
	})
}

// HandleResetPasswordForm handles GET /reset-password?token= and its /auth alias.
// Only the token's presence is checked; validity is decided on submit.
func (h *AuthHandler) HandleResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithError(w, http.StatusBadRequest, msgInvalidResetToken)
		return
	}
	respondWithJSON(w, http.StatusOK, formResponse{
		Action: "/auth/reset-password",
		Method: http.MethodPost,
		Fields: []string{"token", "new_password", "confirm_password"},
		Token:  token,
	})
}

// HandleResetPassword handles POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidResetToken):
			respondWithError(w, http.StatusBadRequest, msgInvalidResetToken)
		case errors.Is(err, auth.ErrEmptyPassword), errors.Is(err, auth.ErrPasswordTooLong):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("password reset failed")
			respondWithError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}
	respondWithJSON(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

// HandleMe handles GET /me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
