package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/bluehex/server/internal/logging"
	"github.com/bluehex/server/internal/model"
	"github.com/bluehex/server/internal/notify"
	"github.com/bluehex/server/internal/observability"
	"github.com/bluehex/server/internal/repo"
)

const (
	// SessionTTL is the absolute lifetime of an authentication session.
	SessionTTL = 24 * time.Hour
	// ResetTokenTTL is the absolute lifetime of a password reset token.
	ResetTokenTTL = time.Hour

	maxTokenAttempts = 3
	tokenRetryDelay  = 10 * time.Millisecond
)

// Service orchestrates the identity, session and reset token lifecycle.
// It keeps no per-request state; all mutable state lives in the stores.
type Service struct {
	identities repo.IdentityRepo
	sessions   repo.SessionRepo
	resets     repo.ResetRepo
	hasher     PasswordHasher
	notifier   notify.Notifier
	clock      clockwork.Clock
	log        zerolog.Logger
	metrics    *observability.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notifier that receives lifecycle events.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("component", "auth").Logger() }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new auth service
func NewService(
	identities repo.IdentityRepo,
	sessions repo.SessionRepo,
	resets repo.ResetRepo,
	hasher PasswordHasher,
	opts ...Option,
) *Service {
	s := &Service{
		identities: identities,
		sessions:   sessions,
		resets:     resets,
		hasher:     hasher,
		notifier:   notify.Nop,
		clock:      clockwork.NewRealClock(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries the fields of a new identity.
type RegisterInput struct {
	Email        string
	FirstName    string
	LastName     string
	Password     string
	PhoneCountry *model.PhoneCountry
	PhoneNumber  *string
	Role         model.Role
}

// Register creates an active identity and emits a welcome event.
// Returns ErrDuplicateIdentity if the email is already registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.IdentityView, error) {
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return model.IdentityView{}, ErrInvalidRole
	}
	if in.PhoneCountry != nil && !in.PhoneCountry.Valid() {
		return model.IdentityView{}, ErrInvalidPhoneCountry
	}

	_, err := s.identities.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.metrics.AuthOperation("register", observability.OutcomeRejected)
		return model.IdentityView{}, ErrDuplicateIdentity
	case !errors.Is(err, repo.ErrNotFound):
		s.metrics.AuthOperation("register", observability.OutcomeError)
		return model.IdentityView{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "lookup identity").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) || errors.Is(err, ErrPasswordTooLong) {
			return model.IdentityView{}, err
		}
		s.metrics.AuthOperation("register", observability.OutcomeError)
		return model.IdentityView{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.clock.Now().UTC()
	identity := model.Identity{
		ID:           uuid.New(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneCountry: in.PhoneCountry,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		IsActive:     true,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The unique constraint settles races the lookup above cannot see.
	if err := s.identities.Create(ctx, &identity); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			s.metrics.AuthOperation("register", observability.OutcomeRejected)
			return model.IdentityView{}, ErrDuplicateIdentity
		}
		s.metrics.AuthOperation("register", observability.OutcomeError)
		return model.IdentityView{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist identity").
			Wrap(err)
	}

	s.metrics.AuthOperation("register", observability.OutcomeSuccess)
	s.log.Info().Str("identity_id", identity.ID.String()).Str("email", logging.MaskEmail(identity.Email)).Msg("identity registered")
	s.emit(ctx, notify.Event{Kind: notify.KindWelcome, Email: identity.Email, FirstName: identity.FirstName, OccurredAt: now})
	return identity.Public(), nil
}

// Authenticate checks the email and password pair. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials. No session is created.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.IdentityView, error) {
	identity, lookupErr := s.identities.GetByEmail(ctx, email)

	var targetHash string
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = identity.PasswordHash
		exists = true
	case errors.Is(lookupErr, repo.ErrNotFound):
		// Verify against a dummy so unknown emails cost the same as known ones.
		targetHash = s.dummy()
	default:
		s.metrics.AuthOperation("authenticate", observability.OutcomeError)
		return model.IdentityView{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get identity by email").
			Wrap(lookupErr)
	}

	valid, err := s.hasher.Verify(password, targetHash)
	if err != nil && exists {
		s.metrics.AuthOperation("authenticate", observability.OutcomeError)
		return model.IdentityView{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !exists || !valid {
		s.metrics.AuthOperation("authenticate", observability.OutcomeRejected)
		return model.IdentityView{}, ErrInvalidCredentials
	}

	s.metrics.AuthOperation("authenticate", observability.OutcomeSuccess)
	return identity.Public(), nil
}

// dummy returns a hash produced by the configured hasher, so verifying
// against it costs as much as verifying a real credential.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		token, _, err := GenerateToken()
		if err != nil {
			token = "dummy-password-never-matches"
		}
		s.dummyHash, _ = s.hasher.Hash(token)
	})
	return s.dummyHash
}

// CreateSession issues a session for the identity that expires after SessionTTL.
// The returned view carries the plaintext token.
func (s *Service) CreateSession(ctx context.Context, identityID uuid.UUID) (model.SessionView, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.SessionView{}, ErrIdentityNotFound
		}
		s.metrics.AuthOperation("create_session", observability.OutcomeError)
		return model.SessionView{}, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "get identity").
			With("identity_id", identityID.String()).
			Wrap(err)
	}

	now := s.clock.Now().UTC()
	var session model.Session
	token, err := s.issueToken(ctx, func(ctx context.Context, hash string) error {
		session = model.Session{
			ID:         uuid.New(),
			IdentityID: identity.ID,
			TokenHash:  hash,
			CreatedAt:  now,
			ExpiresAt:  now.Add(SessionTTL),
		}
		return s.sessions.Create(ctx, &session)
	})
	if err != nil {
		s.metrics.AuthOperation("create_session", observability.OutcomeError)
		return model.SessionView{}, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("identity_id", identityID.String()).
			Wrap(err)
	}

	s.metrics.AuthOperation("create_session", observability.OutcomeSuccess)
	return model.SessionView{
		ID:        session.ID,
		Token:     token,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		Identity:  identity.Public(),
	}, nil
}

// ResolveSession looks up the session for token. Missing, unknown and
// expired tokens all report (zero, false, nil). It never writes.
func (s *Service) ResolveSession(ctx context.Context, token string) (model.SessionView, bool, error) {
	if token == "" {
		return model.SessionView{}, false, nil
	}

	now := s.clock.Now().UTC()
	session, err := s.sessions.GetActive(ctx, HashToken(token), now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.SessionView{}, false, nil
		}
		return model.SessionView{}, false, oops.Code("AUTH_SESSION_RESOLVE_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	if !session.ActiveAt(now) {
		return model.SessionView{}, false, nil
	}

	identity, err := s.identities.GetByID(ctx, session.IdentityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.SessionView{}, false, nil
		}
		return model.SessionView{}, false, oops.Code("AUTH_SESSION_RESOLVE_FAILED").
			With("operation", "get session owner").
			Wrap(err)
	}

	return model.SessionView{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		Identity:  identity.Public(),
	}, true, nil
}

// EndSession deletes the session for token and reports whether one existed.
func (s *Service) EndSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := s.sessions.Delete(ctx, HashToken(token))
	if err != nil {
		s.metrics.AuthOperation("end_session", observability.OutcomeError)
		return false, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	s.metrics.AuthOperation("end_session", observability.OutcomeSuccess)
	return deleted, nil
}

// SweepExpiredSessions deletes every session expired at the current time and
// returns how many were removed.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now().UTC())
	if err != nil {
		s.metrics.AuthOperation("sweep_sessions", observability.OutcomeError)
		return 0, oops.Code("AUTH_SWEEP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	s.metrics.AuthOperation("sweep_sessions", observability.OutcomeSuccess)
	s.metrics.SessionsSwept(n)
	s.log.Info().Int64("removed", n).Msg("expired sessions swept")
	return n, nil
}

// RequestPasswordReset issues a reset token for email and emits a reset
// event. It returns false when no identity has that email. Callers must
// present both outcomes identically.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.metrics.AuthOperation("request_reset", observability.OutcomeRejected)
			s.log.Debug().Str("email", logging.MaskEmail(email)).Msg("password reset requested for unknown email")
			return false, nil
		}
		s.metrics.AuthOperation("request_reset", observability.OutcomeError)
		return false, oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}

	now := s.clock.Now().UTC()
	token, err := s.issueToken(ctx, func(ctx context.Context, hash string) error {
		return s.resets.Create(ctx, &model.ResetToken{
			ID:         uuid.New(),
			IdentityID: identity.ID,
			TokenHash:  hash,
			CreatedAt:  now,
			ExpiresAt:  now.Add(ResetTokenTTL),
		})
	})
	if err != nil {
		s.metrics.AuthOperation("request_reset", observability.OutcomeError)
		return false, oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "persist reset token").
			Wrap(err)
	}

	s.metrics.AuthOperation("request_reset", observability.OutcomeSuccess)
	s.log.Info().Str("identity_id", identity.ID.String()).Msg("password reset token issued")
	s.emit(ctx, notify.Event{
		Kind:       notify.KindPasswordReset,
		Email:      identity.Email,
		FirstName:  identity.FirstName,
		Token:      token,
		OccurredAt: now,
	})
	return true, nil
}

// ResetPassword consumes the reset token and replaces the owner's password.
// Unknown, expired and already consumed tokens yield ErrInvalidResetToken.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		s.metrics.AuthOperation("reset_password", observability.OutcomeRejected)
		return ErrInvalidResetToken
	}

	now := s.clock.Now().UTC()
	tokenHash := HashToken(token)
	if _, err := s.resets.GetUsable(ctx, tokenHash, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.metrics.AuthOperation("reset_password", observability.OutcomeRejected)
			return ErrInvalidResetToken
		}
		s.metrics.AuthOperation("reset_password", observability.OutcomeError)
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "get reset token").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) || errors.Is(err, ErrPasswordTooLong) {
			return err
		}
		s.metrics.AuthOperation("reset_password", observability.OutcomeError)
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	// The lookup above can race with another consumer; Consume is the
	// compare-and-swap that admits exactly one.
	identityID, err := s.resets.Consume(ctx, tokenHash, now, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.metrics.AuthOperation("reset_password", observability.OutcomeRejected)
			return ErrInvalidResetToken
		}
		s.metrics.AuthOperation("reset_password", observability.OutcomeError)
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}
	s.metrics.AuthOperation("reset_password", observability.OutcomeSuccess)
	s.log.Info().Str("identity_id", identityID.String()).Msg("password reset")

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		s.log.Warn().Err(err).Str("identity_id", identityID.String()).Msg("skipping password changed notification")
		return nil
	}
	s.emit(ctx, notify.Event{
		Kind:       notify.KindPasswordChanged,
		Email:      identity.Email,
		FirstName:  identity.FirstName,
		OccurredAt: now,
	})
	return nil
}

// NotifyLogin emits a login event for identity.
func (s *Service) NotifyLogin(ctx context.Context, identity model.IdentityView) {
	s.emit(ctx, notify.Event{
		Kind:       notify.KindLogin,
		Email:      identity.Email,
		FirstName:  identity.FirstName,
		OccurredAt: s.clock.Now().UTC(),
	})
}

// issueToken generates a token and hands its hash to insert, retrying with a
// fresh token when insert reports a collision.
func (s *Service) issueToken(ctx context.Context, insert func(ctx context.Context, hash string) error) (string, error) {
	backoff := retry.WithMaxRetries(maxTokenAttempts-1, retry.NewConstant(tokenRetryDelay))

	var token string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, hash, err := GenerateToken()
		if err != nil {
			return oops.Code("AUTH_TOKEN_GENERATION_FAILED").Wrap(err)
		}
		if err := insert(ctx, hash); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				s.log.Warn().Msg("token collision, regenerating")
				return retry.RetryableError(err)
			}
			return err
		}
		token = t
		return nil
	})
	return token, err
}

// emit hands the event to the notifier. Failures are logged and counted,
// never returned.
func (s *Service) emit(ctx context.Context, event notify.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.metrics.Notification(string(event.Kind), observability.OutcomeError)
		s.log.Error().
			Err(err).
			Str("kind", string(event.Kind)).
			Str("email", logging.MaskEmail(event.Email)).
			Msg("failed to hand off notification")
		return
	}
	s.metrics.Notification(string(event.Kind), observability.OutcomeSuccess)
}
