package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bluehex/server/internal/model"
)

const sessionTokenConstraint = "sessions_token_hash_key"

// SessionRepo defines the interface for authentication session persistence
type SessionRepo interface {
	// Create inserts a session. Returns ErrConflict if the token hash already exists.
	Create(ctx context.Context, session *model.Session) error
	// GetActive returns the session for tokenHash if it expires strictly after now.
	GetActive(ctx context.Context, tokenHash string, now time.Time) (model.Session, error)
	// Delete removes the session for tokenHash and reports whether a row was removed.
	Delete(ctx context.Context, tokenHash string) (bool, error)
	// DeleteExpired removes every session with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepo struct {
	db DBTX
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db DBTX) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a new session
func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, identity_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, session.ID, session.IdentityID, session.TokenHash, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, sessionTokenConstraint) {
			return fmt.Errorf("insert session: %w", ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetActive returns the session if it exists and has not expired
func (r *sessionRepo) GetActive(ctx context.Context, tokenHash string, now time.Time) (model.Session, error) {
	var s model.Session
	var idStr, identityIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, token_hash, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now).Scan(
		&idStr,
		&identityIDStr,
		&s.TokenHash,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, fmt.Errorf("session: %w", ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("find session: %w", err)
	}
	if s.ID, err = uuid.Parse(idStr); err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	if s.IdentityID, err = uuid.Parse(identityIDStr); err != nil {
		return model.Session{}, fmt.Errorf("parse identity ID: %w", err)
	}
	return s, nil
}

// Delete removes a session by token hash
func (r *sessionRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired purges sessions whose expiry is at or before now
func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions rows affected: %w", err)
	}
	return n, nil
}
