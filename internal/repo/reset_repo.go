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

const resetTokenConstraint = "reset_tokens_token_hash_key"

// ResetRepo defines the interface for password reset token persistence
type ResetRepo interface {
	// Create inserts an unconsumed reset token. Returns ErrConflict if the token hash already exists.
	Create(ctx context.Context, token *model.ResetToken) error
	// GetUsable returns the unconsumed token with the hash that is unexpired at now,
	// or ErrNotFound. It does not reserve the token; Consume still decides.
	GetUsable(ctx context.Context, tokenHash string, now time.Time) (model.ResetToken, error)
	// Consume marks the token consumed and replaces the owner's password hash in one
	// transaction. It returns the owner's ID, or ErrNotFound if the token is unknown,
	// expired, already consumed, or its owner no longer exists.
	Consume(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (uuid.UUID, error)
}

type resetRepo struct {
	db *sql.DB
}

// NewResetRepo creates a new ResetRepo instance
func NewResetRepo(db *sql.DB) ResetRepo {
	return &resetRepo{db: db}
}

// Create inserts a new reset token
func (r *resetRepo) Create(ctx context.Context, token *model.ResetToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reset_tokens (id, identity_id, token_hash, created_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, false)
	`, token.ID, token.IdentityID, token.TokenHash, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, resetTokenConstraint) {
			return fmt.Errorf("insert reset token: %w", ErrConflict)
		}
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// GetUsable looks up a token that Consume would currently accept.
func (r *resetRepo) GetUsable(ctx context.Context, tokenHash string, now time.Time) (model.ResetToken, error) {
	var token model.ResetToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, token_hash, created_at, expires_at, consumed
		FROM reset_tokens
		WHERE token_hash = $1 AND consumed = false AND expires_at > $2
	`, tokenHash, now).Scan(&token.ID, &token.IdentityID, &token.TokenHash, &token.CreatedAt, &token.ExpiresAt, &token.Consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ResetToken{}, fmt.Errorf("reset token: %w", ErrNotFound)
		}
		return model.ResetToken{}, fmt.Errorf("get reset token: %w", err)
	}
	return token, nil
}

// Consume flips consumed with a conditional UPDATE so that, of any number of
// concurrent attempts, only one sees a returned row.
func (r *resetRepo) Consume(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (uuid.UUID, error) {
	var identityID uuid.UUID
	err := WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		var idStr string
		err := tx.QueryRowContext(ctx, `
			UPDATE reset_tokens
			SET consumed = true
			WHERE token_hash = $1 AND consumed = false AND expires_at > $2
			RETURNING identity_id
		`, tokenHash, now).Scan(&idStr)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reset token: %w", ErrNotFound)
			}
			return fmt.Errorf("consume reset token: %w", err)
		}
		identityID, err = uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("parse identity ID: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE identities
			SET password_hash = $1, updated_at = $2
			WHERE id = $3
		`, passwordHash, now, identityID)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update password rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("reset token owner: %w", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return identityID, nil
}
