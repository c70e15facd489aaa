package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bluehex/server/internal/model"
)

const identityEmailConstraint = "identities_email_key"

// IdentityRepo defines the interface for identity persistence
type IdentityRepo interface {
	// Create inserts a new identity. Returns ErrConflict if the email is taken.
	Create(ctx context.Context, identity *model.Identity) error
	GetByEmail(ctx context.Context, email string) (model.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Identity, error)
}

type identityRepo struct {
	db DBTX
}

// NewIdentityRepo creates a new IdentityRepo instance
func NewIdentityRepo(db DBTX) IdentityRepo {
	return &identityRepo{db: db}
}

const identityColumns = `id, email, first_name, last_name, phone_country, phone_number,
		       password_hash, is_active, role, created_at, updated_at`

// Create inserts the identity. The unique index on email is the only
// duplicate check, so concurrent registrations cannot both succeed.
func (r *identityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, first_name, last_name, phone_country, phone_number,
		                        password_hash, is_active, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		phoneCountryArg(identity.PhoneCountry),
		identity.PhoneNumber,
		identity.PasswordHash,
		identity.IsActive,
		string(identity.Role),
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, identityEmailConstraint) {
			return fmt.Errorf("insert identity: %w", ErrConflict)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByEmail retrieves an identity by exact email match
func (r *identityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE email = $1
	`, email)
	return scanIdentity(row)
}

// GetByID retrieves an identity by ID
func (r *identityRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (model.Identity, error) {
	var (
		identity     model.Identity
		idStr        string
		phoneCountry sql.NullString
		phoneNumber  sql.NullString
		role         string
	)
	err := row.Scan(
		&idStr,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&phoneCountry,
		&phoneNumber,
		&identity.PasswordHash,
		&identity.IsActive,
		&role,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("identity: %w", ErrNotFound)
		}
		return model.Identity{}, fmt.Errorf("query identity: %w", err)
	}

	identity.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Identity{}, fmt.Errorf("parse identity ID: %w", err)
	}
	if phoneCountry.Valid {
		c := model.PhoneCountry(phoneCountry.String)
		identity.PhoneCountry = &c
	}
	if phoneNumber.Valid {
		n := phoneNumber.String
		identity.PhoneNumber = &n
	}
	identity.Role = model.Role(role)
	return identity, nil
}

func phoneCountryArg(c *model.PhoneCountry) any {
	if c == nil {
		return nil
	}
	return string(*c)
}
