package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluehex/server/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var identityRowColumns = []string{
	"id", "email", "first_name", "last_name", "phone_country", "phone_number",
	"password_hash", "is_active", "role", "created_at", "updated_at",
}

func TestIdentityRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	country := model.PhoneCountryAU
	phone := "412345678"
	identity := &model.Identity{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		FirstName:    "Alice",
		LastName:     "Liddell",
		PhoneCountry: &country,
		PhoneNumber:  &phone,
		PasswordHash: "$2a$04$hash",
		IsActive:     true,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+identities\b.*VALUES`).
		WithArgs(identity.ID, "alice@example.com", "Alice", "Liddell", "au", "412345678",
			"$2a$04$hash", true, "user", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), identity))
}

func TestIdentityRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+identities\b`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "identities_email_key"})

	err := repo.Create(context.Background(), &model.Identity{ID: uuid.New(), Email: "dup@example.com", Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIdentityRepo_CreateOtherError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+identities\b`).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &model.Identity{ID: uuid.New(), Role: model.RoleUser})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIdentityRepo_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	id := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(identityRowColumns).
		AddRow(id.String(), "alice@example.com", "Alice", "Liddell", "ph", "9171234567",
			"hash", true, "admin", now, now)
	mock.ExpectQuery(`(?s)SELECT\s+id,\s*email.*FROM\s+identities\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, model.RoleAdmin, got.Role)
	require.NotNil(t, got.PhoneCountry)
	assert.Equal(t, model.PhoneCountryPH, *got.PhoneCountry)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, "9171234567", *got.PhoneNumber)
}

func TestIdentityRepo_GetByIDNullPhone(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	id := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(identityRowColumns).
		AddRow(id.String(), "bob@example.com", "Bob", "B", nil, nil, "hash", true, "user", now, now)
	mock.ExpectQuery(`(?s)FROM\s+identities\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(id).
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got.PhoneCountry)
	assert.Nil(t, got.PhoneNumber)
}

func TestIdentityRepo_GetByEmailNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIdentityRepo(db)

	mock.ExpectQuery(`(?s)FROM\s+identities\s+WHERE\s+email`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(identityRowColumns))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_CreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions\b`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sessions_token_hash_key"})

	err := repo.Create(context.Background(), &model.Session{ID: uuid.New(), IdentityID: uuid.New(), TokenHash: "h"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSessionRepo_GetActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	id, owner := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{"id", "identity_id", "token_hash", "created_at", "expires_at"}).
		AddRow(id.String(), owner.String(), "h", now, now.Add(time.Hour))
	mock.ExpectQuery(`(?s)FROM\s+sessions\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2`).
		WithArgs("h", now).
		WillReturnRows(rows)

	got, err := repo.GetActive(context.Background(), "h", now)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, owner, got.IdentityID)
}

func TestSessionRepo_GetActiveMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+sessions`).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "token_hash", "created_at", "expires_at"}))

	_, err := repo.GetActive(context.Background(), "h", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+token_hash\s*=\s*\$1`).
		WithArgs("h").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+token_hash\s*=\s*\$1`).
		WithArgs("h").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "h")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestResetRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	token := &model.ResetToken{ID: uuid.New(), IdentityID: uuid.New(), TokenHash: "h", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+reset_tokens\b.*false\)`).
		WithArgs(token.ID, token.IdentityID, "h", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), token))
}

const usableResetQuery = `(?s)SELECT\s+id,\s*identity_id,\s*token_hash,\s*created_at,\s*expires_at,\s*consumed\s+FROM\s+reset_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+consumed\s*=\s*false\s+AND\s+expires_at\s*>\s*\$2`

func TestResetRepo_GetUsable(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	id, owner := uuid.New(), uuid.New()
	mock.ExpectQuery(usableResetQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "token_hash", "created_at", "expires_at", "consumed"}).
			AddRow(id.String(), owner.String(), "h", now, now.Add(time.Hour), false))

	got, err := repo.GetUsable(context.Background(), "h", now)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, owner, got.IdentityID)
	assert.False(t, got.Consumed)
}

func TestResetRepo_GetUsableNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	mock.ExpectQuery(usableResetQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "token_hash", "created_at", "expires_at", "consumed"}))

	_, err := repo.GetUsable(context.Background(), "h", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

const consumeQuery = `(?s)UPDATE\s+reset_tokens\s+SET\s+consumed\s*=\s*true\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+consumed\s*=\s*false\s+AND\s+expires_at\s*>\s*\$2\s+RETURNING\s+identity_id`

func TestResetRepo_Consume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	owner := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"identity_id"}).AddRow(owner.String()))
	mock.ExpectExec(`(?s)UPDATE\s+identities\s+SET\s+password_hash\s*=\s*\$1`).
		WithArgs("newhash", now, owner).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Consume(context.Background(), "h", now, "newhash")
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestResetRepo_ConsumeUnusableToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"identity_id"}))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "h", now, "newhash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetRepo_ConsumeMissingOwnerRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	owner := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"identity_id"}).AddRow(owner.String()))
	mock.ExpectExec(`(?s)UPDATE\s+identities`).
		WithArgs("newhash", now, owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "h", now, "newhash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetRepo_ConsumeUpdateFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResetRepo(db)

	now := time.Now().UTC()
	owner := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).
		WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"identity_id"}).AddRow(owner.String()))
	mock.ExpectExec(`(?s)UPDATE\s+identities`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "h", now, "newhash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
