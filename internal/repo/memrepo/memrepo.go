// Package memrepo provides in-memory implementations of the repo interfaces
// for dev mode and tests. All state sits behind one mutex, so multi-step
// operations such as reset consumption are atomic like their SQL versions.
package memrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluehex/server/internal/model"
	"github.com/bluehex/server/internal/repo"
)

// Store holds identities, sessions and reset tokens in memory.
type Store struct {
	mu         sync.Mutex
	identities map[uuid.UUID]model.Identity
	byEmail    map[string]uuid.UUID
	sessions   map[string]model.Session
	resets     map[string]model.ResetToken
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		identities: make(map[uuid.UUID]model.Identity),
		byEmail:    make(map[string]uuid.UUID),
		sessions:   make(map[string]model.Session),
		resets:     make(map[string]model.ResetToken),
	}
}

// Identities returns the identity view of the store.
func (s *Store) Identities() repo.IdentityRepo { return identityStore{s} }

// Sessions returns the session view of the store.
func (s *Store) Sessions() repo.SessionRepo { return sessionStore{s} }

// Resets returns the reset token view of the store.
func (s *Store) Resets() repo.ResetRepo { return resetStore{s} }

type identityStore struct{ s *Store }

func (r identityStore) Create(_ context.Context, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.byEmail[identity.Email]; ok {
		return fmt.Errorf("insert identity: %w", repo.ErrConflict)
	}
	if _, ok := r.s.identities[identity.ID]; ok {
		return fmt.Errorf("insert identity: %w", repo.ErrConflict)
	}
	r.s.identities[identity.ID] = cloneIdentity(*identity)
	r.s.byEmail[identity.Email] = identity.ID
	return nil
}

func (r identityStore) GetByEmail(_ context.Context, email string) (model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byEmail[email]
	if !ok {
		return model.Identity{}, fmt.Errorf("identity: %w", repo.ErrNotFound)
	}
	return cloneIdentity(r.s.identities[id]), nil
}

func (r identityStore) GetByID(_ context.Context, id uuid.UUID) (model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return model.Identity{}, fmt.Errorf("identity: %w", repo.ErrNotFound)
	}
	return cloneIdentity(identity), nil
}

// cloneIdentity copies pointer fields so callers cannot mutate stored state.
func cloneIdentity(in model.Identity) model.Identity {
	out := in
	if in.PhoneCountry != nil {
		c := *in.PhoneCountry
		out.PhoneCountry = &c
	}
	if in.PhoneNumber != nil {
		n := *in.PhoneNumber
		out.PhoneNumber = &n
	}
	return out
}

type sessionStore struct{ s *Store }

func (r sessionStore) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[session.TokenHash]; ok {
		return fmt.Errorf("insert session: %w", repo.ErrConflict)
	}
	if _, ok := r.s.identities[session.IdentityID]; !ok {
		return fmt.Errorf("insert session: identity %s does not exist", session.IdentityID)
	}
	r.s.sessions[session.TokenHash] = *session
	return nil
}

func (r sessionStore) GetActive(_ context.Context, tokenHash string, now time.Time) (model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[tokenHash]
	if !ok || !session.ActiveAt(now) {
		return model.Session{}, fmt.Errorf("session: %w", repo.ErrNotFound)
	}
	return session, nil
}

func (r sessionStore) Delete(_ context.Context, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[tokenHash]; !ok {
		return false, nil
	}
	delete(r.s.sessions, tokenHash)
	return true, nil
}

func (r sessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for hash, session := range r.s.sessions {
		if !session.ActiveAt(now) {
			delete(r.s.sessions, hash)
			n++
		}
	}
	return n, nil
}

type resetStore struct{ s *Store }

func (r resetStore) Create(_ context.Context, token *model.ResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.resets[token.TokenHash]; ok {
		return fmt.Errorf("insert reset token: %w", repo.ErrConflict)
	}
	if _, ok := r.s.identities[token.IdentityID]; !ok {
		return fmt.Errorf("insert reset token: identity %s does not exist", token.IdentityID)
	}
	stored := *token
	stored.Consumed = false
	r.s.resets[token.TokenHash] = stored
	return nil
}

func (r resetStore) GetUsable(_ context.Context, tokenHash string, now time.Time) (model.ResetToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.resets[tokenHash]
	if !ok || !token.UsableAt(now) {
		return model.ResetToken{}, fmt.Errorf("reset token: %w", repo.ErrNotFound)
	}
	return token, nil
}

func (r resetStore) Consume(_ context.Context, tokenHash string, now time.Time, passwordHash string) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.resets[tokenHash]
	if !ok || !token.UsableAt(now) {
		return uuid.Nil, fmt.Errorf("reset token: %w", repo.ErrNotFound)
	}
	identity, ok := r.s.identities[token.IdentityID]
	if !ok {
		return uuid.Nil, fmt.Errorf("reset token owner: %w", repo.ErrNotFound)
	}

	token.Consumed = true
	r.s.resets[tokenHash] = token
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = now
	r.s.identities[identity.ID] = identity
	return identity.ID, nil
}
