// Package session manages server-side browser sessions and the
// transient pending-authorization state used during login. Sessions
// live in process memory; the browser only ever holds an opaque,
// HMAC-signed session ID.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roomboard/server/internal/oidc"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

const (
	idLength = 32 // 256 bits

	// pendingTTL bounds how long a login redirect may stay outstanding
	// before the callback arrives.
	pendingTTL = 10 * time.Minute
)

// Record is an authenticated session. The raw ID token is retained only
// so logout can pass it to the provider as id_token_hint; it is never
// serialized into API responses.
type Record struct {
	Claims    oidc.Claims
	Tokens    *oidc.TokenResponse
	IDToken   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is an in-memory session store. It also holds pending
// authorization requests keyed by their own one-time IDs.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Record
	pending  map[string]pendingEntry
}

type pendingEntry struct {
	req       *oidc.PendingAuthRequest
	expiresAt time.Time
}

// NewStore creates a store whose sessions expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Record),
		pending:  make(map[string]pendingEntry),
	}
}

// Create stores a new session record and returns its ID.
func (s *Store) Create(rec *Record) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	now := s.now()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	s.sessions[id] = rec
	s.mu.Unlock()
	return id, nil
}

// Get returns the session for id. Expired sessions are removed at
// lookup time and reported as ErrExpired.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		delete(s.sessions, id)
		return nil, ErrExpired
	}
	return rec, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// PutPending stores a pending authorization request and returns its
// one-time ID.
func (s *Store) PutPending(req *oidc.PendingAuthRequest) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("generate pending ID: %w", err)
	}

	s.mu.Lock()
	s.pending[id] = pendingEntry{req: req, expiresAt: s.now().Add(pendingTTL)}
	s.mu.Unlock()
	return id, nil
}

// TakePending removes and returns the pending request for id. A second
// call with the same id fails: the state, nonce and verifier are
// consumed before any of them is compared, so a replayed callback can
// never find them again.
func (s *Store) TakePending(id string) (*oidc.PendingAuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.pending, id)
	if !s.now().Before(entry.expiresAt) {
		return nil, ErrExpired
	}
	return entry.req, nil
}

// Sweep removes expired sessions and pending entries. Called
// periodically by a background goroutine.
func (s *Store) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.sessions {
		if !now.Before(rec.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
	for id, entry := range s.pending {
		if !now.Before(entry.expiresAt) {
			delete(s.pending, id)
		}
	}
}

func generateID() (string, error) {
	bytes := make([]byte, idLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
