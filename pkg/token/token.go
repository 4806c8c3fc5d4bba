// Package token owns the persisted auth credentials. Every other component
// borrows the token read-only per operation and never caches it, so a
// logout or refresh is always picked up by the next call.
package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned by Get when no token is stored.
	ErrNoToken = errors.New("no token stored")
	// ErrStorage wraps local persistence failures. Never swallowed.
	ErrStorage = errors.New("token storage error")
)

// ExpiryMargin is the safety window before the recorded expiry within which
// a token is already treated as expired, so requests do not race the
// backend's clock.
const ExpiryMargin = 60 * time.Second

// Token is the bearer credential plus optional metadata.
type Token struct {
	Access string    `json:"access"`
	UserID string    `json:"user_id,omitempty"`
	Expiry time.Time `json:"expiry,omitzero"`
}

// Expired reports whether now is within ExpiryMargin of the recorded
// expiry. Tokens without a recorded expiry never expire; that weak
// guarantee is the documented trade-off for opaque tokens.
func (t Token) Expired(now time.Time) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Before(t.Expiry.Add(-ExpiryMargin))
}

// Store persists the auth token. Implementations serialize concurrent
// Save/Clear calls so the final state is always one of the requested
// states, never a merge.
type Store interface {
	// Get returns the stored token or ErrNoToken.
	Get(ctx context.Context) (Token, error)

	// Save replaces the stored token.
	Save(ctx context.Context, t Token) error

	// Clear erases all fields atomically; a concurrent reader never
	// observes a partially cleared token.
	Clear(ctx context.Context) error

	// IsExpired reports whether the stored token is absent or inside the
	// expiry safety margin.
	IsExpired(ctx context.Context) (bool, error)
}

// ExtractExpiry recovers the expiry instant from a JWT access token's exp
// claim without verifying the signature (the client has no signing key).
// Returns false for opaque or claim-less tokens.
func ExtractExpiry(access string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(access, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// MemoryStore is an in-memory Store, used in tests and as the default when
// no persistence path is configured.
type MemoryStore struct {
	mu    sync.Mutex
	token *Token
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Token{}, ErrNoToken
	}
	return *s.token, nil
}

func (s *MemoryStore) Save(ctx context.Context, t Token) error {
	withExpiry := withRecoveredExpiry(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &withExpiry
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

func (s *MemoryStore) IsExpired(ctx context.Context) (bool, error) {
	tok, err := s.Get(ctx)
	if errors.Is(err, ErrNoToken) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return tok.Expired(time.Now()), nil
}

// withRecoveredExpiry fills a missing expiry from the token's exp claim
// when possible, narrowing the never-expiring fallback to genuinely opaque
// tokens.
func withRecoveredExpiry(t Token) Token {
	if t.Expiry.IsZero() {
		if exp, ok := ExtractExpiry(t.Access); ok {
			t.Expiry = exp
		}
	}
	return t
}
