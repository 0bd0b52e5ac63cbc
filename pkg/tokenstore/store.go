// Package tokenstore holds the single cached bearer token of the gateway.
package tokenstore

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// State is the lifecycle state of the slot at a given instant.
type State string

const (
	StateEmpty   State = "empty"
	StateValid   State = "valid"
	StateExpired State = "expired"
)

// Slot is a single-slot token cell. A stored token is replaced as a whole
// and is only handed out while the query instant is strictly before its expiry.
type Slot struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Set overwrites the slot. Tokens without an expiry are rejected because a
// stored token must always know when it stops being usable.
func (s *Slot) Set(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("tokenstore: empty token")
	}
	if tok.Expiry.IsZero() {
		return errors.New("tokenstore: token has no expiry")
	}
	cp := *tok
	s.mu.Lock()
	s.token = &cp
	s.mu.Unlock()
	return nil
}

// Get returns the token if it is still usable at now.
// Returns ErrTokenNotFound or ErrTokenExpired otherwise.
func (s *Slot) Get(now time.Time) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrTokenNotFound
	}
	if !now.Before(s.token.Expiry) {
		return nil, ErrTokenExpired
	}
	cp := *s.token
	return &cp, nil
}

// State reports the slot state at now.
func (s *Slot) State(now time.Time) State {
	_, err := s.Get(now)
	switch {
	case err == nil:
		return StateValid
	case errors.Is(err, ErrTokenExpired):
		return StateExpired
	default:
		return StateEmpty
	}
}

// ExpiresAt returns the expiry of the stored token, or the zero time when empty.
func (s *Slot) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return time.Time{}
	}
	return s.token.Expiry
}
