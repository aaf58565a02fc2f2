package routing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mealcart/commerce-router/internal/types"
)

// DefaultTokenTTL is how long a quoted route stays confirmable.
const DefaultTokenTTL = 15 * time.Minute

// tokenEntry pairs a route with its mutable token state.
type tokenEntry struct {
	route *types.OrderRoute
}

// TokenStore holds confirmation tokens and performs their state
// transitions. Every transition is a compare-and-swap under the store
// lock: two near-simultaneous confirms on the same token cannot both
// succeed. Expiry is lazy: a QUOTED token past its deadline is treated
// as EXPIRED on next access.
type TokenStore struct {
	mu      sync.Mutex
	entries map[string]*tokenEntry
	ttl     time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewTokenStore creates a token store with the given TTL.
func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{
		entries: make(map[string]*tokenEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue mints a single-use token in state QUOTED for the route and
// stores it. The token value is an unguessable random UUID.
func (s *TokenStore) Issue(route *types.OrderRoute) types.ConfirmationToken {
	now := s.now()
	token := types.ConfirmationToken{
		Value:     uuid.NewString(),
		OrderID:   route.OrderID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		State:     types.TokenStateQuoted,
	}
	route.Token = token

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token.Value] = &tokenEntry{route: route}
	return token
}

// Confirm atomically transitions QUOTED -> CONFIRMED, enforcing the TTL
// and single-use invariant.
func (s *TokenStore) Confirm(value string) (*types.OrderRoute, error) {
	return s.transition(value, types.TokenStateConfirmed, func(state types.TokenState) error {
		if state != types.TokenStateQuoted {
			return types.ErrTokenAlreadyUsed
		}
		return nil
	})
}

// Cancel transitions QUOTED or CONFIRMED -> CANCELLED.
func (s *TokenStore) Cancel(value string) (*types.OrderRoute, error) {
	return s.transition(value, types.TokenStateCancelled, func(state types.TokenState) error {
		if state != types.TokenStateQuoted && state != types.TokenStateConfirmed {
			return types.ErrTokenAlreadyUsed
		}
		return nil
	})
}

// Complete transitions CONFIRMED -> COMPLETED, closing the route.
func (s *TokenStore) Complete(value string) (*types.OrderRoute, error) {
	return s.transition(value, types.TokenStateCompleted, func(state types.TokenState) error {
		if state != types.TokenStateConfirmed {
			return types.ErrTokenAlreadyUsed
		}
		return nil
	})
}

// Get returns the route for a token value with lazy expiry applied.
func (s *TokenStore) Get(value string) (*types.OrderRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[value]
	if !ok {
		return nil, types.ErrTokenNotFound
	}
	s.expireLocked(entry)
	return entry.route, nil
}

// transition runs one atomic check-and-set on the token state.
func (s *TokenStore) transition(value string, target types.TokenState, allowed func(types.TokenState) error) (*types.OrderRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[value]
	if !ok {
		return nil, types.ErrTokenNotFound
	}

	s.expireLocked(entry)

	state := entry.route.Token.State
	if state == types.TokenStateExpired {
		return nil, types.ErrTokenExpired
	}
	if err := allowed(state); err != nil {
		return nil, err
	}

	entry.route.Token.State = target
	return entry.route, nil
}

// expireLocked applies lazy expiry: a QUOTED token past its deadline
// becomes EXPIRED.
func (s *TokenStore) expireLocked(entry *tokenEntry) {
	token := &entry.route.Token
	if token.State == types.TokenStateQuoted && !s.now().Before(token.ExpiresAt) {
		token.State = types.TokenStateExpired
	}
}
