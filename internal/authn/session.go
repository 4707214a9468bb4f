package authn

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionUnknown = errors.New("unknown or expired session")

type sessionEntry struct {
	playerID  int64
	issuedAt  time.Time
	expiresAt time.Time
}

// SessionCache is the bearer-token cache of spec.md §4.4: UUID-grade
// tokens, 24h TTL, explicit revocation, periodic expiry sweep.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	ttl     time.Duration
}

func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
	}
}

// Create mints a session token for playerID and returns the token and its
// absolute expiry.
func (c *SessionCache) Create(playerID int64) (token string, expiresAt time.Time) {
	now := time.Now()
	expiresAt = now.Add(c.ttl)
	token = uuid.NewString()

	c.mu.Lock()
	c.entries[token] = &sessionEntry{playerID: playerID, issuedAt: now, expiresAt: expiresAt}
	c.mu.Unlock()

	return token, expiresAt
}

// Verify resolves a bearer token to a player ID, failing on unknown or
// expired tokens.
func (c *SessionCache) Verify(token string) (int64, error) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok {
		return 0, ErrSessionUnknown
	}
	if time.Now().After(e.expiresAt) {
		return 0, ErrSessionUnknown
	}
	return e.playerID, nil
}

func (c *SessionCache) Revoke(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

func (c *SessionCache) RevokeAllFor(playerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, e := range c.entries {
		if e.playerID == playerID {
			delete(c.entries, token)
		}
	}
}

// CleanupExpired drops every entry past its expiry.
func (c *SessionCache) CleanupExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, token)
		}
	}
}

// Run sweeps on an interval until stop is closed.
func (c *SessionCache) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stop:
			return
		}
	}
}
