// Package authn implements the session and challenge-authentication
// subsystem: the nonce cache (C3), session cache (C4), and the auth
// service (C5) that ties them to the signature contract of spec.md §6.
package authn

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

var (
	ErrNonceUnknown     = errors.New("unknown nonce")
	ErrNonceConsumed    = errors.New("nonce already consumed")
	ErrNonceExpired     = errors.New("nonce expired")
	ErrNonceWrongPlayer = errors.New("nonce bound to a different player")
)

type nonceEntry struct {
	playerID  int64
	createdAt time.Time
	consumed  bool
}

// NonceCache is the one-shot challenge cache of spec.md §4.3: 60s validity
// window, single use, swept after 5 minutes regardless of consumption.
type NonceCache struct {
	mu      sync.RWMutex
	entries map[string]*nonceEntry
	ttl     time.Duration
	sweepAfter time.Duration
}

func NewNonceCache(ttl time.Duration) *NonceCache {
	return &NonceCache{
		entries:    make(map[string]*nonceEntry),
		ttl:        ttl,
		sweepAfter: 5 * time.Minute,
	}
}

// nonceLength is 33 alphanumeric characters: 33*log2(62) ~= 196.5 bits,
// clearing spec.md §3's >=192-bit entropy floor and §4.3's >=32-character
// floor (32 characters alone lands at ~190.5 bits, just short of §3).
const nonceLength = 33

// Create mints a nonce of at least 32 alphanumeric characters, per
// spec.md §4.3/§3, using crypto/rand, in the teacher's randomGameID idiom.
func (c *NonceCache) Create(playerID int64) (string, error) {
	value, err := randomAlphanumeric(nonceLength)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[value] = &nonceEntry{playerID: playerID, createdAt: time.Now()}
	c.mu.Unlock()

	return value, nil
}

// VerifyAndConsume atomically checks and marks a nonce consumed. Per
// spec.md §8 property 3, a nonce can fail a second verification with
// exactly one of {consumed, expired, unknown}.
func (c *NonceCache) VerifyAndConsume(value string, playerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[value]
	if !ok {
		return ErrNonceUnknown
	}
	if e.playerID != playerID {
		return ErrNonceWrongPlayer
	}
	if e.consumed {
		return ErrNonceConsumed
	}
	if time.Since(e.createdAt) > c.ttl {
		return ErrNonceExpired
	}

	e.consumed = true
	return nil
}

// Sweep purges entries older than sweepAfter (5 minutes), regardless of
// consumption. Intended to be run on a ticker from main.
func (c *NonceCache) Sweep() {
	cutoff := time.Now().Add(-c.sweepAfter)

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.createdAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Run sweeps on an interval until stop is closed.
func (c *NonceCache) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}

const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomAlphanumeric draws n unbiased characters from crypto/rand, adapting
// the teacher's randomGameID rejection-sampling idiom (celebrities.go).
func randomAlphanumeric(n int) (string, error) {
	const maxByte = byte(255 - (256 % len(alphanumericAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b <= maxByte {
				out = append(out, alphanumericAlphabet[int(b)%len(alphanumericAlphabet)])
				if len(out) == n {
					return string(out), nil
				}
			}
		}
	}

	return string(out), nil
}
