package authn

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"time"

	"github.com/keynine/turnserver/internal/store"
)

var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrHintMismatch    = errors.New("public key hint mismatch")
	ErrBadSignature    = errors.New("signature verification failed")
	ErrMalformedHeader = errors.New("missing or malformed Authorization header")
)

// PlayerStore is the subset of Repository the auth service needs, kept
// narrow so it's trivial to fake in tests.
type PlayerStore interface {
	GetPlayer(ctx context.Context, id int64) (*store.Player, error)
}

// Service implements C5: challenge issuance and signature verification,
// per spec.md §4.5 and the signature contract of spec.md §6.
type Service struct {
	players  PlayerStore
	nonces   *NonceCache
	sessions *SessionCache
}

func NewService(players PlayerStore, nonces *NonceCache, sessions *SessionCache) *Service {
	return &Service{players: players, nonces: nonces, sessions: sessions}
}

// RequestChallenge issues a nonce for player_id after checking the
// presented key_hint against the persisted record.
func (s *Service) RequestChallenge(ctx context.Context, playerID int64, keyHint string) (nonce string, err error) {
	p, err := s.players.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrPlayerNotFound
		}
		return "", err
	}
	if p.PublicKeyHint != keyHint {
		return "", ErrHintMismatch
	}
	return s.nonces.Create(playerID)
}

// VerifyChallenge consumes the nonce, verifies the signature against the
// player's public key, and on success mints a session token.
func (s *Service) VerifyChallenge(ctx context.Context, playerID int64, nonce, signatureB64 string) (token string, expiresAt time.Time, player *store.Player, err error) {
	if err = s.nonces.VerifyAndConsume(nonce, playerID); err != nil {
		return "", time.Time{}, nil, err
	}

	p, err := s.players.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, nil, ErrPlayerNotFound
		}
		return "", time.Time{}, nil, err
	}

	pub, err := parsePublicKey(p.PublicKeyPEM)
	if err != nil {
		return "", time.Time{}, nil, ErrBadSignature
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return "", time.Time{}, nil, ErrBadSignature
	}

	digest := sha256.Sum256([]byte(nonce))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return "", time.Time{}, nil, ErrBadSignature
	}

	token, expiresAt = s.sessions.Create(playerID)
	return token, expiresAt, p, nil
}

// AuthenticateRequest extracts "Authorization: Bearer <token>" and
// resolves it to a player ID via the session cache.
func (s *Service) AuthenticateRequest(authorizationHeader string) (int64, error) {
	const prefix = "Bearer "
	if len(authorizationHeader) <= len(prefix) || authorizationHeader[:len(prefix)] != prefix {
		return 0, ErrMalformedHeader
	}
	token := authorizationHeader[len(prefix):]
	return s.sessions.Verify(token)
}

// Logout revokes a session token explicitly.
func (s *Service) Logout(token string) {
	s.sessions.Revoke(token)
}

// parsePublicKey accepts a PEM-encoded RSA key in either PKCS#1 or SPKI
// form, per the signature contract of spec.md §6.
func parsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}

	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}

	any, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := any.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
