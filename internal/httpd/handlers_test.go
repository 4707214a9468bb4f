package httpd

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/keynine/turnserver/internal/authn"
	"github.com/keynine/turnserver/internal/dispatch"
	"github.com/keynine/turnserver/internal/engine"
	"github.com/keynine/turnserver/internal/store"
)

// fakeRepo is a minimal in-memory store.Repository for handler tests.
type fakeRepo struct {
	players map[int64]*store.Player
	nextID  int64
	entries []store.LeaderboardEntry
	stats   map[int64]*store.Stats
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{players: make(map[int64]*store.Player), stats: make(map[int64]*store.Stats)}
}

func (f *fakeRepo) CreatePlayer(ctx context.Context, name, hint, pem string) (int64, error) {
	f.nextID++
	f.players[f.nextID] = &store.Player{ID: f.nextID, Name: name, PublicKeyHint: hint, PublicKeyPEM: pem}
	return f.nextID, nil
}
func (f *fakeRepo) GetPlayer(ctx context.Context, id int64) (*store.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}
func (f *fakeRepo) CreateWaitingMatch(ctx context.Context, player1ID int64, gt engine.GameType) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) FindWaitingMatch(ctx context.Context, excludingPlayer int64, gt engine.GameType) (*store.Match, error) {
	return nil, nil
}
func (f *fakeRepo) JoinWaitingMatch(ctx context.Context, matchID, player2ID int64, initialState json.RawMessage) error {
	return nil
}
func (f *fakeRepo) GetActiveMatchFor(ctx context.Context, playerID int64) (*store.Match, error) {
	return nil, nil
}
func (f *fakeRepo) GetMatch(ctx context.Context, matchID int64) (*store.Match, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRepo) UpdateMatch(ctx context.Context, matchID int64, newState json.RawMessage, inProgress bool, outcome *engine.Outcome, endReason *store.EndReason) error {
	return nil
}
func (f *fakeRepo) DeleteMatch(ctx context.Context, matchID int64) error { return nil }
func (f *fakeRepo) ApplyScoreDelta(ctx context.Context, m *store.Match) error { return nil }
func (f *fakeRepo) Leaderboard(ctx context.Context, limit, offset int) ([]store.LeaderboardEntry, int, error) {
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	if offset > len(f.entries) {
		return nil, len(f.entries), nil
	}
	return f.entries[offset:end], len(f.entries), nil
}
func (f *fakeRepo) StatsFor(ctx context.Context, playerID int64) (*store.Stats, error) {
	s, ok := f.stats[playerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}
func (f *fakeRepo) Close() error { return nil }

func newTestServer() (*Server, *fakeRepo, *authn.Service) {
	repo := newFakeRepo()
	svc := authn.NewService(repo, authn.NewNonceCache(60*time.Second), authn.NewSessionCache(24*time.Hour))
	return &Server{repo: repo, auth: svc, disp: dispatch.New()}, repo, svc
}

func doRequest(s *Server, handle httprouter.Handle, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handle(rec, req, nil)
	return rec
}

func TestHandleCreatePlayerValidation(t *testing.T) {
	s, _, _ := newTestServer()

	rec := doRequest(s, s.handleCreatePlayer, http.MethodPost, "/player", []byte(`{"name":""}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing fields", rec.Code)
	}
}

func TestHandleCreatePlayerSuccess(t *testing.T) {
	s, repo, _ := newTestServer()

	body := []byte(`{"name":"alice","public_key":"pem-data","public_key_hint":"hint-1"}`)
	rec := doRequest(s, s.handleCreatePlayer, http.MethodPost, "/player", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var view playerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if view.Name != "alice" || view.PublicKeyHint != "hint-1" {
		t.Errorf("response = %+v, unexpected", view)
	}
	if len(repo.players) != 1 {
		t.Fatalf("len(repo.players) = %d, want 1", len(repo.players))
	}
}

func TestWithCSRFRejectsMissingHeader(t *testing.T) {
	s, _, _ := newTestServer()
	wrapped := s.withCSRF(s.handleCreatePlayer)

	rec := doRequest(s, wrapped, http.MethodPost, "/player", []byte(`{}`), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 without CSRF header", rec.Code)
	}
}

func TestWithCSRFAllowsWithHeader(t *testing.T) {
	s, _, _ := newTestServer()
	wrapped := s.withCSRF(s.handleCreatePlayer)

	body := []byte(`{"name":"bob","public_key":"pem","public_key_hint":"h"}`)
	rec := doRequest(s, wrapped, http.MethodPost, "/player", body, map[string]string{csrfHeader: "1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with CSRF header present", rec.Code)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	s, _, _ := newTestServer()
	wrapped := s.withAuth(s.handleGetSelf)

	rec := doRequest(s, wrapped, http.MethodGet, "/player", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without Authorization header", rec.Code)
	}
}

func TestWithAuthAllowsValidToken(t *testing.T) {
	s, repo, svc := newTestServer()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))
	repo.players[1] = &store.Player{ID: 1, Name: "alice", PublicKeyHint: "hint-1", PublicKeyPEM: pubPEM}

	nonce, err := svc.RequestChallenge(context.Background(), 1, "hint-1")
	if err != nil {
		t.Fatalf("RequestChallenge: %v", err)
	}
	digest := sha256.Sum256([]byte(nonce))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}
	tok, _, _, err := svc.VerifyChallenge(context.Background(), 1, nonce, base64.StdEncoding.EncodeToString(sig))
	if err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}

	wrapped := s.withAuth(s.handleGetSelf)
	rec := doRequest(s, wrapped, http.MethodGet, "/player", nil, map[string]string{"Authorization": "Bearer " + tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with valid bearer token, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatsDefaultsToAuthenticatedPlayer(t *testing.T) {
	s, repo, _ := newTestServer()
	repo.stats[1] = &store.Stats{PlayerID: 1, Won: 2, Total: 3}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.handleStats(rec, req, nil, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Won != 2 || resp.Total != 3 {
		t.Errorf("statsResponse = %+v, unexpected", resp)
	}
}

func TestHandleLeaderboardClampsLimit(t *testing.T) {
	s, repo, _ := newTestServer()
	for i := 0; i < 5; i++ {
		repo.entries = append(repo.entries, store.LeaderboardEntry{PlayerID: int64(i), PlayerName: "p", Rank: i + 1})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard?limit=999&offset=0", nil)
	s.handleLeaderboard(rec, req, nil, 0)

	var resp leaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TotalCount != 5 {
		t.Errorf("TotalCount = %d, want 5", resp.TotalCount)
	}
	if len(resp.Entries) != 5 {
		t.Errorf("len(Entries) = %d, want 5 (all entries, limit clamp doesn't truncate below actual count)", len(resp.Entries))
	}
}
