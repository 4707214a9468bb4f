package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/keynine/turnserver/internal/authn"
	"github.com/keynine/turnserver/internal/dispatch"
	"github.com/keynine/turnserver/internal/store"
)

type playerView struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	PublicKeyHint string `json:"public_key_hint"`
	Score         int64  `json:"score"`
}

func viewOfPlayer(p *store.Player) playerView {
	return playerView{ID: p.ID, Name: p.Name, PublicKeyHint: p.PublicKeyHint, Score: p.Score}
}

type createPlayerRequest struct {
	Name          string `json:"name"`
	PublicKey     string `json:"public_key"`
	PublicKeyHint string `json:"public_key_hint"`
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" || req.PublicKey == "" || req.PublicKeyHint == "" {
		writeError(w, http.StatusBadRequest, "name, public_key, and public_key_hint are required")
		return
	}

	id, err := s.repo.CreatePlayer(r.Context(), req.Name, req.PublicKeyHint, req.PublicKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create player")
		return
	}

	p, err := s.repo.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load created player")
		return
	}
	writeJSON(w, http.StatusOK, viewOfPlayer(p))
}

type authChallengeRequest struct {
	PlayerID      int64  `json:"player_id"`
	PublicKeyHint string `json:"public_key_hint"`
}

type authChallengeResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresIn int    `json:"expires_in"`
}

func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req authChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	nonce, err := s.auth.RequestChallenge(r.Context(), req.PlayerID, req.PublicKeyHint)
	if err != nil {
		switch {
		case errors.Is(err, authn.ErrPlayerNotFound):
			writeError(w, http.StatusNotFound, "unknown player")
		case errors.Is(err, authn.ErrHintMismatch):
			writeError(w, http.StatusUnauthorized, "public key hint mismatch")
		default:
			writeError(w, http.StatusInternalServerError, "failed to issue challenge")
		}
		return
	}

	writeJSON(w, http.StatusOK, authChallengeResponse{Nonce: nonce, ExpiresIn: 60})
}

type authVerifyRequest struct {
	PlayerID  int64  `json:"player_id"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type authVerifyResponse struct {
	SessionToken string     `json:"session_token"`
	ExpiresAt    string     `json:"expires_at"`
	Player       playerView `json:"player"`
}

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req authVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, expiresAt, player, err := s.auth.VerifyChallenge(r.Context(), req.PlayerID, req.Nonce, req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "nonce or signature verification failed")
		return
	}

	writeJSON(w, http.StatusOK, authVerifyResponse{
		SessionToken: token,
		ExpiresAt:    expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Player:       viewOfPlayer(player),
	})
}

type authLogoutRequest struct {
	SessionToken string `json:"session_token"`
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req authLogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.auth.Logout(req.SessionToken)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request, _ httprouter.Params, playerID int64) {
	p, err := s.repo.GetPlayer(r.Context(), playerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown player")
		return
	}
	writeJSON(w, http.StatusOK, viewOfPlayer(p))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params, _ int64) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	p, err := s.repo.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown player")
		return
	}
	writeJSON(w, http.StatusOK, viewOfPlayer(p))
}

func (s *Server) handleActiveMatches(w http.ResponseWriter, r *http.Request, _ httprouter.Params, playerID int64) {
	mt, err := s.repo.GetActiveMatchFor(r.Context(), playerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load active match")
		return
	}
	if mt == nil {
		writeJSON(w, http.StatusOK, []*dispatch.MatchView{})
		return
	}
	view, err := s.disp.ViewFor(mt, playerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render match")
		return
	}
	writeJSON(w, http.StatusOK, []*dispatch.MatchView{view})
}

type statsResponse struct {
	PlayerID int64 `json:"player_id"`
	Won      int   `json:"won"`
	Lost     int   `json:"lost"`
	Draw     int   `json:"draw"`
	Dropped  int   `json:"dropped"`
	Total    int   `json:"total"`
	Score    int64 `json:"score"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params, playerID int64) {
	target := playerID
	if raw := r.URL.Query().Get("player"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid player query parameter")
			return
		}
		target = id
	}

	stats, err := s.repo.StatsFor(r.Context(), target)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown player")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		PlayerID: stats.PlayerID,
		Won:      stats.Won,
		Lost:     stats.Lost,
		Draw:     stats.Draw,
		Dropped:  stats.Dropped,
		Total:    stats.Total,
		Score:    stats.Score,
	})
}

type leaderboardEntryView struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`
	Rank       int    `json:"rank"`
	Score      int64  `json:"score"`
}

type leaderboardResponse struct {
	Entries    []leaderboardEntryView `json:"entries"`
	TotalCount int                    `json:"total_count"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ int64) {
	limit := 20
	offset := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			offset = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.repo.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	views := make([]leaderboardEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, leaderboardEntryView{PlayerID: e.PlayerID, PlayerName: e.PlayerName, Rank: e.Rank, Score: e.Score})
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: views, TotalCount: total})
}
