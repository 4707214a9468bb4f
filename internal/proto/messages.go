// Package proto defines the wire shapes of the real-time channel (C9):
// the tagged-union client and server messages of spec.md §6. It sits
// below both the matchmaker and the real-time endpoint so neither needs
// to import the other.
package proto

import (
	"encoding/json"

	"github.com/keynine/turnserver/internal/dispatch"
)

// Client message types, sent by the player over the websocket.
const (
	ClientAuthenticate    = "authenticate"
	ClientJoinMatchmaking = "join_matchmaking"
	ClientResumeMatch     = "resume_match"
	ClientMakeMove        = "make_move"
	ClientPing            = "ping"
)

// Server message types, sent to the player over the websocket.
const (
	ServerAuthSuccess        = "auth_success"
	ServerAuthFailed         = "auth_failed"
	ServerWaitingForOpponent = "waiting_for_opponent"
	ServerMatchFound         = "match_found"
	ServerGameStateUpdate    = "game_state_update"
	ServerPlayerDisconnected = "player_disconnected"
	ServerResumableMatch     = "resumable_match"
	ServerMatchEnded         = "match_ended"
	ServerError              = "error"
	ServerPong               = "pong"
)

// MatchEnded reasons, per spec.md §6.
const (
	ReasonEnded         = "ended"
	ReasonDisconnection = "disconnection"
)

// ClientEnvelope is decoded first to dispatch on Type; the reader then
// re-decodes the full payload into the concrete shape below.
type ClientEnvelope struct {
	Type string `json:"type"`
}

type AuthenticatePayload struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinMatchmakingPayload struct {
	Type     string `json:"type"`
	GameType string `json:"game_type"`
}

type MakeMovePayload struct {
	Type     string          `json:"type"`
	MoveData json.RawMessage `json:"move_data"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

type authSuccess struct {
	Type     string `json:"type"`
	PlayerID int64  `json:"player_id"`
}

// AuthSuccess acknowledges a successful authenticate message.
func AuthSuccess(playerID int64) json.RawMessage {
	return mustMarshal(authSuccess{ServerAuthSuccess, playerID})
}

type authFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func AuthFailed(reason string) json.RawMessage {
	return mustMarshal(authFailed{ServerAuthFailed, reason})
}

type waitingForOpponent struct {
	Type string `json:"type"`
}

func WaitingForOpponent() json.RawMessage {
	return mustMarshal(waitingForOpponent{ServerWaitingForOpponent})
}

type matchFound struct {
	Type      string              `json:"type"`
	MatchData *dispatch.MatchView `json:"match_data"`
}

func MatchFound(view *dispatch.MatchView) json.RawMessage {
	return mustMarshal(matchFound{ServerMatchFound, view})
}

type gameStateUpdate struct {
	Type      string              `json:"type"`
	MatchData *dispatch.MatchView `json:"match_data"`
}

func GameStateUpdate(view *dispatch.MatchView) json.RawMessage {
	return mustMarshal(gameStateUpdate{ServerGameStateUpdate, view})
}

type playerDisconnected struct {
	Type     string `json:"type"`
	PlayerID int64  `json:"player_id"`
}

func PlayerDisconnected(playerID int64) json.RawMessage {
	return mustMarshal(playerDisconnected{ServerPlayerDisconnected, playerID})
}

type resumableMatch struct {
	Type      string              `json:"type"`
	MatchData *dispatch.MatchView `json:"match_data"`
}

func ResumableMatch(view *dispatch.MatchView) json.RawMessage {
	return mustMarshal(resumableMatch{ServerResumableMatch, view})
}

type matchEnded struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func MatchEnded(reason string) json.RawMessage {
	return mustMarshal(matchEnded{ServerMatchEnded, reason})
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Error(message string) json.RawMessage {
	return mustMarshal(errorMsg{ServerError, message})
}

type pong struct {
	Type string `json:"type"`
}

func Pong() json.RawMessage {
	return mustMarshal(pong{ServerPong})
}
