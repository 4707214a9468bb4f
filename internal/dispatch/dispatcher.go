// Package dispatch implements the Game Dispatcher (C8): it routes move
// payloads to the engine matching a match's game_type, and redacts state
// per viewer for emission.
package dispatch

import (
	"encoding/json"

	"github.com/keynine/turnserver/internal/engine"
	"github.com/keynine/turnserver/internal/store"
)

// MatchView is the wire-shaped, per-viewer repackaging of a Match that
// spec.md §4.8 calls for: symbol derived, state redacted.
type MatchView struct {
	MatchID      int64           `json:"match_id"`
	GameType     string          `json:"game_type"`
	PlayerSymbol int             `json:"player_symbol"`
	Player1ID    int64           `json:"player1_id"`
	Player2ID    *int64          `json:"player2_id,omitempty"`
	InProgress   bool            `json:"in_progress"`
	Outcome      string          `json:"outcome,omitempty"`
	GameState    json.RawMessage `json:"game_state"`
}

// Dispatcher is stateless; it only needs the engine registry.
type Dispatcher struct{}

func New() *Dispatcher { return &Dispatcher{} }

// SymbolFor derives the viewer's player_symbol: 1 if viewerID is player1,
// else 2, per spec.md §4.8.
func SymbolFor(m *store.Match, viewerID int64) int {
	if viewerID == m.Player1ID {
		return 1
	}
	return 2
}

// ViewFor builds the redacted, per-viewer MatchView for emission.
func (d *Dispatcher) ViewFor(m *store.Match, viewerID int64) (*MatchView, error) {
	eng, err := engine.ForType(m.GameType)
	if err != nil {
		return nil, err
	}

	symbol := SymbolFor(m, viewerID)
	redacted, err := eng.Redact(m.GameState, symbol)
	if err != nil {
		return nil, err
	}

	view := &MatchView{
		MatchID:      m.ID,
		GameType:     string(m.GameType),
		PlayerSymbol: symbol,
		Player1ID:    m.Player1ID,
		Player2ID:    m.Player2ID,
		InProgress:   m.InProgress,
		GameState:    redacted,
	}
	if m.Outcome != nil {
		view.Outcome = string(*m.Outcome)
	}
	return view, nil
}

// ApplyMove deserializes and applies movePayload as the acting player's
// move, dispatching to the engine for m.GameType. Engine errors
// (IllegalMove, WrongTurn, GameNotInProgress, InvalidPlayer) are returned
// unwrapped so callers can map them straight to the real-time error taxonomy.
func (d *Dispatcher) ApplyMove(m *store.Match, playerID int64, movePayload json.RawMessage) (engine.Result, error) {
	eng, err := engine.ForType(m.GameType)
	if err != nil {
		return engine.Result{}, err
	}
	symbol := SymbolFor(m, playerID)
	return eng.Apply(m.GameState, symbol, movePayload)
}

// InitialState produces the opening position for a newly paired match.
func (d *Dispatcher) InitialState(gt engine.GameType, rngSeed int64) (json.RawMessage, error) {
	eng, err := engine.ForType(gt)
	if err != nil {
		return nil, err
	}
	return eng.InitialState(rngSeed)
}
