// Package engine implements the pure per-game rule engines behind a common
// interface: state × player × move → state or error. Engines read no
// wall-clock time or global state; any randomness needed at setup is an
// explicit parameter.
package engine

import (
	"encoding/json"
	"errors"
)

// GameType enumerates the supported games.
type GameType string

const (
	TicTacToe        GameType = "TicTacToe"
	RockPaperScissors GameType = "RockPaperScissors"
	Briscola          GameType = "Briscola"
	Chess             GameType = "Chess"
)

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrGameNotInProgress = errors.New("game not in progress")
	ErrWrongTurn         = errors.New("wrong turn")
	ErrInvalidPlayer     = errors.New("invalid player")
	ErrUnknownGameType   = errors.New("unknown game type")
)

// Outcome mirrors the Match.outcome enumeration of spec.md §3.
type Outcome string

const (
	Player1Win Outcome = "Player1Win"
	Player2Win Outcome = "Player2Win"
	Draw       Outcome = "Draw"
)

// Result is returned by Apply: either a new opaque state (Finished set if
// the match ended, Winner set to 1 or 2 on a decisive outcome) or an error.
type Result struct {
	State    json.RawMessage
	Finished bool
	Winner   int // 1, 2, or 0 meaning draw when Finished is true
}

// Engine is the pure per-game-type contract. Implementations must never
// mutate the State byte slice handed to Apply or Redact.
type Engine interface {
	// InitialState produces the opening position. rngSeed is the only
	// source of randomness an implementation may use.
	InitialState(rngSeed int64) (json.RawMessage, error)

	// Apply validates and applies move (as player 1 or 2) to state,
	// returning a new state or one of the sentinel errors above.
	Apply(state json.RawMessage, player int, move json.RawMessage) (Result, error)

	// Redact returns a copy of state with information hidden from viewer
	// (1 or 2). Redact must be idempotent: Redact(Redact(s, v), v) == Redact(s, v).
	Redact(state json.RawMessage, viewer int) (json.RawMessage, error)
}

// ForType returns the engine implementation for a game type.
func ForType(gt GameType) (Engine, error) {
	switch gt {
	case TicTacToe:
		return ticTacToeEngine{}, nil
	case RockPaperScissors:
		return rpsEngine{}, nil
	case Briscola:
		return briscolaEngine{}, nil
	case Chess:
		return chessEngine{}, nil
	default:
		return nil, ErrUnknownGameType
	}
}

// OutcomeFromWinner maps an engine's winner field to the Match outcome
// encoding described in spec.md §4.8: 1 -> Player1Win, 2 -> Player2Win,
// anything else on a finished game -> Draw. Used by the matchmaker (C7)
// when persisting a terminal Result.
func OutcomeFromWinner(winner int) Outcome {
	switch winner {
	case 1:
		return Player1Win
	case 2:
		return Player2Win
	default:
		return Draw
	}
}
