package engine

import (
	"encoding/json"

	"github.com/notnil/chess"
)

// chessState stores the position as FEN plus the terminal fields. Storing
// FEN rather than the library's *chess.Game keeps the state an opaque,
// serializable value and keeps Apply pure: each call decodes a fresh game
// from FEN, mutates that private copy, and re-encodes the result.
type chessState struct {
	FEN      string `json:"fen"`
	Finished bool   `json:"finished"`
	Winner   int    `json:"winner,omitempty"`
}

// chessMove carries a single move in UCI notation (e.g. "e2e4", "e7e8q").
type chessMove struct {
	UCI string `json:"uci"`
}

type chessEngine struct{}

func (chessEngine) InitialState(rngSeed int64) (json.RawMessage, error) {
	g := chess.NewGame()
	st := chessState{FEN: g.FEN()}
	return json.Marshal(st)
}

func (chessEngine) Apply(state json.RawMessage, player int, move json.RawMessage) (Result, error) {
	var st chessState
	if err := json.Unmarshal(state, &st); err != nil {
		return Result{}, ErrIllegalMove
	}
	if st.Finished {
		return Result{}, ErrGameNotInProgress
	}
	if player != 1 && player != 2 {
		return Result{}, ErrInvalidPlayer
	}

	fenFn, err := chess.FEN(st.FEN)
	if err != nil {
		return Result{}, ErrIllegalMove
	}
	g := chess.NewGame(fenFn)

	turn := g.Position().Turn()
	expected := 1
	if turn == chess.Black {
		expected = 2
	}
	if player != expected {
		return Result{}, ErrWrongTurn
	}

	var mv chessMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return Result{}, ErrIllegalMove
	}

	decoded, err := chess.UCINotation{}.Decode(g.Position(), mv.UCI)
	if err != nil {
		return Result{}, ErrIllegalMove
	}
	if err := g.Move(decoded); err != nil {
		return Result{}, ErrIllegalMove
	}

	next := chessState{FEN: g.FEN()}
	winner := 0
	switch g.Outcome() {
	case chess.WhiteWon:
		next.Finished = true
		winner = 1
	case chess.BlackWon:
		next.Finished = true
		winner = 2
	case chess.Draw:
		next.Finished = true
		winner = 0
	case chess.NoOutcome:
		// game continues
	}
	next.Winner = winner

	data, err := json.Marshal(next)
	if err != nil {
		return Result{}, err
	}
	return Result{State: data, Finished: next.Finished, Winner: winner}, nil
}

// Redact is the identity transform for Chess: the full board is public
// information to both players, per spec.md §4.1.
func (chessEngine) Redact(state json.RawMessage, viewer int) (json.RawMessage, error) {
	out := make(json.RawMessage, len(state))
	copy(out, state)
	return out, nil
}
