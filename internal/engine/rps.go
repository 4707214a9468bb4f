package engine

import "encoding/json"

// rpsMoveValue is one of the three throws, or redacted when hidden from an
// opposing viewer mid-round per spec.md §4.1.
type rpsMoveValue string

const (
	rpsRock     rpsMoveValue = "rock"
	rpsPaper    rpsMoveValue = "paper"
	rpsScissors rpsMoveValue = "scissors"
	rpsRedacted rpsMoveValue = "redacted"
)

// rpsRound is a single round's pair of throws; either may be empty until
// played.
type rpsRound struct {
	Move1 rpsMoveValue `json:"move1,omitempty"`
	Move2 rpsMoveValue `json:"move2,omitempty"`
}

func (r rpsRound) complete() bool {
	return r.Move1 != "" && r.Move2 != ""
}

// rpsState tracks the running round history plus each side's round-win
// tally. A match ends when one side reaches 2 round wins (spec.md §4.1).
type rpsState struct {
	Rounds   []rpsRound `json:"rounds"`
	Wins1    int        `json:"wins1"`
	Wins2    int        `json:"wins2"`
	Winner   int        `json:"winner,omitempty"`
	Finished bool       `json:"finished"`
}

type rpsMove struct {
	Move rpsMoveValue `json:"move"`
}

type rpsEngine struct{}

func (rpsEngine) InitialState(rngSeed int64) (json.RawMessage, error) {
	st := rpsState{Rounds: []rpsRound{{}}}
	return json.Marshal(st)
}

func (rpsEngine) Apply(state json.RawMessage, player int, move json.RawMessage) (Result, error) {
	var st rpsState
	if err := json.Unmarshal(state, &st); err != nil {
		return Result{}, ErrIllegalMove
	}
	if st.Finished {
		return Result{}, ErrGameNotInProgress
	}
	if player != 1 && player != 2 {
		return Result{}, ErrInvalidPlayer
	}

	var mv rpsMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return Result{}, ErrIllegalMove
	}
	switch mv.Move {
	case rpsRock, rpsPaper, rpsScissors:
	default:
		return Result{}, ErrIllegalMove
	}

	if len(st.Rounds) == 0 {
		st.Rounds = append(st.Rounds, rpsRound{})
	}
	cur := &st.Rounds[len(st.Rounds)-1]

	if player == 1 {
		if cur.Move1 != "" {
			return Result{}, ErrIllegalMove
		}
		cur.Move1 = mv.Move
	} else {
		if cur.Move2 != "" {
			return Result{}, ErrIllegalMove
		}
		cur.Move2 = mv.Move
	}

	if cur.complete() {
		switch rpsRoundWinner(cur.Move1, cur.Move2) {
		case 1:
			st.Wins1++
		case 2:
			st.Wins2++
		}
		if st.Wins1 >= 2 || st.Wins2 >= 2 {
			st.Finished = true
			if st.Wins1 >= 2 {
				st.Winner = 1
			} else {
				st.Winner = 2
			}
		} else {
			st.Rounds = append(st.Rounds, rpsRound{})
		}
	}

	data, err := json.Marshal(st)
	if err != nil {
		return Result{}, err
	}
	return Result{State: data, Finished: st.Finished, Winner: st.Winner}, nil
}

// Redact hides the current round's not-yet-revealed throw from the viewer
// who did not make it, so a player can't see the opponent's committed move
// before their own is in. Completed rounds stay fully visible.
func (rpsEngine) Redact(state json.RawMessage, viewer int) (json.RawMessage, error) {
	var st rpsState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, err
	}
	if len(st.Rounds) > 0 && !st.Finished {
		last := len(st.Rounds) - 1
		cur := st.Rounds[last]
		if !cur.complete() {
			if viewer == 1 && cur.Move2 != "" {
				cur.Move2 = rpsRedacted
			}
			if viewer == 2 && cur.Move1 != "" {
				cur.Move1 = rpsRedacted
			}
			st.Rounds[last] = cur
		}
	}
	return json.Marshal(st)
}

// rpsRoundWinner applies the canonical cycle: rock beats scissors, scissors
// beats paper, paper beats rock. Returns 0 on a tie.
func rpsRoundWinner(m1, m2 rpsMoveValue) int {
	if m1 == m2 {
		return 0
	}
	beats := map[rpsMoveValue]rpsMoveValue{
		rpsRock:     rpsScissors,
		rpsScissors: rpsPaper,
		rpsPaper:    rpsRock,
	}
	if beats[m1] == m2 {
		return 1
	}
	return 2
}
