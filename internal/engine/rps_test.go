package engine

import (
	"encoding/json"
	"testing"
)

func rpsThrow(move rpsMoveValue) json.RawMessage {
	b, _ := json.Marshal(rpsMove{Move: move})
	return b
}

func TestRPSRoundWinnerCycle(t *testing.T) {
	cases := []struct {
		m1, m2 rpsMoveValue
		want   int
	}{
		{rpsRock, rpsScissors, 1},
		{rpsScissors, rpsPaper, 1},
		{rpsPaper, rpsRock, 1},
		{rpsScissors, rpsRock, 2},
		{rpsRock, rpsRock, 0},
	}
	for _, c := range cases {
		if got := rpsRoundWinner(c.m1, c.m2); got != c.want {
			t.Errorf("rpsRoundWinner(%s, %s) = %d, want %d", c.m1, c.m2, got, c.want)
		}
	}
}

func TestRPSMatchEndsAtTwoRoundWins(t *testing.T) {
	eng := rpsEngine{}
	state, _ := eng.InitialState(0)

	play := func(p1, p2 rpsMoveValue) Result {
		r, err := eng.Apply(state, 1, rpsThrow(p1))
		if err != nil {
			t.Fatalf("player1 throw: %v", err)
		}
		r, err = eng.Apply(r.State, 2, rpsThrow(p2))
		if err != nil {
			t.Fatalf("player2 throw: %v", err)
		}
		state = r.State
		return r
	}

	play(rpsRock, rpsScissors)    // player 1 wins round
	result := play(rpsPaper, rpsRock) // player 1 wins again -> match over

	if !result.Finished {
		t.Fatalf("Finished = false after 2 round wins, want true")
	}
	if result.Winner != 1 {
		t.Errorf("Winner = %d, want 1", result.Winner)
	}
}

func TestRPSRedactHidesUnrevealedThrow(t *testing.T) {
	eng := rpsEngine{}
	state, _ := eng.InitialState(0)

	result, err := eng.Apply(state, 1, rpsThrow(rpsRock))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	redactedForViewer2, err := eng.Redact(result.State, 2)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	var st rpsState
	if err := json.Unmarshal(redactedForViewer2, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Rounds[0].Move1 != rpsRedacted {
		t.Errorf("Rounds[0].Move1 = %s, want redacted from viewer 2", st.Rounds[0].Move1)
	}

	redactedForViewer1, err := eng.Redact(result.State, 1)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if err := json.Unmarshal(redactedForViewer1, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Rounds[0].Move1 != rpsRock {
		t.Errorf("Rounds[0].Move1 for its own author = %s, want visible", st.Rounds[0].Move1)
	}
}

func TestRPSSecondThrowSamePlayerRejected(t *testing.T) {
	eng := rpsEngine{}
	state, _ := eng.InitialState(0)

	result, err := eng.Apply(state, 1, rpsThrow(rpsRock))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := eng.Apply(result.State, 1, rpsThrow(rpsPaper)); err != ErrIllegalMove {
		t.Fatalf("second throw by same player before round resolves: err = %v, want ErrIllegalMove", err)
	}
}
