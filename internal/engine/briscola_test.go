package engine

import (
	"encoding/json"
	"testing"
)

func TestBriscolaInitialDeal(t *testing.T) {
	eng := briscolaEngine{}
	raw, err := eng.InitialState(42)
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	var st briscolaState
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(st.Hand1) != 3 || len(st.Hand2) != 3 {
		t.Fatalf("hand sizes = %d/%d, want 3/3", len(st.Hand1), len(st.Hand2))
	}
	if len(st.Deck) != 33 {
		t.Fatalf("stock size = %d, want 33 (40 - 3 - 3 - 1 trump)", len(st.Deck))
	}
	if st.Trump.Suit == "" || st.Trump.Rank == "" {
		t.Fatalf("Trump not set")
	}
	if st.Leader != 1 {
		t.Fatalf("Leader = %d, want 1", st.Leader)
	}
}

func TestBriscolaCompareTrick(t *testing.T) {
	trump := suitBastoni
	cases := []struct {
		name string
		lead Card
		snd  Card
		want int
	}{
		{"trump beats non-trump", Card{Suit: suitCoppe, Rank: rankAce}, Card{Suit: suitBastoni, Rank: rankTwo}, 2},
		{"non-trump follower loses to led trump", Card{Suit: suitBastoni, Rank: rankTwo}, Card{Suit: suitCoppe, Rank: rankAce}, 1},
		{"same suit higher rank wins", Card{Suit: suitCoppe, Rank: rankFour}, Card{Suit: suitCoppe, Rank: rankThree}, 2},
		{"same suit lower rank loses", Card{Suit: suitCoppe, Rank: rankThree}, Card{Suit: suitCoppe, Rank: rankFour}, 1},
		{"off-suit non-trump: lead wins", Card{Suit: suitCoppe, Rank: rankTwo}, Card{Suit: suitDenari, Rank: rankAce}, 1},
	}
	for _, c := range cases {
		if got := compareTrick(c.lead, c.snd, trump); got != c.want {
			t.Errorf("%s: compareTrick() = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestBriscolaPlaysToCompletionPreservingCardCount(t *testing.T) {
	eng := briscolaEngine{}
	state, err := eng.InitialState(7)
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}

	var st briscolaState
	if err := json.Unmarshal(state, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	leader := st.Leader

	for i := 0; i < 1000; i++ {
		if err := json.Unmarshal(state, &st); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if st.Finished {
			break
		}

		expected := leader
		if len(st.Table) == 1 {
			expected = other(leader)
		}

		mv, _ := json.Marshal(briscolaMove{CardIndex: 0})
		result, err := eng.Apply(state, expected, mv)
		if err != nil {
			t.Fatalf("Apply(player=%d) at step %d: %v", expected, i, err)
		}
		state = result.State

		var next briscolaState
		if err := json.Unmarshal(state, &next); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		leader = next.Leader

		trumpCount := 0
		if !next.TrumpDrawn {
			trumpCount = 1
		}
		total := len(next.Hand1) + len(next.Hand2) + len(next.Deck) + trumpCount +
			len(next.Pile1) + len(next.Pile2) + len(next.Table)
		if total != 40 {
			t.Fatalf("step %d: total cards = %d, want 40", i, total)
		}

		if result.Finished {
			break
		}
	}

	if err := json.Unmarshal(state, &st); err != nil {
		t.Fatalf("unmarshal final: %v", err)
	}
	if !st.Finished {
		t.Fatalf("game did not finish within 1000 plies")
	}
	if len(st.Hand1) != 0 || len(st.Hand2) != 0 {
		t.Errorf("hands not empty at finish: %d/%d", len(st.Hand1), len(st.Hand2))
	}
}

func TestBriscolaRedactHidesOpponentHandAndStock(t *testing.T) {
	eng := briscolaEngine{}
	state, _ := eng.InitialState(3)

	redacted, err := eng.Redact(state, 1)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	var st briscolaState
	if err := json.Unmarshal(redacted, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(st.Hand1) != 3 {
		t.Errorf("viewer's own hand hidden: len(Hand1) = %d, want 3", len(st.Hand1))
	}
	for _, c := range st.Hand2 {
		if c.Suit != "" || c.Rank != "" {
			t.Errorf("opponent hand not redacted: %+v", c)
		}
	}
	for _, c := range st.Deck {
		if c.Suit != "" || c.Rank != "" {
			t.Errorf("stock not redacted: %+v", c)
		}
	}
}
