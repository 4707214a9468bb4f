package engine

import (
	"encoding/json"
	"math/rand"
)

// Suit and Rank spell out the Italian 40-card deck used by Briscola.
type briscolaSuit string
type briscolaRank string

const (
	suitBastoni briscolaSuit = "Bastoni"
	suitCoppe   briscolaSuit = "Coppe"
	suitDenari  briscolaSuit = "Denari"
	suitSpade   briscolaSuit = "Spade"
)

const (
	rankAce    briscolaRank = "Ace"
	rankTwo    briscolaRank = "Two"
	rankThree  briscolaRank = "Three"
	rankFour   briscolaRank = "Four"
	rankFive   briscolaRank = "Five"
	rankSix    briscolaRank = "Six"
	rankSeven  briscolaRank = "Seven"
	rankJack   briscolaRank = "Jack"
	rankKnight briscolaRank = "Knight"
	rankKing   briscolaRank = "King"
)

var briscolaSuits = [4]briscolaSuit{suitBastoni, suitCoppe, suitDenari, suitSpade}
var briscolaRanks = [10]briscolaRank{rankAce, rankTwo, rankThree, rankFour, rankFive, rankSix, rankSeven, rankJack, rankKnight, rankKing}

// rankStrength orders ranks per spec.md §4.1: Ace>Three>King>Knight>Jack>Seven>Six>Five>Four>Two.
var rankStrength = map[briscolaRank]int{
	rankAce: 10, rankThree: 9, rankKing: 8, rankKnight: 7, rankJack: 6,
	rankSeven: 5, rankSix: 4, rankFive: 3, rankFour: 2, rankTwo: 1,
}

// rankPoints assigns the card's value toward the 120-point total (11+10+4+3+2
// for each suit = 30 per suit × 4 suits = 120).
var rankPoints = map[briscolaRank]int{
	rankAce: 11, rankThree: 10, rankKing: 4, rankKnight: 3, rankJack: 2,
}

// Card is the wire representation of a single card. A zero-value Card
// ({"suit":"","rank":""}) represents a redacted, face-down card.
type Card struct {
	Suit briscolaSuit `json:"suit"`
	Rank briscolaRank `json:"rank"`
}

func (c Card) hidden() bool { return c.Suit == "" && c.Rank == "" }

func newDeck() []Card {
	deck := make([]Card, 0, 40)
	for _, s := range briscolaSuits {
		for _, r := range briscolaRanks {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// briscolaState is the opaque game_state shape. Hands and piles are
// play-order slices; Table holds 0, 1, or 2 cards currently in the trick.
type briscolaState struct {
	Hand1      []Card `json:"hand1"`
	Hand2      []Card `json:"hand2"`
	Deck       []Card `json:"deck"`
	Trump      Card   `json:"trump"`
	TrumpDrawn bool   `json:"trump_drawn"`
	Table      []Card `json:"table"`
	Leader     int    `json:"leader"`
	Pile1      []Card `json:"pile1"`
	Pile2      []Card `json:"pile2"`
	Finished   bool   `json:"finished"`
	Winner     int    `json:"winner,omitempty"`
}

// briscolaMove selects a card from the acting player's hand by index.
type briscolaMove struct {
	CardIndex int `json:"card_index"`
}

type briscolaEngine struct{}

func (briscolaEngine) InitialState(rngSeed int64) (json.RawMessage, error) {
	r := rand.New(rand.NewSource(rngSeed))
	deck := newDeck()
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	st := briscolaState{
		Hand1:  append([]Card{}, deck[0:3]...),
		Hand2:  append([]Card{}, deck[3:6]...),
		Trump:  deck[6],
		Deck:   append([]Card{}, deck[7:]...),
		Leader: 1,
	}
	return json.Marshal(st)
}

func (briscolaEngine) Apply(state json.RawMessage, player int, move json.RawMessage) (Result, error) {
	var st briscolaState
	if err := json.Unmarshal(state, &st); err != nil {
		return Result{}, ErrIllegalMove
	}
	if st.Finished {
		return Result{}, ErrGameNotInProgress
	}
	if player != 1 && player != 2 {
		return Result{}, ErrInvalidPlayer
	}

	expected := st.Leader
	if len(st.Table) == 1 {
		expected = other(st.Leader)
	}
	if player != expected {
		return Result{}, ErrWrongTurn
	}

	var mv briscolaMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return Result{}, ErrIllegalMove
	}

	hand := st.Hand1
	if player == 2 {
		hand = st.Hand2
	}
	if mv.CardIndex < 0 || mv.CardIndex >= len(hand) {
		return Result{}, ErrIllegalMove
	}

	played := hand[mv.CardIndex]
	hand = append(hand[:mv.CardIndex:mv.CardIndex], hand[mv.CardIndex+1:]...)
	if player == 1 {
		st.Hand1 = hand
	} else {
		st.Hand2 = hand
	}
	st.Table = append(st.Table, played)

	if len(st.Table) == 2 {
		resolveTrick(&st)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return Result{}, err
	}
	return Result{State: data, Finished: st.Finished, Winner: st.Winner}, nil
}

func other(player int) int {
	if player == 1 {
		return 2
	}
	return 1
}

// resolveTrick scores the completed trick, deals the piles, redraws from
// the stock (winner first, then loser per spec.md §4.1), and advances the
// leader to the trick's winner.
func resolveTrick(st *briscolaState) {
	lead, second := st.Table[0], st.Table[1]
	winnerSide := compareTrick(lead, second, st.Trump.Suit)
	winner := st.Leader
	if winnerSide == 2 {
		winner = other(st.Leader)
	}

	if winner == 1 {
		st.Pile1 = append(st.Pile1, lead, second)
	} else {
		st.Pile2 = append(st.Pile2, lead, second)
	}
	st.Table = nil

	loser := other(winner)
	if c, ok := drawOne(st); ok {
		dealTo(st, winner, c)
	}
	if c, ok := drawOne(st); ok {
		dealTo(st, loser, c)
	}

	st.Leader = winner

	if len(st.Hand1) == 0 && len(st.Hand2) == 0 && len(st.Deck) == 0 && st.TrumpDrawn {
		st.Finished = true
		p1, p2 := pilePoints(st.Pile1), pilePoints(st.Pile2)
		switch {
		case p1 > p2:
			st.Winner = 1
		case p2 > p1:
			st.Winner = 2
		default:
			st.Winner = 0
		}
	}
}

func dealTo(st *briscolaState, player int, c Card) {
	if player == 1 {
		st.Hand1 = append(st.Hand1, c)
	} else {
		st.Hand2 = append(st.Hand2, c)
	}
}

// drawOne pulls from the stock, falling back to the trump card once the
// stock is exhausted — the trump is always the final card drawn.
func drawOne(st *briscolaState) (Card, bool) {
	if len(st.Deck) > 0 {
		c := st.Deck[0]
		st.Deck = st.Deck[1:]
		return c, true
	}
	if !st.TrumpDrawn {
		st.TrumpDrawn = true
		return st.Trump, true
	}
	return Card{}, false
}

func pilePoints(pile []Card) int {
	total := 0
	for _, c := range pile {
		total += rankPoints[c.Rank]
	}
	return total
}

// compareTrick returns 1 if the leading card wins the trick, 2 if the
// following card wins, per spec.md §4.1's precedence: trump beats
// non-trump; if both are trump or both follow the led suit, higher rank
// wins; otherwise the first card wins.
func compareTrick(lead, second Card, trump briscolaSuit) int {
	if second.Suit == trump && lead.Suit != trump {
		return 2
	}
	if lead.Suit == trump && second.Suit != trump {
		return 1
	}
	if lead.Suit == second.Suit {
		if rankStrength[second.Rank] > rankStrength[lead.Rank] {
			return 2
		}
		return 1
	}
	return 1
}

// Redact hides the opponent's hand and every card in the stock; only each
// player's own hand, the table, piles, and the revealed trump suit/card
// remain visible.
func (briscolaEngine) Redact(state json.RawMessage, viewer int) (json.RawMessage, error) {
	var st briscolaState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, err
	}

	if viewer == 1 {
		st.Hand2 = hiddenCards(len(st.Hand2))
	} else {
		st.Hand1 = hiddenCards(len(st.Hand1))
	}
	st.Deck = hiddenCards(len(st.Deck))

	return json.Marshal(st)
}

func hiddenCards(n int) []Card {
	out := make([]Card, n)
	return out
}
