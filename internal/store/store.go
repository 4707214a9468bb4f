// Package store implements the Repository (C2): persistence of players,
// matches, and outcomes. The interface is the spec; the embedded-sqlite
// implementation in sqlite.go is one concrete backend among several the
// interface could support.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/keynine/turnserver/internal/engine"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyJoined = errors.New("match already has two players")
)

// EndReason distinguishes a match that ran to a ruleset conclusion from one
// finalized by disconnect-timeout forfeiture. It is additive bookkeeping
// behind the score/stats accounting (§8 dropped counter) and does not
// change the Outcome enumeration of spec.md §3.
type EndReason string

const (
	EndReasonEnded         EndReason = "ended"
	EndReasonDisconnection EndReason = "disconnection"
)

// Player mirrors spec.md §3.
type Player struct {
	ID            int64
	Name          string
	PublicKeyHint string
	PublicKeyPEM  string
	Score         int64
	CreatedAt     time.Time
}

// Match mirrors spec.md §3. Player2ID, Outcome, and EndReason are nil while
// the corresponding facts are unknown (waiting slot / in-progress match).
type Match struct {
	ID         int64
	GameType   engine.GameType
	Player1ID  int64
	Player2ID  *int64
	InProgress bool
	Outcome    *engine.Outcome
	EndReason  *EndReason
	GameState  json.RawMessage
	Scored     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats answers GET /stats, spec.md §6.
type Stats struct {
	PlayerID int64
	Total    int
	Won      int
	Lost     int
	Draw     int
	Dropped  int
	Score    int64
}

// LeaderboardEntry answers GET /leaderboard, spec.md §6.
type LeaderboardEntry struct {
	PlayerID   int64
	PlayerName string
	Rank       int
	Score      int64
}

// Repository is the persistence contract of spec.md §4.2. Implementations
// must make join_waiting_match/update_match/apply_score_delta transactional
// where they touch more than one row, and must make apply_score_delta
// idempotent per a match's final outcome.
type Repository interface {
	CreatePlayer(ctx context.Context, name, hint, publicKeyPEM string) (int64, error)
	GetPlayer(ctx context.Context, id int64) (*Player, error)

	CreateWaitingMatch(ctx context.Context, player1ID int64, gt engine.GameType) (int64, error)
	FindWaitingMatch(ctx context.Context, excludingPlayer int64, gt engine.GameType) (*Match, error)
	JoinWaitingMatch(ctx context.Context, matchID, player2ID int64, initialState json.RawMessage) error

	GetActiveMatchFor(ctx context.Context, playerID int64) (*Match, error)
	GetMatch(ctx context.Context, matchID int64) (*Match, error)
	UpdateMatch(ctx context.Context, matchID int64, newState json.RawMessage, inProgress bool, outcome *engine.Outcome, endReason *EndReason) error
	DeleteMatch(ctx context.Context, matchID int64) error

	ApplyScoreDelta(ctx context.Context, match *Match) error

	Leaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, int, error)
	StatsFor(ctx context.Context, playerID int64) (*Stats, error)

	Close() error
}
