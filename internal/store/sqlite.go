package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/keynine/turnserver/internal/engine"
)

// SQLiteStore is the embedded-relational-store implementation of
// Repository, reached through database/sql per spec.md §1/§6. matchMu
// serializes JoinWaitingMatch's claim of a waiting slot; every other
// operation goes straight through the pool.
type SQLiteStore struct {
	db      *sql.DB
	matchMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	public_key_hint TEXT NOT NULL,
	public_key TEXT NOT NULL,
	score INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS matches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_type TEXT NOT NULL,
	player1_id INTEGER NOT NULL REFERENCES players(id),
	player2_id INTEGER REFERENCES players(id),
	in_progress INTEGER NOT NULL DEFAULT 1,
	outcome TEXT,
	end_reason TEXT,
	game_state TEXT NOT NULL DEFAULT '{}',
	scored INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches(player1_id);
CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches(player2_id);
CREATE INDEX IF NOT EXISTS idx_matches_waiting ON matches(game_type, player2_id, created_at);
`

// Open connects to (and migrates) the sqlite database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite tolerates exactly one writer at a time

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreatePlayer(ctx context.Context, name, hint, publicKeyPEM string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (name, public_key_hint, public_key) VALUES (?, ?, ?)`,
		name, hint, publicKeyPEM)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, id int64) (*Player, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, public_key_hint, public_key, score, created_at FROM players WHERE id = ?`, id)
	var p Player
	if err := row.Scan(&p.ID, &p.Name, &p.PublicKeyHint, &p.PublicKeyPEM, &p.Score, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) CreateWaitingMatch(ctx context.Context, player1ID int64, gt engine.GameType) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (game_type, player1_id, player2_id, in_progress, game_state) VALUES (?, ?, NULL, 1, '{}')`,
		string(gt), player1ID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindWaitingMatch selects the earliest-created open slot for gt, excluding
// one created by excludingPlayer, per spec.md §4.7's tie-break rule.
func (s *SQLiteStore) FindWaitingMatch(ctx context.Context, excludingPlayer int64, gt engine.GameType) (*Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, game_type, player1_id, player2_id, in_progress, outcome, end_reason, game_state, scored, created_at, updated_at
		 FROM matches
		 WHERE game_type = ? AND player2_id IS NULL AND player1_id != ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		string(gt), excludingPlayer)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *SQLiteStore) JoinWaitingMatch(ctx context.Context, matchID, player2ID int64, initialState json.RawMessage) error {
	s.matchMu.Lock()
	defer s.matchMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET player2_id = ?, game_state = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND player2_id IS NULL`,
		player2ID, string(initialState), matchID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

func (s *SQLiteStore) GetActiveMatchFor(ctx context.Context, playerID int64) (*Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, game_type, player1_id, player2_id, in_progress, outcome, end_reason, game_state, scored, created_at, updated_at
		 FROM matches
		 WHERE in_progress = 1 AND (player1_id = ? OR player2_id = ?)
		 ORDER BY created_at DESC LIMIT 1`,
		playerID, playerID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *SQLiteStore) GetMatch(ctx context.Context, matchID int64) (*Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, game_type, player1_id, player2_id, in_progress, outcome, end_reason, game_state, scored, created_at, updated_at
		 FROM matches WHERE id = ?`, matchID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) UpdateMatch(ctx context.Context, matchID int64, newState json.RawMessage, inProgress bool, outcome *engine.Outcome, endReason *EndReason) error {
	var outcomeStr, endReasonStr any
	if outcome != nil {
		outcomeStr = string(*outcome)
	}
	if endReason != nil {
		endReasonStr = string(*endReason)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE matches SET game_state = ?, in_progress = ?, outcome = ?, end_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(newState), boolToInt(inProgress), outcomeStr, endReasonStr, matchID)
	return err
}

func (s *SQLiteStore) DeleteMatch(ctx context.Context, matchID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, matchID)
	return err
}

// ApplyScoreDelta applies the spec.md §4.2 deltas (winner +3, loser -1,
// draw +1/+1) exactly once per match, guarded by the scored flag inside a
// single transaction.
func (s *SQLiteStore) ApplyScoreDelta(ctx context.Context, match *Match) error {
	if match.Outcome == nil || match.Player2ID == nil {
		return fmt.Errorf("cannot score an unfinished or unpaired match")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var scored bool
	if err := tx.QueryRowContext(ctx, `SELECT scored FROM matches WHERE id = ?`, match.ID).Scan(&scored); err != nil {
		return err
	}
	if scored {
		return nil
	}

	d1, d2 := scoreDeltas(*match.Outcome)
	if _, err := tx.ExecContext(ctx, `UPDATE players SET score = score + ? WHERE id = ?`, d1, match.Player1ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE players SET score = score + ? WHERE id = ?`, d2, *match.Player2ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE matches SET scored = 1 WHERE id = ?`, match.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func scoreDeltas(outcome engine.Outcome) (player1Delta, player2Delta int64) {
	switch outcome {
	case engine.Player1Win:
		return 3, -1
	case engine.Player2Win:
		return -1, 3
	default: // Draw
		return 1, 1
	}
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, score FROM players ORDER BY score DESC, id ASC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]LeaderboardEntry, 0, limit)
	rank := offset + 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.PlayerName, &e.Score); err != nil {
			return nil, 0, err
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return entries, total, rows.Err()
}

func (s *SQLiteStore) StatsFor(ctx context.Context, playerID int64) (*Stats, error) {
	p, err := s.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{PlayerID: playerID, Score: p.Score}

	rows, err := s.db.QueryContext(ctx,
		`SELECT player1_id, player2_id, outcome, end_reason FROM matches
		 WHERE in_progress = 0 AND (player1_id = ? OR player2_id = ?)`,
		playerID, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var player1ID int64
		var player2ID sql.NullInt64
		var outcome, endReason sql.NullString
		if err := rows.Scan(&player1ID, &player2ID, &outcome, &endReason); err != nil {
			return nil, err
		}
		stats.Total++

		if endReason.Valid && endReason.String == string(EndReasonDisconnection) {
			stats.Dropped++
			continue
		}

		switch engine.Outcome(outcome.String) {
		case engine.Player1Win:
			if player1ID == playerID {
				stats.Won++
			} else {
				stats.Lost++
			}
		case engine.Player2Win:
			if player2ID.Valid && player2ID.Int64 == playerID {
				stats.Won++
			} else {
				stats.Lost++
			}
		default:
			stats.Draw++
		}
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	var m Match
	var gameType string
	var player2ID sql.NullInt64
	var inProgress int
	var outcome, endReason sql.NullString
	var gameState string
	var scored int

	if err := row.Scan(&m.ID, &gameType, &m.Player1ID, &player2ID, &inProgress, &outcome, &endReason, &gameState, &scored, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.GameType = engine.GameType(gameType)
	m.InProgress = inProgress != 0
	m.Scored = scored != 0
	m.GameState = json.RawMessage(gameState)

	if player2ID.Valid {
		v := player2ID.Int64
		m.Player2ID = &v
	}
	if outcome.Valid {
		o := engine.Outcome(outcome.String)
		m.Outcome = &o
	}
	if endReason.Valid {
		e := EndReason(endReason.String)
		m.EndReason = &e
	}

	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
