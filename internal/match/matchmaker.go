// Package match implements the Matchmaker (C7): queueing, pairing,
// resume, and disconnect semantics of spec.md §4.7.
package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keynine/turnserver/internal/dispatch"
	"github.com/keynine/turnserver/internal/engine"
	"github.com/keynine/turnserver/internal/proto"
	"github.com/keynine/turnserver/internal/registry"
	"github.com/keynine/turnserver/internal/store"
)

var (
	ErrNoActiveMatch  = errors.New("no active match")
	ErrMatchNotActive = errors.New("match is not in progress")
)

// Matchmaker serializes all match-mutating operations behind a single
// mutex, per spec.md §5's "one global mutex is acceptable" allowance.
type Matchmaker struct {
	repo  store.Repository
	reg   *registry.Registry
	disp  *dispatch.Dispatcher
	grace time.Duration

	mu sync.Mutex
}

func New(repo store.Repository, reg *registry.Registry, disp *dispatch.Dispatcher, disconnectGrace time.Duration) *Matchmaker {
	return &Matchmaker{repo: repo, reg: reg, disp: disp, grace: disconnectGrace}
}

// JoinMatchmaking implements spec.md §4.7's JoinMatchmaking operation.
func (m *Matchmaker) JoinMatchmaking(ctx context.Context, playerID int64, gt engine.GameType) ([]registry.Message, error) {
	if _, err := engine.ForType(gt); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.repo.GetActiveMatchFor(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		view, err := m.disp.ViewFor(active, playerID)
		if err != nil {
			return nil, err
		}
		return []registry.Message{{PlayerID: playerID, Data: proto.GameStateUpdate(view)}}, nil
	}

	waiting, err := m.repo.FindWaitingMatch(ctx, playerID, gt)
	if err != nil {
		return nil, err
	}

	if waiting == nil {
		if _, err := m.repo.CreateWaitingMatch(ctx, playerID, gt); err != nil {
			return nil, err
		}
		return []registry.Message{{PlayerID: playerID, Data: proto.WaitingForOpponent()}}, nil
	}

	initial, err := m.disp.InitialState(gt, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	if err := m.repo.JoinWaitingMatch(ctx, waiting.ID, playerID, initial); err != nil {
		if errors.Is(err, store.ErrAlreadyJoined) {
			// Lost the race for this slot (shouldn't occur under the
			// matchmaker's own mutex, but the repository layer may also
			// reject concurrently from elsewhere): fall back to queueing.
			if _, cerr := m.repo.CreateWaitingMatch(ctx, playerID, gt); cerr != nil {
				return nil, cerr
			}
			return []registry.Message{{PlayerID: playerID, Data: proto.WaitingForOpponent()}}, nil
		}
		return nil, err
	}

	joined, err := m.repo.GetMatch(ctx, waiting.ID)
	if err != nil {
		return nil, err
	}

	view1, err := m.disp.ViewFor(joined, joined.Player1ID)
	if err != nil {
		return nil, err
	}
	view2, err := m.disp.ViewFor(joined, playerID)
	if err != nil {
		return nil, err
	}

	return []registry.Message{
		{PlayerID: joined.Player1ID, Data: proto.MatchFound(view1)},
		{PlayerID: playerID, Data: proto.MatchFound(view2)},
	}, nil
}

// ResumeMatch implements spec.md §4.7's ResumeMatch operation.
func (m *Matchmaker) ResumeMatch(ctx context.Context, playerID int64) ([]registry.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matchID, ok := m.reg.PendingResume(playerID)
	if !ok {
		return nil, ErrNoActiveMatch
	}
	m.reg.CancelDisconnectTimer(playerID)

	mt, err := m.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !mt.InProgress {
		return []registry.Message{{PlayerID: playerID, Data: proto.Error(ErrMatchNotActive.Error())}}, nil
	}

	var out []registry.Message
	for _, pid := range participantsOf(mt) {
		view, err := m.disp.ViewFor(mt, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, registry.Message{PlayerID: pid, Data: proto.GameStateUpdate(view)})
	}
	return out, nil
}

// PeekResumableMatch returns the redacted view of a player's pending-resume
// match without cancelling its disconnect timer, for the replay the
// real-time endpoint sends on authentication success (spec.md §4.9).
func (m *Matchmaker) PeekResumableMatch(ctx context.Context, playerID int64) (*dispatch.MatchView, error) {
	matchID, ok := m.reg.PendingResume(playerID)
	if !ok {
		return nil, ErrNoActiveMatch
	}

	mt, err := m.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return m.disp.ViewFor(mt, playerID)
}

// MakeMove implements spec.md §4.7's MakeMove operation.
func (m *Matchmaker) MakeMove(ctx context.Context, playerID int64, movePayload []byte) ([]registry.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.repo.GetActiveMatchFor(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if mt == nil {
		return []registry.Message{{PlayerID: playerID, Data: proto.Error(ErrNoActiveMatch.Error())}}, nil
	}
	if !mt.InProgress {
		return []registry.Message{{PlayerID: playerID, Data: proto.Error(ErrMatchNotActive.Error())}}, nil
	}

	result, err := m.disp.ApplyMove(mt, playerID, movePayload)
	if err != nil {
		return []registry.Message{{PlayerID: playerID, Data: proto.Error(err.Error())}}, nil
	}

	var outcome *engine.Outcome
	var endReason *store.EndReason
	if result.Finished {
		o := engine.OutcomeFromWinner(result.Winner)
		outcome = &o
		ended := store.EndReasonEnded
		endReason = &ended
	}

	if err := m.repo.UpdateMatch(ctx, mt.ID, result.State, !result.Finished, outcome, endReason); err != nil {
		return nil, err
	}

	updated, err := m.repo.GetMatch(ctx, mt.ID)
	if err != nil {
		return nil, err
	}

	if result.Finished {
		if err := m.repo.ApplyScoreDelta(ctx, updated); err != nil {
			return nil, err
		}
	}

	var out []registry.Message
	for _, pid := range participantsOf(updated) {
		view, err := m.disp.ViewFor(updated, pid)
		if err != nil {
			return nil, err
		}
		if result.Finished {
			out = append(out, registry.Message{PlayerID: pid, Data: proto.MatchEnded(proto.ReasonEnded)})
		}
		out = append(out, registry.Message{PlayerID: pid, Data: proto.GameStateUpdate(view)})
	}
	return out, nil
}

// Disconnect implements spec.md §4.7's Disconnect operation, arming the
// 30s-default grace timer itself via the registry when the player held an
// in-progress match.
func (m *Matchmaker) Disconnect(ctx context.Context, playerID int64) ([]registry.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.repo.GetActiveMatchFor(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}
	if active.Player2ID == nil {
		// Waiting-queue-only membership: delete the slot silently.
		return nil, m.repo.DeleteMatch(ctx, active.ID)
	}

	opponent, ok := opponentOf(active, playerID)
	if !ok {
		return nil, nil
	}

	m.reg.StartDisconnectTimer(playerID, active.ID, m.grace, m.onDisconnectExpiry)

	return []registry.Message{{PlayerID: opponent, Data: proto.PlayerDisconnected(playerID)}}, nil
}

// onDisconnectExpiry is the registry callback wired to every disconnect
// timer. It cannot return outbound messages (the timer fires from its own
// goroutine), so it delivers them straight through the registry itself.
func (m *Matchmaker) onDisconnectExpiry(playerID, matchID int64) {
	msgs, err := m.DisconnectTimeout(context.Background(), playerID, matchID)
	if err != nil {
		return
	}
	m.reg.Fanout(msgs)
}

// DisconnectTimeout implements spec.md §4.7's DisconnectTimeout operation.
func (m *Matchmaker) DisconnectTimeout(ctx context.Context, playerID, matchID int64) ([]registry.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !mt.InProgress {
		return nil, nil
	}

	draw := engine.Draw
	disconnection := store.EndReasonDisconnection
	if err := m.repo.UpdateMatch(ctx, mt.ID, mt.GameState, false, &draw, &disconnection); err != nil {
		return nil, err
	}

	updated, err := m.repo.GetMatch(ctx, mt.ID)
	if err != nil {
		return nil, err
	}
	if err := m.repo.ApplyScoreDelta(ctx, updated); err != nil {
		return nil, err
	}

	opponent, ok := opponentOf(updated, playerID)
	if !ok {
		return nil, nil
	}
	return []registry.Message{{PlayerID: opponent, Data: proto.MatchEnded(proto.ReasonDisconnection)}}, nil
}

func participantsOf(mt *store.Match) []int64 {
	out := []int64{mt.Player1ID}
	if mt.Player2ID != nil {
		out = append(out, *mt.Player2ID)
	}
	return out
}

func opponentOf(mt *store.Match, playerID int64) (int64, bool) {
	if mt.Player2ID == nil {
		return 0, false
	}
	if playerID == mt.Player1ID {
		return *mt.Player2ID, true
	}
	if playerID == *mt.Player2ID {
		return mt.Player1ID, true
	}
	return 0, false
}
