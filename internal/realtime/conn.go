// Package realtime implements the Real-time Endpoint (C9): the
// websocket upgrade, per-connection reader/writer pumps, and the
// dispatch of client messages into the Matchmaker (C7), per spec.md §4.9.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/keynine/turnserver/internal/authn"
	"github.com/keynine/turnserver/internal/engine"
	"github.com/keynine/turnserver/internal/logx"
	"github.com/keynine/turnserver/internal/match"
	"github.com/keynine/turnserver/internal/proto"
	"github.com/keynine/turnserver/internal/registry"
)

// pongWait bounds how long a connection may go without answering a ping
// before it's considered stale (only a pong extends the read deadline),
// resolving spec.md §4.9's open keepalive question in favor of explicit
// application-level pings.
const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Endpoint wires the upgrade handler to its collaborators.
type Endpoint struct {
	auth *authn.Service
	mm   *match.Matchmaker
	reg  *registry.Registry
	log  *logx.Logger
}

func NewEndpoint(auth *authn.Service, mm *match.Matchmaker, reg *registry.Registry, log *logx.Logger) *Endpoint {
	return &Endpoint{auth: auth, mm: mm, reg: reg, log: log}
}

// Handle upgrades the connection and runs its pumps until it closes.
// Registered at GET /ws.
func (e *Endpoint) Handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	queue := registry.NewOutboundQueue()
	writerDone := make(chan struct{})
	go e.writePump(conn, queue, writerDone)

	e.readPump(conn, queue)

	<-writerDone
}

func (e *Endpoint) writePump(conn *websocket.Conn, queue *registry.OutboundQueue, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	for {
		msg, ok := queue.Pop()
		if !ok {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (e *Endpoint) readPump(conn *websocket.Conn, queue *registry.OutboundQueue) {
	var playerID int64
	var authenticated bool

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The writer pump owns every other write on this connection
	// (TextMessage payloads, the close frame); WriteControl is the one
	// method gorilla/websocket documents as safe to call concurrently
	// with those, so the ping ticker can run on its own goroutine without
	// a second goroutine racing writePump's writes.
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	defer func() {
		queue.Close()
		if authenticated {
			e.reg.Unregister(playerID)
			if msgs, err := e.mm.Disconnect(context.Background(), playerID); err == nil {
				e.reg.Fanout(msgs)
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope proto.ClientEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			queue.Push(proto.Error("malformed message"))
			continue
		}

		if !authenticated {
			if envelope.Type != proto.ClientAuthenticate {
				queue.Push(proto.Error("authentication required"))
				return
			}
			var payload proto.AuthenticatePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				queue.Push(proto.AuthFailed("malformed authenticate message"))
				return
			}
			pid, err := e.auth.AuthenticateRequest("Bearer " + payload.Token)
			if err != nil {
				queue.Push(proto.AuthFailed("invalid or expired token"))
				return
			}

			playerID = pid
			authenticated = true
			e.reg.Register(playerID, queue, func() { conn.Close() })
			queue.Push(proto.AuthSuccess(playerID))

			if _, ok := e.reg.PendingResume(playerID); ok {
				if mt, err := e.mm.PeekResumableMatch(context.Background(), playerID); err == nil {
					queue.Push(proto.ResumableMatch(mt))
				}
			}
			continue
		}

		switch envelope.Type {
		case proto.ClientPing:
			queue.Push(proto.Pong())

		case proto.ClientJoinMatchmaking:
			var payload proto.JoinMatchmakingPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				queue.Push(proto.Error("malformed join_matchmaking message"))
				continue
			}
			msgs, err := e.mm.JoinMatchmaking(context.Background(), playerID, engine.GameType(payload.GameType))
			if err != nil {
				queue.Push(proto.Error(err.Error()))
				continue
			}
			e.reg.Fanout(msgs)

		case proto.ClientResumeMatch:
			msgs, err := e.mm.ResumeMatch(context.Background(), playerID)
			if err != nil {
				queue.Push(proto.Error(err.Error()))
				continue
			}
			e.reg.Fanout(msgs)

		case proto.ClientMakeMove:
			var payload proto.MakeMovePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				queue.Push(proto.Error("malformed make_move message"))
				continue
			}
			msgs, err := e.mm.MakeMove(context.Background(), playerID, payload.MoveData)
			if err != nil {
				queue.Push(proto.Error(err.Error()))
				continue
			}
			e.reg.Fanout(msgs)

		default:
			queue.Push(proto.Error("unknown message type"))
		}
	}
}
