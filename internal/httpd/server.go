// Package httpd implements the HTTP API (C10) of spec.md §4.10/§6: thin
// handlers delegating to the Repository, the auth service, and the
// matchmaker, served through httprouter in the teacher's web.go idiom.
package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/keynine/turnserver/internal/authn"
	"github.com/keynine/turnserver/internal/config"
	"github.com/keynine/turnserver/internal/dispatch"
	"github.com/keynine/turnserver/internal/logx"
	"github.com/keynine/turnserver/internal/match"
	"github.com/keynine/turnserver/internal/realtime"
	"github.com/keynine/turnserver/internal/store"
)

const requestTimeout = 10 * time.Second

// Server wires the HTTP surface to its collaborators.
type Server struct {
	cfg  *config.Config
	log  *logx.Logger
	repo store.Repository
	auth *authn.Service
	mm   *match.Matchmaker
	disp *dispatch.Dispatcher
	ws   *realtime.Endpoint
}

func New(cfg *config.Config, log *logx.Logger, repo store.Repository, auth *authn.Service, mm *match.Matchmaker, disp *dispatch.Dispatcher, ws *realtime.Endpoint) *Server {
	return &Server{cfg: cfg, log: log, repo: repo, auth: auth, mm: mm, disp: disp, ws: ws}
}

// Run builds the route table and serves until ctx is cancelled, mirroring
// the teacher's ServePage shutdown pattern.
func (s *Server) Run(ctx context.Context) error {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		s.securityHeaders(w)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}

	mux.POST("/player", s.withHeaders(s.withCSRF(s.handleCreatePlayer)))
	mux.POST("/auth/challenge", s.withHeaders(s.withCSRF(s.handleAuthChallenge)))
	mux.POST("/auth/verify", s.withHeaders(s.withCSRF(s.handleAuthVerify)))
	mux.POST("/auth/logout", s.withHeaders(s.withCSRF(s.handleAuthLogout)))

	mux.GET("/player", s.withHeaders(s.withAuth(s.handleGetSelf)))
	mux.GET("/player/:id", s.withHeaders(s.withAuth(s.handleGetPlayer)))
	mux.GET("/matches/active", s.withHeaders(s.withAuth(s.handleActiveMatches)))
	mux.GET("/stats", s.withHeaders(s.withAuth(s.handleStats)))
	mux.GET("/leaderboard", s.withHeaders(s.withAuth(s.handleLeaderboard)))

	mux.GET("/ws", s.ws.Handle)

	if s.cfg.Profile {
		registerProfileHandlers(mux)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       requestTimeout,
		ReadHeaderTimeout: requestTimeout,
		WriteTimeout:      requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s://%s", s.cfg.Scheme(), srv.Addr)
		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
