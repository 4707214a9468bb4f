package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keynine/turnserver/internal/authn"
	"github.com/keynine/turnserver/internal/config"
	"github.com/keynine/turnserver/internal/dispatch"
	"github.com/keynine/turnserver/internal/httpd"
	"github.com/keynine/turnserver/internal/logx"
	"github.com/keynine/turnserver/internal/match"
	"github.com/keynine/turnserver/internal/realtime"
	"github.com/keynine/turnserver/internal/registry"
	"github.com/keynine/turnserver/internal/store"
)

func main() {
	log.SetFlags(0)
	cfg := &config.Config{}
	cobra.CheckErr(config.NewCommand(cfg, func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cfg)
	}).Execute())
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logx.New(cfg.Verbose)
	logger.Infof("starting turnserver")

	repo, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	nonces := authn.NewNonceCache(cfg.NonceTTL)
	sessions := authn.NewSessionCache(cfg.SessionTTL)
	authSvc := authn.NewService(repo, nonces, sessions)

	reg := registry.New()
	disp := dispatch.New()
	mm := match.New(repo, reg, disp, cfg.DisconnectGrace)
	ws := realtime.NewEndpoint(authSvc, mm, reg, logger)

	srv := httpd.New(cfg, logger, repo, authSvc, mm, disp, ws)

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go nonces.Run(sweepStop)
	go sessions.Run(sweepStop)

	return srv.Run(ctx)
}
