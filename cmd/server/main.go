package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/khanhnq1406/lo-to-sub001/internal/adapters/http"
	"github.com/khanhnq1406/lo-to-sub001/internal/adapters/ws"
	"github.com/khanhnq1406/lo-to-sub001/internal/config"
	"github.com/khanhnq1406/lo-to-sub001/internal/game"
	"github.com/khanhnq1406/lo-to-sub001/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file, reading environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var backend store.SessionBackend
	if cfg.DatabaseURL != "" {
		backend, err = store.OpenSessionBackend(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open session backend")
		}
		log.Info().Msg("durable session table attached")
	}

	st := store.New(store.Options{
		ReconnectGrace: cfg.ReconnectGrace,
		SessionTTL:     cfg.SessionTTL,
		SessionBackend: backend,
	})
	ctrl := ws.NewController(ws.Config{
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})
	orch := game.New(st, game.Config{
		DefaultInterval: cfg.CallInterval,
		MinInterval:     cfg.MinInterval,
		MaxInterval:     cfg.MaxInterval,
		MaxBoards:       cfg.MaxBoards,
	}, ctrl)
	ctrl.Attach(orch)

	r := router.SetupRouter(ctx, cfg, orch, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("loto server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		orch.RunSweeper(gctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		orch.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("server exited gracefully")
}
