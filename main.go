package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	configDir := flag.String("config", ".", "Directory containing arena.json")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	clientDir := flag.String("client", "", "Path to client directory (overrides config)")
	flag.Parse()

	cfg, err := LoadConfig(*configDir)
	if err != nil {
		setupLogging("info", true, nil)
		log.Fatal().Err(err).Msg("loading config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *clientDir != "" {
		cfg.ClientDir = *clientDir
	}
	setupLogging(cfg.LogLevel, cfg.LogPretty, nil)

	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening database")
	}
	defer db.Close()

	analytics := NewAnalytics(db)
	defer analytics.Stop()

	game, err := NewGame(cfg, analytics)
	if err != nil {
		log.Fatal().Err(err).Msg("creating game")
	}

	hub := NewHub(cfg, game, db, NewAuth(db, cfg.Admin), analytics)
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go game.Run(ctx)

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, cfg.ClientDir)}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("client", cfg.ClientDir).Msg("server starting")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
		server.Close()
	}
}
