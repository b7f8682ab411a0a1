package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/chathub/internal/config"
	"github.com/Tyrowin/chathub/internal/hub"
	"github.com/Tyrowin/chathub/internal/logging"
	"github.com/Tyrowin/chathub/internal/server"
	"github.com/Tyrowin/chathub/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.IsDevelopment(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	registry := hub.NewRegistry()
	dispatcher := hub.NewDispatcher(log.With().Str("component", "dispatcher").Logger(), registry, db, db, db)
	h := hub.New(log.With().Str("component", "hub").Logger(), registry, dispatcher, hub.SessionOptions{
		Backlog:        cfg.OutboundBacklog,
		MaxMessageSize: cfg.MaxMessageSize,
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		RateBurst:      cfg.RateLimit.Burst,
		RateInterval:   cfg.RateLimit.RefillInterval,
	})

	srv := server.New(log, cfg, h, db)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(log, httpServer)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := h.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("hub shutdown incomplete")
	}
	return server.ShutdownServer(log, httpServer, cfg.ShutdownTimeout)
}

func openStore(ctx context.Context, log zerolog.Logger, cfg config.Config) (store.DataStore, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
		return pg, nil
	}

	lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %w", err)
	}
	log.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	return lite, nil
}
