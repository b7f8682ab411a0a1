package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/chathub/internal/config"
	"github.com/Tyrowin/chathub/internal/hub"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server binds the hub to its HTTP surface.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	hub      *hub.Hub
	db       Pinger
	upgrader websocket.Upgrader
}

// New creates a Server for the given hub; db backs the health check.
func New(log zerolog.Logger, cfg config.Config, h *hub.Hub, db Pinger) *Server {
	origins := newOriginPolicy(log, cfg.AllowedOrigins)
	return &Server{
		cfg: cfg,
		log: log,
		hub: h,
		db:  db,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use; hijacked websocket
// connections are not subject to them.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it stops. A server
// closed through Shutdown is not reported as an error.
func StartServer(log zerolog.Logger, server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server, waiting up to timeout
// for in-flight requests.
func ShutdownServer(log zerolog.Logger, server *http.Server, timeout time.Duration) error {
	log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}
