// Package hub is the real-time message distribution core: a registry of live
// user connections, one Session per connection, and a Dispatcher that
// persists inbound batches and fans them out to online channel members.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrHubClosed is returned by Serve once Shutdown has begun.
var ErrHubClosed = errors.New("hub closed")

// Hub tracks running sessions so they can be cancelled and awaited together.
type Hub struct {
	log        zerolog.Logger
	registry   *Registry
	dispatcher *Dispatcher
	opts       SessionOptions

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Hub around an existing registry and dispatcher.
func New(log zerolog.Logger, registry *Registry, dispatcher *Dispatcher, opts SessionOptions) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Serve runs a session for userID over conn and blocks until it closes.
func (h *Hub) Serve(userID int64, conn Conn, remoteAddr string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	log := h.log.With().Str("remote_addr", remoteAddr).Logger()
	session := NewSession(log, userID, conn, h.registry, h.dispatcher, h.opts)
	return session.Run(h.ctx)
}

// Shutdown cancels every session and waits for them to finish. It returns
// context.DeadlineExceeded if they are still running after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Dur("timeout", timeout).Msg("hub shutdown timed out, sessions may still be running")
		return context.DeadlineExceeded
	}
}
