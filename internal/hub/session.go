package hub

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chathub/internal/metrics"
)

// Conn is the subset of *websocket.Conn a Session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// State is a step in a session's lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SessionOptions tunes the transport side of a session.
type SessionOptions struct {
	Backlog        int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	RateBurst      int
	RateInterval   time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Backlog <= 0 {
		o.Backlog = 100
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.RateInterval <= 0 {
		o.RateInterval = time.Second
	}
	return o
}

func (o SessionOptions) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Session owns one live connection for one user. It registers its outbound
// channel, then runs a reader and a writer; whichever returns first cancels
// the other and closes the connection. Frames still queued at that point are
// discarded.
type Session struct {
	id         string
	userID     int64
	conn       Conn
	outbound   chan OutboundFrame
	registry   *Registry
	dispatcher *Dispatcher
	limiter    *rateLimiter
	opts       SessionOptions
	log        zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

// NewSession builds a session in the Connecting state.
func NewSession(
	log zerolog.Logger,
	userID int64,
	conn Conn,
	registry *Registry,
	dispatcher *Dispatcher,
	opts SessionOptions,
) *Session {
	id := uuid.NewString()
	opts = opts.withDefaults()
	return &Session{
		id:         id,
		userID:     userID,
		conn:       conn,
		outbound:   make(chan OutboundFrame, opts.Backlog),
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    newRateLimiter(opts.RateBurst, opts.RateInterval),
		opts:       opts,
		log:        log.With().Int64("user_id", userID).Str("session_id", id).Logger(),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// UserID returns the identity the session is registered under.
func (s *Session) UserID() int64 { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Outbound exposes the channel the registry hands to the dispatcher.
func (s *Session) Outbound() chan OutboundFrame { return s.outbound }

// Run blocks until both tasks have exited. It returns the error that ended
// the session, or nil when it was cancelled through ctx.
func (s *Session) Run(ctx context.Context) error {
	if err := s.prepareConn(); err != nil {
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		s.log.Warn().Err(err).Msg("preparing connection")
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.registry.Register(s.userID, s.outbound)
	metrics.SessionsActive.Inc()

	stop := func() {
		s.closeOnce.Do(func() {
			s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
			s.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
			cancel()
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				s.log.Debug().Err(err).Msg("closing connection")
			}
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		defer stop()
		return s.writeLoop(ctx)
	})
	g.Go(func() error {
		defer stop()
		return s.readLoop(ctx)
	})
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
	s.log.Info().Msg("session active")

	err := g.Wait()

	s.registry.Unregister(s.userID, s.outbound)
	metrics.SessionsActive.Dec()
	s.state.Store(int32(StateClosed))
	s.log.Info().Err(err).Msg("session closed")
	return err
}

// prepareConn applies the read limit, the first read deadline and the pong
// handler. It runs before either task starts.
func (s *Session) prepareConn() error {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logReadError(err)
			return err
		}
		metrics.FramesReceived.Inc()

		if !s.limiter.allow() {
			metrics.FramesRejected.WithLabelValues(metrics.ReasonRateLimited).Inc()
			s.log.Warn().Int("burst", s.opts.RateBurst).Dur("interval", s.opts.RateInterval).
				Msg("rate limit exceeded, discarding frame")
			continue
		}

		batch, err := DecodeBatch(raw)
		if err != nil {
			reason := metrics.ReasonDecode
			if errors.Is(err, ErrInvalidBatch) {
				reason = metrics.ReasonInvalid
			}
			metrics.FramesRejected.WithLabelValues(reason).Inc()
			s.log.Warn().Err(err).Msg("discarding inbound frame")
			continue
		}

		s.dispatcher.Dispatch(ctx, batch.ChannelID, s.userID, batch.Messages)
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeClose()
			return nil
		case frame := <-s.outbound:
			payload, err := EncodeFrame(frame)
			if err != nil {
				metrics.FramesDropped.WithLabelValues(metrics.ReasonEncode).Inc()
				s.log.Error().Err(err).Msg("encoding outbound frame")
				continue
			}
			if err := s.write(websocket.TextMessage, payload); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				return err
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				return err
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// writeClose sends a close frame, best effort.
func (s *Session) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	if err := s.write(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("writing close message")
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("limit", s.opts.MaxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.log.Info().Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Info().Err(err).Msg("connection closed")
	default:
		s.log.Warn().Err(err).Msg("read error")
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
