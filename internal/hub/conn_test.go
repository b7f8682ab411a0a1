package hub

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        []byte
}

// fakeConn feeds frames from inbound to the reader and records every write.
// Closing inbound simulates the peer going away.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu          sync.Mutex
	writes      []recordedWrite
	limit       int64
	deadlineErr error
}

var errFakeClosed = errors.New("use of closed network connection")

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw, ok := <-c.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, raw, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, recordedWrite{messageType: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	c.limit = limit
	c.mu.Unlock()
}

func (c *fakeConn) SetReadDeadline(time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlineErr
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// writesOf returns the payloads written with the given message type.
func (c *fakeConn) writesOf(messageType int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, w := range c.writes {
		if w.messageType == messageType {
			out = append(out, w.data)
		}
	}
	return out
}

func testSessionOptions() SessionOptions {
	return SessionOptions{
		Backlog:        100,
		MaxMessageSize: 4096,
		WriteWait:      time.Second,
		PongWait:       60 * time.Second,
		RateBurst:      100,
		RateInterval:   time.Second,
	}
}
