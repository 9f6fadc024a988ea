package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	writeWait         = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
)

// Transport is the narrow surface of *websocket.Conn the hub needs.
// The indirection keeps the registry testable with fake transports.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live client connection: the transport endpoint plus a bounded
// outbound queue drained by its write pump. The registry owns the Conn for
// its whole lifetime.
type Conn struct {
	ID       string
	UserID   string
	JoinedAt time.Time
	Metadata map[string]any

	transport  Transport
	send       chan []byte
	pingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
}

func newConn(t Transport, id, userID string, metadata map[string]any, queueSize int, pingPeriod time.Duration) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &Conn{
		ID:         id,
		UserID:     userID,
		JoinedAt:   time.Now().UTC(),
		Metadata:   metadata,
		transport:  t,
		send:       make(chan []byte, queueSize),
		pingPeriod: pingPeriod,
	}
}

// TrySend enqueues one frame without blocking. A full queue means the client
// is not keeping up and the caller should treat the connection as failed.
func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.transport.Close()
}

// writePump drains the outbound queue to the network and keeps the
// connection alive with periodic pings. It exits when the queue is closed or
// a write fails; the read side notices the dead transport and drives the
// registry cleanup.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "hub.conn").Str("cid", c.ID).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "hub.conn").Str("cid", c.ID).Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	if err := c.transport.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.transport.WriteMessage(messageType, data)
}
