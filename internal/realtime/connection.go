// Package realtime is the websocket editing surface: browser editors connect,
// push edits into the pipeline and receive snapshots, markers and fragments.
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultQueueSize is the number of pushed messages held for a slow client
	DefaultQueueSize = 16

	// DefaultWriteTimeout bounds a single socket write
	DefaultWriteTimeout = 10 * time.Second
)

// Socket is the part of a websocket connection the hub writes to.
// *websocket.Conn from gofiber/contrib/websocket implements it.
type Socket interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnectionConfig bounds how much a client can hold up the hub
type ConnectionConfig struct {
	// QueueSize is the number of pushed messages waiting for the socket. When
	// full, the oldest one is discarded.
	QueueSize int
	// WriteTimeout is the deadline for one socket write. 0 disables it.
	WriteTimeout time.Duration
}

// DefaultConnectionConfig returns the defaults used by NewManager
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		QueueSize:    DefaultQueueSize,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Connection represents a WebSocket client connection. Pushed messages go
// through a bounded queue drained by the connection's own writer goroutine,
// so a stalled client never blocks the sender.
type Connection struct {
	ConnectedAt  time.Time
	Conn         Socket
	ID           string
	writeTimeout time.Duration
	queue        chan ServerMessage
	done         chan struct{}
	queueMu      sync.Mutex
	writeMu      sync.Mutex
	mu           sync.Mutex
	closed       bool
}

// NewConnection creates a connection and starts its writer
func NewConnection(id string, conn Socket, cfg ConnectionConfig) *Connection {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	c := &Connection{
		ID:           id,
		Conn:         conn,
		ConnectedAt:  time.Now().UTC(),
		writeTimeout: cfg.WriteTimeout,
		queue:        make(chan ServerMessage, cfg.QueueSize),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// SendMessage writes a message to the socket and waits for the write.
// Writes are serialized because the websocket library allows one concurrent
// writer.
func (c *Connection) SendMessage(msg ServerMessage) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.Conn.WriteJSON(msg)
}

// Enqueue hands msg to the writer without touching the socket. msg is always
// queued; if the queue was full the oldest queued message is discarded and
// ErrMessageDropped is returned.
func (c *Connection) Enqueue(msg ServerMessage) error {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.isClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.queue <- msg:
		return nil
	default:
	}

	select {
	case <-c.queue:
	default:
	}
	select {
	case c.queue <- msg:
	default:
	}
	return ErrMessageDropped
}

// Queued returns the number of messages waiting for the socket
func (c *Connection) Queued() int {
	return len(c.queue)
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			if err := c.SendMessage(msg); err != nil {
				if !errors.Is(err, ErrConnectionClosed) {
					log.Debug().Err(err).Str("connection_id", c.ID).Msg("Write failed, closing connection")
				}
				// the read loop sees the closed socket and unregisters the client
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the WebSocket connection and stops the writer. It is safe to
// call more than once and does not wait for a write in progress.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.Conn.Close()
}
