package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HSouheill/barrim_notifications/models"
)

// Transport is the part of a WebSocket connection used for pushes.
// *websocket.Conn satisfies it.
type Transport interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
}

// Connection is one live push channel of a user (a browser tab or device).
// It is never resumed: a reconnect creates a new Connection.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	transport    Transport
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

// NewConnection wraps a transport for the given user
func NewConnection(userID string, transport Transport, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		ConnectedAt:  time.Now(),
		transport:    transport,
		writeTimeout: writeTimeout,
	}
}

// Send writes one message with a bounded write deadline. Writes to the same
// connection are serialized.
func (c *Connection) Send(msg models.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.transport.WriteJSON(msg)
}

// Close closes the transport once; later calls return the first result
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}
