package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifications/middleware"
	"github.com/HSouheill/barrim_notifications/models"
)

const (
	// maxInboundMessageSize bounds frames sent by clients; they only ever send "sync"
	maxInboundMessageSize = 4096
	syncTimeout           = 10 * time.Second
)

// Synchronizer pushes the server-authoritative state to one connection.
// With snapshot false only the unread count is sent.
type Synchronizer interface {
	Sync(ctx context.Context, conn *Connection, snapshot bool) error
}

// Handler upgrades authenticated requests to push connections
type Handler struct {
	hub          *Hub
	sync         Synchronizer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
}

// NewHandler creates the WebSocket endpoint handler. An empty allowedOrigins
// list accepts any origin. A non-positive pingInterval means 30s.
func NewHandler(hub *Hub, sync Synchronizer, allowedOrigins []string, writeTimeout, pingInterval time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Handler{
		hub:  hub,
		sync: sync,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// HandleWebSocket handles the WebSocket connection. The user identity comes
// only from the verified session token; nothing the client sends over the
// channel can change it.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Please provide valid credentials")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already replied to the client
		c.Logger().Errorf("WebSocket upgrade failed for user %s: %v", userID, err)
		return nil
	}

	client := NewConnection(userID, conn, h.writeTimeout)
	h.hub.Register(userID, client)
	log.Printf("WebSocket connection %s opened for user %s (%d live)", client.ID, userID, h.hub.Count())

	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unregister(userID, client)
		client.Close()
		log.Printf("WebSocket connection %s closed for user %s", client.ID, userID)
	}()

	go h.pingLoop(conn, done)

	h.syncClient(client, false)
	h.readLoop(conn, client)
	return nil
}

// readLoop blocks until the peer goes away. Malformed frames are dropped.
func (h *Handler) readLoop(conn *websocket.Conn, client *Connection) {
	pongWait := h.pingInterval * 2
	conn.SetReadLimit(maxInboundMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error on connection %s: %v", client.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Dropping malformed frame on connection %s: %v", client.ID, err)
			continue
		}
		if msg.Type == models.MessageSync {
			h.syncClient(client, true)
		}
	}
}

func (h *Handler) syncClient(client *Connection, snapshot bool) {
	if h.sync == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := h.sync.Sync(ctx, client, snapshot); err != nil {
		log.Printf("Sync for connection %s failed: %v", client.ID, err)
	}
}

func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read loop notices the dead peer and cleans up
				conn.Close()
				return
			}
		}
	}
}
