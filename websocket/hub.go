package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/HSouheill/barrim_notifications/models"
)

// PresenceFunc is told about every registry change for a user; delta is +1
// on register and -1 on unregister.
type PresenceFunc func(userID string, delta int)

// Hub is the connection registry: user identity to the set of that user's
// open connections. All methods are safe for concurrent use and never hold
// the lock while writing to a connection.
type Hub struct {
	clients  map[string]map[*Connection]struct{}
	presence []PresenceFunc
	mu       sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Connection]struct{}),
	}
}

// OnPresenceChange subscribes fn to register/unregister events. It must be
// called before the hub is shared.
func (h *Hub) OnPresenceChange(fn PresenceFunc) {
	h.presence = append(h.presence, fn)
}

// Register adds a connection for the user
func (h *Hub) Register(userID string, conn *Connection) {
	h.mu.Lock()
	conns, ok := h.clients[userID]
	if !ok {
		conns = make(map[*Connection]struct{})
		h.clients[userID] = conns
	}
	_, existed := conns[conn]
	conns[conn] = struct{}{}
	h.mu.Unlock()

	if !existed {
		h.notifyPresence(userID, 1)
	}
}

// Unregister removes a specific connection. It is a no-op when the
// connection is already gone and reports whether anything was removed.
func (h *Hub) Unregister(userID string, conn *Connection) bool {
	h.mu.Lock()
	conns, ok := h.clients[userID]
	if ok {
		_, ok = conns[conn]
	}
	if ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()

	if ok {
		h.notifyPresence(userID, -1)
	}
	return ok
}

// ConnectionsFor returns a copy of the user's current connections
func (h *Hub) ConnectionsFor(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[userID]
	out := make([]*Connection, 0, len(conns))
	for conn := range conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the total number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}

// ConnectedUsers returns the number of live connections per user
func (h *Hub) ConnectedUsers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.clients))
	for userID, conns := range h.clients {
		out[userID] = len(conns)
	}
	return out
}

// Online reports whether the user has at least one connection on this instance
func (h *Hub) Online(_ context.Context, userID string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0, nil
}

// Deliver pushes msgs, in order, to every connection of the user. Each
// connection is written concurrently so a slow peer only costs its own
// write timeout. A connection whose write fails is closed and unregistered;
// the others are unaffected. It returns the number of connections that
// received every message.
func (h *Hub) Deliver(_ context.Context, userID string, msgs ...models.Message) int {
	conns := h.ConnectionsFor(userID)
	if len(conns) == 0 || len(msgs) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			for _, msg := range msgs {
				if err := conn.Send(msg); err != nil {
					log.Printf("Push to connection %s of user %s failed, dropping it: %v", conn.ID, userID, err)
					h.Unregister(userID, conn)
					conn.Close()
					return
				}
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
	return delivered
}

func (h *Hub) notifyPresence(userID string, delta int) {
	for _, fn := range h.presence {
		fn(userID, delta)
	}
}
