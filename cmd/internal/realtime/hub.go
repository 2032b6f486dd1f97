package realtime

import (
	"log/slog"
	"strings"
	"sync"

	v1 "predixa/shared/contracts/realtime/v1"
)

// Hub tracks every connected client and maps organization ids to rooms.
// A room exists only while it has members. Clients without an organization are
// tracked but never placed in a room.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client
	closed  bool
}

// NewHub constructs a Hub. m may be nil.
func NewHub(log *slog.Logger, m *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: m,
		rooms:   make(map[string]*Room),
		clients: make(map[string]*Client),
	}
}

// Join registers c and adds it to the room for orgID, creating the room on first use.
// It reports false, and closes c, once the hub is closed.
func (h *Hub) Join(orgID string, c *Client) bool {
	if c == nil || c.ID == "" {
		return false
	}
	orgID = strings.TrimSpace(orgID)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return false
	}
	h.clients[c.ID] = c
	if orgID != "" {
		r, ok := h.rooms[orgID]
		if !ok {
			r = newRoom(orgID)
			h.rooms[orgID] = r
		}
		r.add(c)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.setRooms(rooms)
	h.log.Info("ws.room.join", "org_id", orgID, "client_id", c.ID, "user_id", c.UserID)
	return true
}

// Leave unregisters clientID, removes it from the room for orgID and closes it.
// The room is deleted once it is empty.
func (h *Hub) Leave(orgID, clientID string) {
	if clientID == "" {
		return
	}
	orgID = strings.TrimSpace(orgID)

	h.mu.Lock()
	c, known := h.clients[clientID]
	delete(h.clients, clientID)

	remaining := -1
	if r, ok := h.rooms[orgID]; ok {
		var rc *Client
		rc, remaining = r.remove(clientID)
		if c == nil {
			c = rc
		}
		if remaining == 0 {
			delete(h.rooms, orgID)
		}
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	if !known && remaining < 0 {
		return
	}

	// Close after removal so no broadcaster still holds the client.
	if c != nil {
		c.Close()
	}

	h.metrics.setRooms(rooms)
	h.log.Info("ws.room.leave", "org_id", orgID, "client_id", clientID, "room_deleted", remaining == 0)
}

// Broadcast sends m to every member of the room for orgID, the sender included,
// and returns the number of members whose queue accepted it.
func (h *Hub) Broadcast(orgID string, m v1.Message) int {
	h.mu.RLock()
	r := h.rooms[strings.TrimSpace(orgID)]
	h.mu.RUnlock()

	if r == nil {
		return 0
	}
	h.metrics.broadcastSent()
	return r.Broadcast(m)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// MemberCount returns the size of the room for orgID (0 when absent).
func (h *Hub) MemberCount(orgID string) int {
	h.mu.RLock()
	r := h.rooms[strings.TrimSpace(orgID)]
	h.mu.RUnlock()

	if r == nil {
		return 0
	}
	return r.Len()
}

// ClientCount returns the number of registered clients, with or without an organization.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every registered client and drops all rooms. Later joins are refused.
// Connection goroutines observe Client.Done and tear down their sockets.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	rooms := len(h.rooms)
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}

	h.metrics.setRooms(0)
	h.log.Info("ws.hub.close", "rooms", rooms, "clients", len(clients))
}
