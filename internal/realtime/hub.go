package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/live-polling/backend/internal/rooms"
)

// Hub maintains room_id -> set of connections and fans events out to
// the room-scoped delivery groups: everyone in a room, the teacher of a
// room, or the students of a room. It implements rooms.Broadcaster.
type Hub struct {
	// clients indexes every connected client by ID; members maps
	// roomID -> clientID -> role for group delivery.
	clients map[string]*Client
	members map[string]map[string]rooms.Role
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		members: make(map[string]map[string]rooms.Role),
		logger:  logger,
	}
}

// Register adds a freshly upgraded connection to the global index. The
// connection joins a room group only after a successful join event.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
}

// Unregister drops a connection from the global index and any room
// group it was still part of.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for roomID, m := range h.members {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(h.members, roomID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// AddToRoom places a connection in a room's delivery group.
func (h *Hub) AddToRoom(roomID, clientID string, role rooms.Role) {
	h.mu.Lock()
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[string]rooms.Role)
	}
	h.members[roomID][clientID] = role
	h.mu.Unlock()
}

// RemoveFromRoom takes a connection out of a room's delivery group.
func (h *Hub) RemoveFromRoom(roomID, clientID string) {
	h.mu.Lock()
	if m, ok := h.members[roomID]; ok {
		delete(m, clientID)
		if len(m) == 0 {
			delete(h.members, roomID)
		}
	}
	h.mu.Unlock()
}

// ToRoom sends an event to every connection in a room.
func (h *Hub) ToRoom(roomID, event string, data any) {
	h.toGroup(roomID, event, data, "")
}

// ToTeacher sends an event to the room's teacher connection.
func (h *Hub) ToTeacher(roomID, event string, data any) {
	h.toGroup(roomID, event, data, rooms.RoleTeacher)
}

// ToStudents sends an event to every student connection in a room.
func (h *Hub) ToStudents(roomID, event string, data any) {
	h.toGroup(roomID, event, data, rooms.RoleStudent)
}

func (h *Hub) toGroup(roomID, event string, data any, only rooms.Role) {
	msg, err := envelope(event, data)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.members[roomID]))
	for clientID, role := range h.members[roomID] {
		if only != "" && role != only {
			continue
		}
		if c, ok := h.clients[clientID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// ToClient sends an event to a single connection, in or out of a room.
func (h *Hub) ToClient(clientID, event string, data any) {
	msg, err := envelope(event, data)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(msg)
}

// CloseClient force-disconnects a connection. Queued events (e.g. a
// kicked or room_closed notice) are flushed before the close frame.
func (h *Hub) CloseClient(clientID string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if ok {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func envelope(event string, data any) (WSMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: event, Data: raw}, nil
}
