package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Hub is the in-memory room registry: one broadcast group per conversation.
// It carries no history; connections that join after a broadcast fetch what
// they missed through the message history endpoint.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

func (h *Hub) Join(conversationID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
}

// Leave removes the connection from the room. Safe to call for a connection
// that was already removed, so error unwinds can call it freely.
func (h *Hub) Leave(conversationID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// Broadcast delivers the event to every live member of the room, honoring
// the event's exclude/target directives. Delivery is at-least-once to each
// member connected at broadcast time; there is no replay.
func (h *Hub) Broadcast(conversationID uuid.UUID, ev Event) {
	// Collect under the read lock, deliver outside it so a slow consumer
	// cannot stall membership changes.
	h.mu.RLock()
	room := h.rooms[conversationID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if ev.TargetUserID != uuid.Nil && c.userID != ev.TargetUserID {
			continue
		}
		if ev.ExcludeUserID != uuid.Nil && c.userID == ev.ExcludeUserID {
			continue
		}
		if !c.send(ev.Data) {
			log.Printf("egress full for user %s in conversation %s, dropping connection", c.userID, conversationID)
			c.disconnect()
		}
	}
}

// HasOtherMember reports whether anyone besides userID is currently joined.
// Used to flip the delivery receipt the moment a broadcast reaches the
// other participant.
func (h *Hub) HasOtherMember(conversationID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[conversationID] {
		if c.userID != userID {
			return true
		}
	}
	return false
}

// RoomSize returns the number of live connections in the conversation's room.
func (h *Hub) RoomSize(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
