package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which connections are subscribed to which rooms and
// fans payloads out to them. Each room's handle set carries its own
// lock so traffic in one room never serializes against another.
//
// The registry holds no durable state. On restart it is empty and
// every client reconnects and re-authorizes.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*roomEntry
}

type roomEntry struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uuid.UUID]*roomEntry),
	}
}

// Register adds the client under roomID. Authorization happens strictly
// before this call. Registering the same handle twice is a no-op.
func (r *Registry) Register(roomID uuid.UUID, c *Client) {
	r.mu.Lock()
	entry, ok := r.rooms[roomID]
	if !ok {
		entry = &roomEntry{clients: make(map[*Client]struct{})}
		r.rooms[roomID] = entry
	}
	entry.mu.Lock()
	entry.clients[c] = struct{}{}
	size := len(entry.clients)
	entry.mu.Unlock()
	r.mu.Unlock()

	log.Printf("[REGISTRY] User %s joined room %s (connections in room: %d)", c.UserID, roomID, size)
}

// Unregister removes the client from roomID. Safe to call any number of
// times, including after the handle has already failed. When a room's
// set empties the room entry is dropped to bound memory.
func (r *Registry) Unregister(roomID uuid.UUID, c *Client) {
	r.mu.Lock()
	entry, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}

	entry.mu.Lock()
	_, present := entry.clients[c]
	delete(entry.clients, c)
	empty := len(entry.clients) == 0
	entry.mu.Unlock()

	if empty {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if present {
		log.Printf("[REGISTRY] User %s left room %s", c.UserID, roomID)
	}
}

// Broadcast delivers payload to every connection currently registered
// for roomID. Delivery is best-effort: a handle that cannot accept the
// payload is unregistered and closed, and delivery to the rest
// continues. The handle set is snapshotted under the room lock so new
// registrations are never blocked by a slow delivery.
func (r *Registry) Broadcast(roomID uuid.UUID, payload []byte) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	targets := make([]*Client, 0, len(entry.clients))
	for c := range entry.clients {
		targets = append(targets, c)
	}
	entry.mu.Unlock()

	for _, c := range targets {
		if !c.trySend(payload) {
			log.Printf("[REGISTRY] Evicting unresponsive connection for user %s in room %s", c.UserID, roomID)
			r.Unregister(roomID, c)
			c.Close()
		}
	}
}

// Rooms returns the ids of all rooms with at least one live connection.
func (r *Registry) Rooms() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Count reports the number of connections registered for roomID.
func (r *Registry) Count(roomID uuid.UUID) int {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.clients)
}

// CloseRoom closes and unregisters every connection in roomID. Used
// when a room is deleted out from under its live subscribers.
func (r *Registry) CloseRoom(roomID uuid.UUID) {
	r.mu.Lock()
	entry, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	targets := make([]*Client, 0, len(entry.clients))
	for c := range entry.clients {
		targets = append(targets, c)
	}
	entry.clients = make(map[*Client]struct{})
	entry.mu.Unlock()

	for _, c := range targets {
		c.Close()
	}
	log.Printf("[REGISTRY] Closed %d connection(s) for removed room %s", len(targets), roomID)
}

// CloseAll drains the registry at shutdown by closing every handle.
func (r *Registry) CloseAll() {
	for _, roomID := range r.Rooms() {
		r.CloseRoom(roomID)
	}
}
