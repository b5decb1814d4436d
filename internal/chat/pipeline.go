package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/repository"

	"github.com/google/uuid"
)

// inboundFrame is what clients are allowed to send. The sender identity
// always comes from the authenticated connection, never the payload.
type inboundFrame struct {
	Content string `json:"content"`
}

// Pipeline turns one inbound payload into a durable, broadcast message:
// decode, validate, persist, touch room activity, fan out. Persistence
// and broadcast for a room run under a per-room lock so the order
// clients see is exactly insert order; separate rooms never wait on
// each other.
type Pipeline struct {
	registry *Registry
	messages repository.MessageRepo
	rooms    repository.RoomRepo

	maxContentLength int
	storeTimeout     time.Duration

	mu       sync.Mutex
	pubLocks map[uuid.UUID]*sync.Mutex
}

func NewPipeline(registry *Registry, messages repository.MessageRepo, rooms repository.RoomRepo, maxContentLength int) *Pipeline {
	return &Pipeline{
		registry:         registry,
		messages:         messages,
		rooms:            rooms,
		maxContentLength: maxContentLength,
		storeTimeout:     10 * time.Second,
		pubLocks:         make(map[uuid.UUID]*sync.Mutex),
	}
}

func (p *Pipeline) publishLock(roomID uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.pubLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		p.pubLocks[roomID] = l
	}
	return l
}

// Ingest processes one raw frame from c. A bad payload is reported to c
// alone and never tears the connection down; a persisted message is
// broadcast to every registered connection in the room, including c.
func (p *Pipeline) Ingest(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("Invalid JSON format.")
		return
	}

	content := strings.TrimSpace(frame.Content)
	if content == "" {
		c.sendError("Message content is required.")
		return
	}
	if len(content) > p.maxContentLength {
		c.sendError(fmt.Sprintf("Message content exceeds %d characters.", p.maxContentLength))
		return
	}

	lock := p.publishLock(c.RoomID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.storeTimeout)
	defer cancel()

	msg := &models.Message{
		RoomID:  c.RoomID,
		UserID:  c.UserID,
		Content: content,
	}
	if err := p.messages.Save(ctx, msg); err != nil {
		c.sendError("Failed to save message.")
		return
	}

	// Best-effort: a stale last_activity never rolls back a saved message.
	if err := p.rooms.TouchActivity(ctx, c.RoomID, msg.CreatedAt); err != nil {
		log.Printf("[PIPELINE] last_activity update failed for room %s: %v", c.RoomID, err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[PIPELINE] Failed to marshal message %d: %v", msg.ID, err)
		return
	}
	p.registry.Broadcast(c.RoomID, payload)
}
