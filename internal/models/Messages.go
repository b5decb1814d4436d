package models

import (
	"time"

	"github.com/google/uuid"
)

// Message IDs are assigned by the database at insert time and increase
// monotonically. Insert order, not the wall-clock timestamp, is the
// authoritative order of messages within a room.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    uuid.UUID `json:"roomId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
