package tasks

import (
	"context"
	"log"
	"time"

	"roomchat/internal/chat"
	"roomchat/internal/repository"

	"github.com/robfig/cron/v3"
)

// RoomSweeper periodically closes live connections whose room has been
// deleted out from under them. The delete endpoint already closes its
// own room; the sweeper catches rooms removed by other backends sharing
// the database.
type RoomSweeper struct {
	registry *chat.Registry
	rooms    repository.RoomRepo
}

func NewRoomSweeper(registry *chat.Registry, rooms repository.RoomRepo) *RoomSweeper {
	return &RoomSweeper{
		registry: registry,
		rooms:    rooms,
	}
}

func (s *RoomSweeper) Start() {
	c := cron.New()

	_, err := c.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, roomID := range s.registry.Rooms() {
			exists, err := s.rooms.Exists(ctx, roomID)
			if err != nil {
				log.Printf("[WORKER] Room existence check failed for %s: %v", roomID, err)
				continue
			}
			if !exists {
				log.Printf("[WORKER] Room %s no longer exists, closing its connections", roomID)
				s.registry.CloseRoom(roomID)
			}
		}
	})
	if err != nil {
		log.Printf("[WORKER] Error scheduling cron: %v", err)
		return
	}

	c.Start()
}
