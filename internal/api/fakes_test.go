package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/repository"

	"github.com/google/uuid"
)

type memMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []*models.Message
	failSave bool
}

func (m *memMessageRepo) Save(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("store unavailable")
	}
	m.nextID++
	msg.ID = m.nextID
	msg.CreatedAt = time.Now().UTC()
	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *memMessageRepo) History(ctx context.Context, roomID uuid.UUID, skip, limit int) ([]*models.Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Message
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			all = append(all, msg)
		}
	}
	total := len(all)
	if skip > len(all) {
		skip = len(all)
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memMessageRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, repository.ErrMessageNotFound
}

func (m *memMessageRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return repository.ErrMessageNotFound
}

type memRoomRepo struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{rooms: make(map[uuid.UUID]*models.Room)}
}

func (m *memRoomRepo) Create(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rooms {
		if strings.EqualFold(existing.Name, room.Name) {
			return repository.ErrDuplicateRoom
		}
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.LastActivity = now
	stored := *room
	stored.Members = append([]string(nil), room.Members...)
	m.rooms[room.ID] = &stored
	return nil
}

func (m *memRoomRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	copied := *room
	copied.Members = append([]string(nil), room.Members...)
	return &copied, nil
}

func (m *memRoomRepo) ListVisible(ctx context.Context, userID string) ([]*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Room
	for _, room := range m.rooms {
		if !room.IsPrivate || room.HasMember(userID) {
			copied := *room
			copied.Members = append([]string(nil), room.Members...)
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRoomRepo) AddMember(ctx context.Context, roomID uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	if !room.HasMember(userID) {
		room.Members = append(room.Members, userID)
	}
	return nil
}

func (m *memRoomRepo) RemoveMember(ctx context.Context, roomID uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	for i, member := range room.Members {
		if member == userID {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			return nil
		}
	}
	return repository.ErrMemberNotFound
}

func (m *memRoomRepo) Delete(ctx context.Context, roomID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return repository.ErrRoomNotFound
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *memRoomRepo) TouchActivity(ctx context.Context, roomID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		room.LastActivity = at
	}
	return nil
}

func (m *memRoomRepo) Exists(ctx context.Context, roomID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok, nil
}
