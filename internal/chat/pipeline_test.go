package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memMessageRepo assigns ids in insert order, like the BIGSERIAL column.
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
			return msg, nil
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
	mu        sync.Mutex
	rooms     map[uuid.UUID]*models.Room
	failTouch bool
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
	if m.failTouch {
		return errors.New("directory unavailable")
	}
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

func seedRoom(t *testing.T, rooms *memRoomRepo, members ...string) uuid.UUID {
	t.Helper()
	room := &models.Room{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("room-%s", uuid.New()),
		Members:   members,
		CreatedBy: members[0],
	}
	require.NoError(t, rooms.Create(context.Background(), room))
	return room.ID
}

func decodeFrames(t *testing.T, payloads [][]byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, p := range payloads {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(p, &frame))
		out = append(out, frame)
	}
	return out
}

func TestPipeline_MalformedPayloadOnlyAnswersSender(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice", "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	bob := newTestClient(roomID, "bob", 8)
	registry.Register(roomID, alice)
	registry.Register(roomID, bob)

	pipeline.Ingest(alice, []byte("{not json"))

	frames := decodeFrames(t, drain(alice))
	require.Len(t, frames, 1)
	require.Equal(t, "Invalid JSON format.", frames[0]["error"])
	require.Empty(t, drain(bob))
	require.Empty(t, msgs.messages)

	// The connection stays usable afterwards.
	pipeline.Ingest(alice, []byte(`{"content":"still here"}`))
	require.Len(t, drain(bob), 1)
}

func TestPipeline_EmptyContentRejected(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	registry.Register(roomID, alice)

	pipeline.Ingest(alice, []byte(`{"content":"   "}`))

	frames := decodeFrames(t, drain(alice))
	require.Len(t, frames, 1)
	require.Equal(t, "Message content is required.", frames[0]["error"])
	require.Empty(t, msgs.messages)
}

func TestPipeline_OversizedContentRejected(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice")
	pipeline := NewPipeline(registry, msgs, rooms, 10)

	alice := newTestClient(roomID, "alice", 8)
	registry.Register(roomID, alice)

	pipeline.Ingest(alice, []byte(`{"content":"this is certainly longer than ten characters"}`))

	frames := decodeFrames(t, drain(alice))
	require.Len(t, frames, 1)
	require.Contains(t, frames[0]["error"], "exceeds 10 characters")
	require.Empty(t, msgs.messages)
}

func TestPipeline_SenderIdentityComesFromConnection(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice", "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	registry.Register(roomID, alice)

	// A spoofed userId in the payload is ignored entirely.
	pipeline.Ingest(alice, []byte(`{"content":"hi","userId":"bob"}`))

	require.Len(t, msgs.messages, 1)
	require.Equal(t, "alice", msgs.messages[0].UserID)
}

func TestPipeline_PersistedMessageBroadcastToAllIncludingSender(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice", "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	bob := newTestClient(roomID, "bob", 8)
	registry.Register(roomID, alice)
	registry.Register(roomID, bob)

	pipeline.Ingest(alice, []byte(`{"content":"hi"}`))

	for _, c := range []*Client{alice, bob} {
		frames := decodeFrames(t, drain(c))
		require.Len(t, frames, 1)
		require.Equal(t, "hi", frames[0]["content"])
		require.Equal(t, "alice", frames[0]["userId"])
		require.EqualValues(t, 1, frames[0]["id"])
		require.NotEmpty(t, frames[0]["createdAt"])
	}

	// Room activity follows the message timestamp.
	room, err := rooms.GetByID(context.Background(), roomID)
	require.NoError(t, err)
	require.Equal(t, msgs.messages[0].CreatedAt, room.LastActivity)
}

func TestPipeline_StoreFailurePreventsBroadcast(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{failSave: true}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice", "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	bob := newTestClient(roomID, "bob", 8)
	registry.Register(roomID, alice)
	registry.Register(roomID, bob)

	pipeline.Ingest(alice, []byte(`{"content":"doomed"}`))

	frames := decodeFrames(t, drain(alice))
	require.Len(t, frames, 1)
	require.Equal(t, "Failed to save message.", frames[0]["error"])
	require.Empty(t, drain(bob))
}

func TestPipeline_ActivityUpdateFailureDoesNotRollBackMessage(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice")
	rooms.failTouch = true
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomID, "alice", 8)
	registry.Register(roomID, alice)

	pipeline.Ingest(alice, []byte(`{"content":"durable"}`))

	require.Len(t, msgs.messages, 1)
	frames := decodeFrames(t, drain(alice))
	require.Len(t, frames, 1)
	require.Equal(t, "durable", frames[0]["content"])
}

func TestPipeline_DeliveryOrderMatchesPersistenceOrder(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomID := seedRoom(t, rooms, "alice", "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	const perSender = 50
	alice := newTestClient(roomID, "alice", 4*perSender)
	bob := newTestClient(roomID, "bob", 4*perSender)
	registry.Register(roomID, alice)
	registry.Register(roomID, bob)

	var wg sync.WaitGroup
	for _, sender := range []*Client{alice, bob} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				pipeline.Ingest(c, []byte(fmt.Sprintf(`{"content":"msg %d"}`, i)))
			}
		}(sender)
	}
	wg.Wait()

	// Both connections see ids strictly ascending: broadcast order
	// equals insert order no matter how senders interleave.
	for _, c := range []*Client{alice, bob} {
		frames := decodeFrames(t, drain(c))
		require.Len(t, frames, 2*perSender)
		last := float64(0)
		for _, frame := range frames {
			id := frame["id"].(float64)
			require.Greater(t, id, last)
			last = id
		}
	}
}

func TestPipeline_RoomsDoNotBlockEachOther(t *testing.T) {
	registry := NewRegistry()
	msgs := &memMessageRepo{}
	rooms := newMemRoomRepo()
	roomA := seedRoom(t, rooms, "alice")
	roomB := seedRoom(t, rooms, "bob")
	pipeline := NewPipeline(registry, msgs, rooms, 2000)

	alice := newTestClient(roomA, "alice", 64)
	bob := newTestClient(roomB, "bob", 64)
	registry.Register(roomA, alice)
	registry.Register(roomB, bob)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			pipeline.Ingest(alice, []byte(`{"content":"a"}`))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			pipeline.Ingest(bob, []byte(`{"content":"b"}`))
		}
	}()
	wg.Wait()

	require.Len(t, drain(alice), 20)
	require.Len(t, drain(bob), 20)
}
