// Package memory is an in-process store for single-binary deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// MessageStore keeps each room's log sorted by CreatedAt.
type MessageStore struct {
	mu    sync.RWMutex
	rooms map[string][]a2a.Message
	seen  map[string]bool
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		rooms: make(map[string][]a2a.Message),
		seen:  make(map[string]bool),
	}
}

func (s *MessageStore) Append(_ context.Context, msg a2a.Message) error {
	if err := store.Normalize(&msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[msg.ID] {
		return nil
	}
	s.seen[msg.ID] = true

	log := s.rooms[msg.RoomID]
	// Insert after every entry with CreatedAt <= msg.CreatedAt so equal timestamps keep arrival order.
	i := sort.Search(len(log), func(i int) bool { return log[i].CreatedAt.After(msg.CreatedAt) })
	log = append(log, a2a.Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	s.rooms[msg.RoomID] = log
	return nil
}

func (s *MessageStore) RecentMessages(ctx context.Context, roomID string, count int) ([]a2a.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count = store.ClampCount(count)
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.rooms[roomID]
	if count < len(log) {
		log = log[len(log)-count:]
	}
	return append([]a2a.Message(nil), log...), nil
}

// RoomStore is a map-backed room registry.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]a2a.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]a2a.Room)}
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (*a2a.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *RoomStore) UpsertRoom(_ context.Context, room a2a.Room) error {
	if err := store.ValidateRoom(room); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *RoomStore) ListRooms(_ context.Context) ([]a2a.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]a2a.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// New returns in-memory stores.
func New() *store.Stores {
	return &store.Stores{
		Messages: NewMessageStore(),
		Rooms:    NewRoomStore(),
	}
}
