package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

// MaxRecent caps a single history read regardless of the requested count.
const MaxRecent = 500

// MessageStore is the shared append-only room log.
// Implementations are safe for concurrent use by every agent in the process.
type MessageStore interface {
	a2a.HistoryReader
	// Append writes msg once. Appending an id that already exists is a no-op.
	Append(ctx context.Context, msg a2a.Message) error
}

// RoomStore is the room registry.
type RoomStore interface {
	a2a.RoomRegistry
	UpsertRoom(ctx context.Context, room a2a.Room) error
	ListRooms(ctx context.Context) ([]a2a.Room, error)
}

// Stores is the top-level container for the storage backend in use.
type Stores struct {
	Messages MessageStore
	Rooms    RoomStore
	Closer   io.Closer // nil for in-memory stores
}

// Close releases the backend connection.
func (s *Stores) Close() error {
	if s == nil || s.Closer == nil {
		return nil
	}
	return s.Closer.Close()
}

// NewMessageID returns a time-ordered id for locally created messages.
func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Normalize fills defaults and validates msg before it is appended.
func Normalize(msg *a2a.Message) error {
	if msg.RoomID == "" {
		return errors.New("message has no room id")
	}
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ClampCount bounds a requested history size to [0, MaxRecent].
func ClampCount(count int) int {
	if count <= 0 {
		return 0
	}
	if count > MaxRecent {
		return MaxRecent
	}
	return count
}

// ValidateRoom checks a room before it is stored.
func ValidateRoom(room a2a.Room) error {
	if room.ID == "" {
		return fmt.Errorf("room %q has no id", room.DisplayName)
	}
	return nil
}
