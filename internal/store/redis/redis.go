// Package redis keeps the shared room log in Redis sorted sets so agents running on
// different hosts read the same history.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

const (
	messageTTL = 7 * 24 * time.Hour
	roomsKey   = "rooms"
)

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// roomSeqKey holds a room's arrival counter.
func roomSeqKey(roomID string) string {
	return fmt.Sprintf("room:%s:seq", roomID)
}

// encodeMember prefixes data with a zero-padded arrival number, so members sharing a
// score sort by arrival.
func encodeMember(seq int64, data []byte) string {
	return fmt.Sprintf("%020d:%s", seq, data)
}

// decodeMember strips the arrival prefix written by encodeMember.
func decodeMember(member string) []byte {
	if i := strings.IndexByte(member, ':'); i == 20 {
		return []byte(member[i+1:])
	}
	return []byte(member)
}

// messageSeenKey marks a message id as appended.
func messageSeenKey(id string) string {
	return fmt.Sprintf("message:%s", id)
}

// roomKey returns the key for a room's metadata hash.
func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

// Connect parses redisURL, opens a client and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// MessageStore implements store.MessageStore on Redis.
type MessageStore struct {
	client *redis.Client
}

func NewMessageStore(client *redis.Client) *MessageStore {
	return &MessageStore{client: client}
}

func (s *MessageStore) Append(ctx context.Context, msg a2a.Message) error {
	if err := store.Normalize(&msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	fresh, err := s.client.SetNX(ctx, messageSeenKey(msg.ID), 1, messageTTL).Result()
	if err != nil {
		return fmt.Errorf("mark message: %w", err)
	}
	if !fresh {
		return nil
	}

	seq, err := s.client.Incr(ctx, roomSeqKey(msg.RoomID)).Result()
	if err != nil {
		s.client.Del(ctx, messageSeenKey(msg.ID))
		return fmt.Errorf("next message seq: %w", err)
	}

	key := roomMessagesKey(msg.RoomID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.CreatedAt.UnixMilli()),
		Member: encodeMember(seq, data),
	})
	pipe.Expire(ctx, key, messageTTL)
	pipe.Expire(ctx, roomSeqKey(msg.RoomID), messageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.client.Del(ctx, messageSeenKey(msg.ID))
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (s *MessageStore) RecentMessages(ctx context.Context, roomID string, count int) ([]a2a.Message, error) {
	count = store.ClampCount(count)
	if count == 0 {
		return nil, nil
	}
	// Newest first; equal scores fall back to member order, which is arrival order.
	results, err := s.client.ZRevRange(ctx, roomMessagesKey(roomID), 0, int64(count)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return decodeNewestFirst(roomID, results), nil
}

// decodeNewestFirst turns a ZREVRANGE result into oldest-first messages. Entries that
// do not decode are logged and skipped.
func decodeNewestFirst(roomID string, members []string) []a2a.Message {
	out := make([]a2a.Message, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var m a2a.Message
		if err := json.Unmarshal(decodeMember(members[i]), &m); err != nil {
			slog.Warn("redis: skipping undecodable room log entry", "room_id", roomID, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// RoomStore implements store.RoomStore with one hash per room.
type RoomStore struct {
	client *redis.Client
}

func NewRoomStore(client *redis.Client) *RoomStore {
	return &RoomStore{client: client}
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*a2a.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	r := &a2a.Room{ID: roomID, DisplayName: fields["display_name"], WorldID: fields["world_id"]}
	if meta := fields["metadata"]; meta != "" {
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode room metadata: %w", err)
		}
	}
	return r, nil
}

func (s *RoomStore) UpsertRoom(ctx context.Context, room a2a.Room) error {
	if err := store.ValidateRoom(room); err != nil {
		return err
	}
	meta, err := json.Marshal(room.Metadata)
	if err != nil {
		return fmt.Errorf("marshal room metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, roomKey(room.ID), map[string]interface{}{
		"display_name": room.DisplayName,
		"world_id":     room.WorldID,
		"metadata":     string(meta),
	})
	pipe.SAdd(ctx, roomsKey, room.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

func (s *RoomStore) ListRooms(ctx context.Context) ([]a2a.Room, error) {
	ids, err := s.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]a2a.Room, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// NewRedisStores connects to redisURL and returns stores sharing one client.
func NewRedisStores(ctx context.Context, redisURL string) (*store.Stores, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("CROSSTALK_REDIS_URL environment variable is not set")
	}
	client, err := Connect(ctx, redisURL)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Messages: NewMessageStore(client),
		Rooms:    NewRoomStore(client),
		Closer:   client,
	}, nil
}
