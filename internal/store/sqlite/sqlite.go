// Package sqlite stores the shared room log in a single SQLite file, for hosts that
// run every agent on one machine.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Open opens (creating if needed) the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/crosstalk.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initSchema creates tables if they don't exist.
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		room_id TEXT NOT NULL,
		sender_entity_id TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		world_id TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// MessageStore implements store.MessageStore on SQLite.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Append(ctx context.Context, msg a2a.Message) error {
	if err := store.Normalize(&msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, room_id, sender_entity_id, agent_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.SenderEntityID, msg.AgentID, string(content), msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MessageStore) RecentMessages(ctx context.Context, roomID string, count int) ([]a2a.Message, error) {
	count = store.ClampCount(count)
	if count == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_entity_id, agent_id, content, created_at FROM (
		   SELECT * FROM messages WHERE room_id = ?
		   ORDER BY created_at DESC, seq DESC LIMIT ?
		 ) ORDER BY created_at, seq`, roomID, count)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []a2a.Message
	for rows.Next() {
		var m a2a.Message
		var content string
		var created int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderEntityID, &m.AgentID, &content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("decode content %s: %w", m.ID, err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// RoomStore implements store.RoomStore on SQLite.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(db *sql.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*a2a.Room, error) {
	var r a2a.Room
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, world_id, metadata FROM rooms WHERE id = ?`, roomID,
	).Scan(&r.ID, &r.DisplayName, &r.WorldID, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode room metadata: %w", err)
		}
	}
	return &r, nil
}

func (s *RoomStore) UpsertRoom(ctx context.Context, room a2a.Room) error {
	if err := store.ValidateRoom(room); err != nil {
		return err
	}
	meta, err := json.Marshal(room.Metadata)
	if err != nil {
		return fmt.Errorf("marshal room metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, display_name, world_id, metadata, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = excluded.display_name,
		   world_id = excluded.world_id,
		   metadata = excluded.metadata,
		   updated_at = CURRENT_TIMESTAMP`,
		room.ID, room.DisplayName, room.WorldID, string(meta),
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

func (s *RoomStore) ListRooms(ctx context.Context) ([]a2a.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, display_name, world_id, metadata FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []a2a.Room
	for rows.Next() {
		var r a2a.Room
		var meta sql.NullString
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.WorldID, &meta); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &r.Metadata)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NewSQLiteStores opens path and returns stores sharing one connection.
func NewSQLiteStores(ctx context.Context, path string) (*store.Stores, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Messages: NewMessageStore(db),
		Rooms:    NewRoomStore(db),
		Closer:   db,
	}, nil
}
