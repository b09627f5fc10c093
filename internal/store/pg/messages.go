package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Append(ctx context.Context, msg a2a.Message) error {
	if err := store.Normalize(&msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_entity_id, agent_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.RoomID, msg.SenderEntityID, msg.AgentID, content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PGMessageStore) RecentMessages(ctx context.Context, roomID string, count int) ([]a2a.Message, error) {
	count = store.ClampCount(count)
	if count == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_entity_id, agent_id, content, created_at FROM (
		   SELECT id, room_id, sender_entity_id, agent_id, content, created_at, seq
		   FROM messages WHERE room_id = $1
		   ORDER BY created_at DESC, seq DESC LIMIT $2
		 ) recent ORDER BY created_at, seq`, roomID, count)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []a2a.Message
	for rows.Next() {
		var m a2a.Message
		var content []byte
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderEntityID, &m.AgentID, &content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return nil, fmt.Errorf("decode content %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
