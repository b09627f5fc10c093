package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// PGRoomStore implements store.RoomStore backed by Postgres.
type PGRoomStore struct {
	db *sql.DB
}

func NewPGRoomStore(db *sql.DB) *PGRoomStore {
	return &PGRoomStore{db: db}
}

func (s *PGRoomStore) GetRoom(ctx context.Context, roomID string) (*a2a.Room, error) {
	var r a2a.Room
	var meta []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, world_id, metadata FROM rooms WHERE id = $1`, roomID,
	).Scan(&r.ID, &r.DisplayName, &r.WorldID, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode room metadata: %w", err)
		}
	}
	return &r, nil
}

func (s *PGRoomStore) UpsertRoom(ctx context.Context, room a2a.Room) error {
	if err := store.ValidateRoom(room); err != nil {
		return err
	}
	meta, err := json.Marshal(room.Metadata)
	if err != nil {
		return fmt.Errorf("marshal room metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, display_name, world_id, metadata, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   world_id = EXCLUDED.world_id,
		   metadata = EXCLUDED.metadata,
		   updated_at = NOW()`,
		room.ID, room.DisplayName, room.WorldID, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

func (s *PGRoomStore) ListRooms(ctx context.Context) ([]a2a.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, world_id, metadata FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []a2a.Room
	for rows.Next() {
		var r a2a.Room
		var meta []byte
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.WorldID, &meta); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &r.Metadata)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
