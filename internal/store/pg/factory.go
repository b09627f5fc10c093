package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// NewPGStores creates all stores backed by Postgres. The schema must already be
// migrated (crosstalk migrate up).
func NewPGStores(dsn string) (*store.Stores, error) {
	if dsn == "" {
		return nil, fmt.Errorf("CROSSTALK_POSTGRES_DSN environment variable is not set")
	}
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &store.Stores{
		Messages: NewPGMessageStore(db),
		Rooms:    NewPGRoomStore(db),
		Closer:   db,
	}, nil
}
