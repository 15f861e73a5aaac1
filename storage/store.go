package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/itiky/shared-list/model"
)

// Store is the durable ordered sequence of list items.
// Every mutation is atomic per record: it either fully applies or returns an error.
// Persistence failures wrap model.ErrStorage, absent ids wrap model.ErrNotFound.
type Store interface {
	// Append inserts a new item with position = max(position)+1 (0 for an empty list).
	Append(ctx context.Context, name string, now time.Time) (model.ListItem, error)
	// Delete removes the item by id and shifts survivors above its position down by one.
	Delete(ctx context.Context, id int64) (model.ListItem, error)
	// SetPosition overwrites the item position and stamps updated_at (no re-rank).
	SetPosition(ctx context.Context, id int64, position int, now time.Time) error
	// MoveTo places the item at index of the current order and re-ranks all items densely.
	MoveTo(ctx context.Context, id int64, index int, now time.Time) error
	// List returns all items ordered by position asc, updated_at desc, id asc.
	List(ctx context.Context) ([]model.ListItem, error)
	// Close releases the backend.
	Close() error
}

// Open builds a Store by DSN scheme:
//   - memory://
//   - sqlite://<path> (or a bare path, sqlite://:memory: for tests)
//   - postgres://... / postgresql://...
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty", "dsn")
	}

	scheme, rest := "", dsn
	if idx := strings.Index(dsn, "://"); idx >= 0 {
		scheme, rest = strings.ToLower(dsn[:idx]), dsn[idx+3:]
	}

	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "", "file", "sqlite", "sqlite3":
		return OpenSQLite(rest)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", scheme)
	}
}
