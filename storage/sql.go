package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/itiky/shared-list/model"
)

const sequenceName = "list_items"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS list_items (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		position BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_order ON list_items (position, updated_at)`,
	`CREATE TABLE IF NOT EXISTS list_sequence (
		name TEXT PRIMARY KEY,
		next_id BIGINT NOT NULL
	)`,
	`INSERT INTO list_sequence (name, next_id) VALUES ('` + sequenceName + `', 0) ON CONFLICT (name) DO NOTHING`,
}

const listQuery = `SELECT id, name, position, updated_at FROM list_items ORDER BY position ASC, updated_at DESC, id ASC`

// SQLStore persists list items in a relational database (SQLite or PostgreSQL).
type SQLStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creates) a SQLite store at path, ":memory:" is accepted.
func OpenSQLite(path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%s: empty", "path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)

	return newSQLStore(db, func(int) string { return "?" })
}

// OpenPostgres opens a PostgreSQL store.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	return newSQLStore(db, func(n int) string { return "$" + strconv.Itoa(n) })
}

func newSQLStore(db *sql.DB, placeholder func(n int) string) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLStore{db: db, placeholder: placeholder}, nil
}

// Append implements Store.
func (s *SQLStore) Append(ctx context.Context, name string, now time.Time) (model.ListItem, error) {
	item := model.ListItem{Name: name, UpdatedAt: now}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Takes the sequence row lock first, so concurrent appends are serialized up to the commit
		if err := tx.QueryRowContext(ctx,
			s.rebind(`UPDATE list_sequence SET next_id = next_id + 1 WHERE name = ? RETURNING next_id - 1`), sequenceName,
		).Scan(&item.Id); err != nil {
			return fmt.Errorf("next id: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM list_items`).Scan(&item.Position); err != nil {
			return fmt.Errorf("max position: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO list_items (id, name, position, updated_at) VALUES (?, ?, ?, ?)`),
			item.Id, item.Name, item.Position, now.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		return nil
	})
	if err != nil {
		return model.ListItem{}, model.NewStorageError("append", err)
	}

	return item, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, id int64) (model.ListItem, error) {
	item := model.ListItem{Id: id}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var updatedAt int64
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT name, position, updated_at FROM list_items WHERE id = ?`), id,
		).Scan(&item.Name, &item.Position, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewNotFoundError(id)
		}
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		item.UpdatedAt = time.Unix(0, updatedAt)

		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM list_items WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE list_items SET position = position - 1 WHERE position > ?`), item.Position); err != nil {
			return fmt.Errorf("shift: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ListItem{}, err
		}
		return model.ListItem{}, model.NewStorageError("delete", err)
	}

	return item, nil
}

// SetPosition implements Store.
func (s *SQLStore) SetPosition(ctx context.Context, id int64, position int, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE list_items SET position = ?, updated_at = ? WHERE id = ?`),
		position, now.UnixNano(), id,
	)
	if err != nil {
		return model.NewStorageError("set position", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return model.NewStorageError("set position", err)
	}
	if affected == 0 {
		return model.NewNotFoundError(id)
	}

	return nil
}

// MoveTo implements Store.
func (s *SQLStore) MoveTo(ctx context.Context, id int64, index int, now time.Time) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ordered, err := s.list(ctx, tx)
		if err != nil {
			return err
		}

		reranked, err := rerank(ordered, id, index, now)
		if err != nil {
			return err
		}

		prevPositions := make(map[int64]int, len(ordered))
		for _, item := range ordered {
			prevPositions[item.Id] = item.Position
		}

		for _, item := range reranked {
			if item.Id != id && prevPositions[item.Id] == item.Position {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				s.rebind(`UPDATE list_items SET position = ?, updated_at = ? WHERE id = ?`),
				item.Position, item.UpdatedAt.UnixNano(), item.Id,
			); err != nil {
				return fmt.Errorf("update %d: %w", item.Id, err)
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return model.NewStorageError("move", err)
	}

	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]model.ListItem, error) {
	items, err := s.list(ctx, s.db)
	if err != nil {
		return nil, model.NewStorageError("list", err)
	}

	return items, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *SQLStore) list(ctx context.Context, q queryer) ([]model.ListItem, error) {
	rows, err := q.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	items := make([]model.ListItem, 0)
	for rows.Next() {
		var (
			item      model.ListItem
			updatedAt int64
		)
		if err := rows.Scan(&item.Id, &item.Name, &item.Position, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		item.UpdatedAt = time.Unix(0, updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return items, nil
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// rebind replaces "?" placeholders with the dialect ones.
func (s *SQLStore) rebind(query string) string {
	if s.placeholder(1) == "?" {
		return query
	}

	str := strings.Builder{}
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			str.WriteString(s.placeholder(n))
			continue
		}
		str.WriteRune(r)
	}

	return str.String()
}
