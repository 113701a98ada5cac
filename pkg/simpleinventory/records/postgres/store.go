package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

const backendName = "postgres"

// Schema creates the items table in the current search_path.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	photo_ref   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const itemColumns = `id, name, COALESCE(description, ''), photo_ref, created_at, updated_at`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements simpleinventory.RecordStore using PostgreSQL
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL record store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL record store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// EnsureSchema creates the items table if it is missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return s.handlePostgresError("ensure schema", "", err)
	}
	return nil
}

// Error handling helper
func (s *Store) handlePostgresError(operation, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simpleinventory.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", simpleinventory.ErrDuplicateID, id)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simpleinventory.ErrValidation, pgErr.ColumnName)
		case "42P01": // undefined_table
			err = fmt.Errorf("table does not exist - database migration required: %w", err)
		}
	}

	return &simpleinventory.StorageError{Backend: backendName, Key: id, Op: operation, Err: err}
}

func (s *Store) Insert(ctx context.Context, item *simpleinventory.Item) error {
	query := `
		INSERT INTO items (id, name, description, photo_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		item.ID, item.Name, item.Description, item.PhotoRef, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return s.handlePostgresError("insert", item.ID, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*simpleinventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	item, err := scanItem(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, s.handlePostgresError("get", id, err)
	}
	return item, nil
}

// ListAll returns items newest first. Ids are UUIDv7, so id order is
// creation order.
func (s *Store) ListAll(ctx context.Context) ([]*simpleinventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY id DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, s.handlePostgresError("list", "", err)
	}
	defer rows.Close()

	items := make([]*simpleinventory.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, s.handlePostgresError("list", "", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.handlePostgresError("list", "", err)
	}
	return items, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch simpleinventory.FieldPatch) (*simpleinventory.Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE items SET
			name = COALESCE($2::text, name),
			description = COALESCE($3::text, description),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + itemColumns

	item, err := scanItem(s.db.QueryRow(ctx, query, id, patch.Name, patch.Description, now()))
	if err != nil {
		return nil, s.handlePostgresError("update fields", id, err)
	}
	return item, nil
}

// UpdatePhotoRef swaps the ref in one statement. The CTE locks the row so
// the returned previous ref is the one actually replaced.
func (s *Store) UpdatePhotoRef(ctx context.Context, id string, ref *string) (*simpleinventory.Item, *string, error) {
	query := `
		WITH prev AS (
			SELECT id, photo_ref FROM items WHERE id = $1 FOR UPDATE
		)
		UPDATE items SET photo_ref = $2, updated_at = $3
		FROM prev
		WHERE items.id = prev.id
		RETURNING items.id, items.name, COALESCE(items.description, ''), items.photo_ref,
			items.created_at, items.updated_at, prev.photo_ref`

	var item simpleinventory.Item
	var previous *string
	err := s.db.QueryRow(ctx, query, id, ref, now()).Scan(
		&item.ID, &item.Name, &item.Description, &item.PhotoRef,
		&item.CreatedAt, &item.UpdatedAt, &previous)
	if err != nil {
		return nil, nil, s.handlePostgresError("update photo ref", id, err)
	}
	normalizeTimes(&item)
	return &item, previous, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*simpleinventory.Item, error) {
	query := `DELETE FROM items WHERE id = $1 RETURNING ` + itemColumns

	item, err := scanItem(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, s.handlePostgresError("delete", id, err)
	}
	return item, nil
}

func scanItem(row pgx.Row) (*simpleinventory.Item, error) {
	var item simpleinventory.Item
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.PhotoRef,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	normalizeTimes(&item)
	return &item, nil
}

func normalizeTimes(item *simpleinventory.Item) {
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
