package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	_ "modernc.org/sqlite"
)

const backendName = "sqlite"

// schema is the items table, one row per item.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT,
    photo_ref   TEXT,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);`

const itemColumns = `id, name, COALESCE(description, ''), photo_ref, created_at, updated_at`

// Store implements simpleinventory.RecordStore on SQLite
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database, configures pragmas and ensures the schema.
// path may be ":memory:".
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: an in-memory database lives per connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	store := NewWithDB(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an already opened database
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the items table if it is missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, item *simpleinventory.Item) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, photo_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		item.ID, item.Name, item.Description, nullString(item.PhotoRef),
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	if err != nil {
		return s.storageError("insert", item.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return s.storageError("insert", item.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", simpleinventory.ErrDuplicateID, item.ID)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*simpleinventory.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, s.handleError("get", id, err)
	}
	return item, nil
}

// ListAll returns items newest first by id
func (s *Store) ListAll(ctx context.Context) ([]*simpleinventory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id DESC`)
	if err != nil {
		return nil, s.storageError("list", "", err)
	}
	defer rows.Close()

	items := make([]*simpleinventory.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, s.storageError("list", "", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageError("list", "", err)
	}
	return items, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch simpleinventory.FieldPatch) (*simpleinventory.Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE items SET
			name = COALESCE(?, name),
			description = COALESCE(?, description),
			updated_at = ?
		WHERE id = ?
		RETURNING `+itemColumns,
		nullString(patch.Name), nullString(patch.Description), formatTime(now()), id)

	item, err := scanItem(row)
	if err != nil {
		return nil, s.handleError("update_fields", id, err)
	}
	return item, nil
}

func (s *Store) UpdatePhotoRef(ctx context.Context, id string, ref *string) (*simpleinventory.Item, *string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, s.storageError("update_photo_ref", id, err)
	}
	defer tx.Rollback()

	var previous sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT photo_ref FROM items WHERE id = ?`, id).Scan(&previous)
	if err != nil {
		return nil, nil, s.handleError("update_photo_ref", id, err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE items SET photo_ref = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+itemColumns,
		nullString(ref), formatTime(now()), id)
	item, err := scanItem(row)
	if err != nil {
		return nil, nil, s.handleError("update_photo_ref", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, s.storageError("update_photo_ref", id, err)
	}
	return item, stringPtr(previous), nil
}

func (s *Store) Delete(ctx context.Context, id string) (*simpleinventory.Item, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM items WHERE id = ? RETURNING `+itemColumns, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, s.handleError("delete", id, err)
	}
	return item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*simpleinventory.Item, error) {
	var item simpleinventory.Item
	var photoRef sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &photoRef, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	item.PhotoRef = stringPtr(photoRef)
	return &item, nil
}

func (s *Store) handleError(op, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return simpleinventory.ErrNotFound
	}
	return s.storageError(op, id, err)
}

func (s *Store) storageError(op, id string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: id, Op: op, Err: err}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
