package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

const backendName = "jsonfile"

// Store implements simpleinventory.RecordStore as an ordered list persisted
// as a single JSON array. Every mutation holds the write lock for the whole
// read-modify-write, and the file is replaced atomically.
type Store struct {
	mu    sync.RWMutex
	path  string
	items []*simpleinventory.Item
	index map[string]int
}

// New creates an in-memory store that is never persisted
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Open loads the store from path, creating an empty one if the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create record directory: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.items); err != nil {
			return nil, fmt.Errorf("failed to decode records file %s: %w", path, err)
		}
	}
	for i, item := range s.items {
		if _, dup := s.index[item.ID]; dup {
			return nil, fmt.Errorf("records file %s: %w: %s", path, simpleinventory.ErrDuplicateID, item.ID)
		}
		s.index[item.ID] = i
	}
	return s, nil
}

// Path returns the backing file, or "" for a memory-only store
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Insert(ctx context.Context, item *simpleinventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[item.ID]; exists {
		return fmt.Errorf("%w: %s", simpleinventory.ErrDuplicateID, item.ID)
	}

	next := append(s.items, item.Clone())
	if err := s.persist(next, "insert", item.ID); err != nil {
		return err
	}
	s.items = next
	s.index[item.ID] = len(next) - 1
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*simpleinventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, simpleinventory.ErrNotFound
	}
	return s.items[i].Clone(), nil
}

// ListAll returns items in insertion order
func (s *Store) ListAll(ctx context.Context) ([]*simpleinventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*simpleinventory.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.Clone())
	}
	return items, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch simpleinventory.FieldPatch) (*simpleinventory.Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	return s.mutate(id, "update_fields", func(item *simpleinventory.Item) {
		patch.Apply(item)
	})
}

func (s *Store) UpdatePhotoRef(ctx context.Context, id string, ref *string) (*simpleinventory.Item, *string, error) {
	var previous *string
	item, err := s.mutate(id, "update_photo_ref", func(item *simpleinventory.Item) {
		previous = item.PhotoRef
		if ref != nil {
			r := *ref
			item.PhotoRef = &r
		} else {
			item.PhotoRef = nil
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return item, previous, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*simpleinventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil, simpleinventory.ErrNotFound
	}

	removed := s.items[i]
	next := make([]*simpleinventory.Item, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	if err := s.persist(next, "delete", id); err != nil {
		return nil, err
	}

	s.items = next
	s.reindex()
	return removed.Clone(), nil
}

// mutate applies fn to a copy of the item and swaps it in only after the
// new list was persisted.
func (s *Store) mutate(id, op string, fn func(*simpleinventory.Item)) (*simpleinventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil, simpleinventory.ErrNotFound
	}

	updated := s.items[i].Clone()
	fn(updated)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	next := make([]*simpleinventory.Item, len(s.items))
	copy(next, s.items)
	next[i] = updated
	if err := s.persist(next, op, id); err != nil {
		return nil, err
	}

	s.items = next
	return updated.Clone(), nil
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.ID] = i
	}
}

// persist writes items to a temp file in the same directory and renames it
// over the target, so readers never see a half-written file.
func (s *Store) persist(items []*simpleinventory.Item, op, id string) error {
	if s.path == "" {
		return nil
	}

	if items == nil {
		items = []*simpleinventory.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return s.storageError(op, id, fmt.Errorf("failed to encode records: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.storageError(op, id, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(tmpName)
		return s.storageError(op, id, fmt.Errorf("failed to write records: %w", err))
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return s.storageError(op, id, fmt.Errorf("failed to replace records file: %w", err))
	}
	return nil
}

func (s *Store) storageError(op, id string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: id, Op: op, Err: err}
}
