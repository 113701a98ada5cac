package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

const backendName = "badger"

const keyPrefix = "item/"

// maxConflictRetries bounds retries of a transaction that lost a write race.
const maxConflictRetries = 3

// Options configures the Badger record store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger warnings and errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store implements simpleinventory.RecordStore on BadgerDB. Items are JSON
// values under "item/<id>", so ListAll returns them in ascending id order.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger directory is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, item *simpleinventory.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return s.storageError("insert", item.ID, err)
	}

	err = s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(itemKey(item.ID))
		if err == nil {
			return fmt.Errorf("%w: %s", simpleinventory.ErrDuplicateID, item.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(itemKey(item.ID), data)
	})
	return s.handleError("insert", item.ID, err)
}

func (s *Store) GetByID(ctx context.Context, id string) (*simpleinventory.Item, error) {
	var item *simpleinventory.Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = getItem(txn, id)
		return err
	})
	if err != nil {
		return nil, s.handleError("get", id, err)
	}
	return item, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*simpleinventory.Item, error) {
	items := make([]*simpleinventory.Item, 0)
	prefix := []byte(keyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var item simpleinventory.Item
			if err := json.Unmarshal(val, &item); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, s.storageError("list", "", err)
	}
	return items, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch simpleinventory.FieldPatch) (*simpleinventory.Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	var updated *simpleinventory.Item
	err = s.update(func(txn *badger.Txn) error {
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		patch.Apply(item)
		item.UpdatedAt = now()
		updated = item
		return putItem(txn, item)
	})
	if err != nil {
		return nil, s.handleError("update_fields", id, err)
	}
	return updated, nil
}

func (s *Store) UpdatePhotoRef(ctx context.Context, id string, ref *string) (*simpleinventory.Item, *string, error) {
	var updated *simpleinventory.Item
	var previous *string
	err := s.update(func(txn *badger.Txn) error {
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		previous = item.PhotoRef
		if ref != nil {
			r := *ref
			item.PhotoRef = &r
		} else {
			item.PhotoRef = nil
		}
		item.UpdatedAt = now()
		updated = item
		return putItem(txn, item)
	})
	if err != nil {
		return nil, nil, s.handleError("update_photo_ref", id, err)
	}
	return updated, previous, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*simpleinventory.Item, error) {
	var removed *simpleinventory.Item
	err := s.update(func(txn *badger.Txn) error {
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		removed = item
		return txn.Delete(itemKey(id))
	})
	if err != nil {
		return nil, s.handleError("delete", id, err)
	}
	return removed, nil
}

// update runs fn in a read-write transaction, retrying when another
// transaction committed a conflicting write first.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getItem(txn *badger.Txn, id string) (*simpleinventory.Item, error) {
	entry, err := txn.Get(itemKey(id))
	if err != nil {
		return nil, err
	}
	val, err := entry.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var item simpleinventory.Item
	if err := json.Unmarshal(val, &item); err != nil {
		return nil, fmt.Errorf("decoding item %s: %w", id, err)
	}
	return &item, nil
}

func putItem(txn *badger.Txn, item *simpleinventory.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return txn.Set(itemKey(item.ID), data)
}

func itemKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func (s *Store) handleError(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return simpleinventory.ErrNotFound
	case errors.Is(err, simpleinventory.ErrDuplicateID):
		return err
	}
	return s.storageError(op, id, err)
}

func (s *Store) storageError(op, id string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: id, Op: op, Err: err}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// slogLogger adapts slog to badger.Logger, dropping info and debug noise.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l slogLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (slogLogger) Infof(string, ...interface{})  {}
func (slogLogger) Debugf(string, ...interface{}) {}
