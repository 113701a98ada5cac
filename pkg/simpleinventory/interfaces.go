package simpleinventory

import (
	"context"
	"io"
)

// AssetStore defines the interface for photo storage backends
type AssetStore interface {
	// Store persists a new blob under a freshly generated unique name and
	// returns its ref. extHint (e.g. ".png") only influences the name.
	Store(ctx context.Context, r io.Reader, extHint string) (string, error)

	// Resolve checks that the blob exists and describes it. Returns
	// ErrAssetNotFound when it does not.
	Resolve(ctx context.Context, ref string) (*Asset, error)

	// Open returns a reader over the blob. Returns ErrAssetNotFound when it
	// does not exist.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Release deletes the blob. Releasing an absent blob is not an error.
	Release(ctx context.Context, ref string) error
}

// AssetLister is implemented by asset stores that can enumerate their refs.
type AssetLister interface {
	ListRefs(ctx context.Context) ([]string, error)
}

// RecordStore defines the interface for item persistence
type RecordStore interface {
	// Insert appends a new record. Returns ErrDuplicateID if the id exists.
	Insert(ctx context.Context, item *Item) error

	// GetByID returns a copy of the item or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Item, error)

	// ListAll returns every item in a backend-defined but stable order.
	ListAll(ctx context.Context) ([]*Item, error)

	// UpdateFields applies the non-blank fields of patch. Returns
	// ErrNoFieldsProvided without touching storage when patch is empty.
	UpdateFields(ctx context.Context, id string, patch FieldPatch) (*Item, error)

	// UpdatePhotoRef swaps the photo ref and returns the updated item along
	// with the previous ref.
	UpdatePhotoRef(ctx context.Context, id string, ref *string) (*Item, *string, error)

	// Delete removes the record and returns it.
	Delete(ctx context.Context, id string) (*Item, error)
}

// EventSink defines the interface for item lifecycle notifications.
// Events fire only after the corresponding mutation has been committed.
type EventSink interface {
	// ItemRegistered is fired when an item is created
	ItemRegistered(ctx context.Context, item *Item) error

	// ItemUpdated is fired when an item's fields change
	ItemUpdated(ctx context.Context, item *Item) error

	// PhotoReplaced is fired after the photo ref swap has been committed
	PhotoReplaced(ctx context.Context, item *Item, previousRef *string) error

	// ItemDeleted is fired when an item is removed
	ItemDeleted(ctx context.Context, item *Item) error
}
