package simpleinventory

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates caller input violated a precondition
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an item was not found
	ErrNotFound = errors.New("item not found")

	// ErrNoPhoto indicates the item exists but has no photo
	ErrNoPhoto = errors.New("item has no photo")

	// ErrAssetMissing indicates the item references a photo that no longer exists.
	// This is an integrity violation, not an ordinary not-found.
	ErrAssetMissing = errors.New("photo asset missing")

	// ErrAssetNotFound is returned by asset stores when a ref does not resolve
	ErrAssetNotFound = errors.New("asset not found")

	// ErrStorageIO indicates an underlying record or asset store operation failed
	ErrStorageIO = errors.New("storage i/o failure")

	// ErrDuplicateID indicates an insert collided with an existing item id
	ErrDuplicateID = errors.New("duplicate item id")

	// ErrNoFieldsProvided indicates an update carried no applicable fields
	ErrNoFieldsProvided = errors.New("no fields provided")

	// ErrListingUnsupported indicates the asset store cannot enumerate its assets
	ErrListingUnsupported = errors.New("asset store does not support listing")
)

// NewValidationError returns an error wrapping ErrValidation with a message.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ItemError represents an error related to an item operation
type ItemError struct {
	ItemID string
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("item operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("item operation %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// StorageError represents a failure of a record or asset backend. Every
// StorageError matches ErrStorageIO.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorageIO) hold for any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageIO
}
