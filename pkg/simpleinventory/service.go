package simpleinventory

import (
	"context"
	"io"
)

// Service defines the main interface for the simple-inventory library
type Service interface {
	// Item operations
	Register(ctx context.Context, req RegisterRequest) (*Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	UpdateFields(ctx context.Context, id string, patch FieldPatch) (*Item, error)
	Delete(ctx context.Context, id string) (*Item, error)
	Search(ctx context.Context, req SearchRequest) (*ItemSummary, error)

	// Photo operations
	ReplacePhoto(ctx context.Context, id string, photo io.Reader, ext string) (*Item, error)
	OpenPhoto(ctx context.Context, id string) (*Asset, io.ReadCloser, error)

	// FindOrphans lists stored assets that no item references. It never
	// deletes anything.
	FindOrphans(ctx context.Context) ([]string, error)
}
