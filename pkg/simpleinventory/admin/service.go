package admin

import (
	"context"
	"time"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// AdminService defines read-only operational views over the inventory.
// Unlike the public API it exposes raw photo refs, so it is meant for
// operators only (the admin CLI).
type AdminService interface {
	// ListItems returns every item with its photo ref.
	ListItems(ctx context.Context) (*ListItemsResponse, error)

	// GetItem returns one item with its photo ref.
	GetItem(ctx context.Context, id string) (*simpleinventory.Item, error)

	// GetStatistics returns item counts and the covered time range.
	GetStatistics(ctx context.Context) (*StatisticsResponse, error)

	// FindOrphans reports stored photo assets that no item references.
	// Nothing is deleted.
	FindOrphans(ctx context.Context) (*OrphansResponse, error)
}

// ListItemsResponse contains every item
type ListItemsResponse struct {
	Items []*simpleinventory.Item `json:"items"`
	Count int                     `json:"count"`
}

// Statistics summarizes the inventory
type Statistics struct {
	TotalCount   int64      `json:"total_count"`
	WithPhoto    int64      `json:"with_photo"`
	WithoutPhoto int64      `json:"without_photo"`
	OldestItem   *time.Time `json:"oldest_item,omitempty"`
	NewestItem   *time.Time `json:"newest_item,omitempty"`
}

// StatisticsResponse contains the statistics result
type StatisticsResponse struct {
	Statistics Statistics `json:"statistics"`
	ComputedAt time.Time  `json:"computed_at"`
}

// OrphansResponse lists unreferenced asset refs
type OrphansResponse struct {
	Refs  []string `json:"refs"`
	Count int      `json:"count"`
}

// New creates an AdminService on top of the inventory service
func New(service simpleinventory.Service) AdminService {
	return &adminService{service: service, now: time.Now}
}
