package admin

import (
	"context"
	"time"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// adminService implements the AdminService interface
type adminService struct {
	service simpleinventory.Service
	now     func() time.Time
}

// Ensure adminService implements AdminService
var _ AdminService = (*adminService)(nil)

func (s *adminService) ListItems(ctx context.Context) (*ListItemsResponse, error) {
	items, err := s.service.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ListItemsResponse{Items: items, Count: len(items)}, nil
}

func (s *adminService) GetItem(ctx context.Context, id string) (*simpleinventory.Item, error) {
	return s.service.Get(ctx, id)
}

func (s *adminService) GetStatistics(ctx context.Context) (*StatisticsResponse, error) {
	items, err := s.service.List(ctx)
	if err != nil {
		return nil, err
	}

	var stats Statistics
	for _, item := range items {
		stats.TotalCount++
		if item.HasPhoto() {
			stats.WithPhoto++
		} else {
			stats.WithoutPhoto++
		}

		created := item.CreatedAt
		if stats.OldestItem == nil || created.Before(*stats.OldestItem) {
			stats.OldestItem = &created
		}
		if stats.NewestItem == nil || created.After(*stats.NewestItem) {
			stats.NewestItem = &created
		}
	}

	return &StatisticsResponse{
		Statistics: stats,
		ComputedAt: s.now().UTC(),
	}, nil
}

func (s *adminService) FindOrphans(ctx context.Context) (*OrphansResponse, error) {
	refs, err := s.service.FindOrphans(ctx)
	if err != nil {
		return nil, err
	}
	return &OrphansResponse{Refs: refs, Count: len(refs)}, nil
}
