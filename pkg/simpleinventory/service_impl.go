package simpleinventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	records RecordStore
	assets  AssetStore
	events  EventSink
	logger  *slog.Logger
	newID   func() (string, error)
	now     func() time.Time
	locks   *keyedMutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRecordStore sets the record store for the service
func WithRecordStore(records RecordStore) Option {
	return func(s *service) {
		s.records = records
	}
}

// WithAssetStore sets the photo asset store for the service
func WithAssetStore(assets AssetStore) Option {
	return func(s *service) {
		s.assets = assets
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// WithLogger sets the logger used for orphan and integrity reporting
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithIDGenerator overrides how new item ids are assigned
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *service) {
		s.newID = fn
	}
}

// WithClock overrides the time source used for item timestamps
func WithClock(fn func() time.Time) Option {
	return func(s *service) {
		s.now = fn
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		events: NewNoopEventSink(),
		logger: slog.Default(),
		newID:  newUUIDv7,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		locks:  newKeyedMutex(),
	}

	for _, option := range options {
		option(s)
	}

	if s.records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if s.assets == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if s.events == nil {
		s.events = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Item operations

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Item, error) {
	// Validate before touching either store so a rejected request never
	// leaves an asset behind.
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &ItemError{Op: "register", Err: NewValidationError("name is required")}
	}

	id, err := s.newID()
	if err != nil {
		return nil, &ItemError{Op: "register", Err: fmt.Errorf("failed to generate id: %w", err)}
	}

	var photoRef *string
	if req.Photo != nil {
		ref, err := s.assets.Store(ctx, req.Photo, req.PhotoExt)
		if err != nil {
			return nil, &ItemError{ItemID: id, Op: "register", Err: err}
		}
		photoRef = &ref
	}

	now := s.now()
	item := &Item{
		ID:          id,
		Name:        name,
		Description: req.Description,
		PhotoRef:    photoRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.records.Insert(ctx, item); err != nil {
		if photoRef != nil {
			s.logger.WarnContext(ctx, "orphaned photo asset after failed insert",
				"item_id", id, "asset_ref", *photoRef, "error", err)
		}
		return nil, &ItemError{ItemID: id, Op: "register", Err: err}
	}

	s.notify(ctx, "registered", id, s.events.ItemRegistered(ctx, item.Clone()))

	return item, nil
}

func (s *service) Get(ctx context.Context, id string) (*Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ItemError{Op: "get", Err: NewValidationError("id is required")}
	}

	item, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "get", Err: err}
	}
	return item, nil
}

func (s *service) List(ctx context.Context) ([]*Item, error) {
	items, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, &ItemError{Op: "list", Err: err}
	}
	return items, nil
}

func (s *service) UpdateFields(ctx context.Context, id string, patch FieldPatch) (*Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "update_fields", Err: err}
	}

	item, err := s.records.UpdateFields(ctx, id, patch)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "update_fields", Err: err}
	}

	s.notify(ctx, "updated", id, s.events.ItemUpdated(ctx, item.Clone()))

	return item, nil
}

func (s *service) Delete(ctx context.Context, id string) (*Item, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.records.Delete(ctx, id)
	if err != nil {
		// Nothing was removed, so the asset store is left alone.
		return nil, &ItemError{ItemID: id, Op: "delete", Err: err}
	}

	if item.PhotoRef != nil {
		s.release(ctx, id, *item.PhotoRef)
	}

	s.notify(ctx, "deleted", id, s.events.ItemDeleted(ctx, item.Clone()))

	return item, nil
}

func (s *service) Search(ctx context.Context, req SearchRequest) (*ItemSummary, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, &ItemError{Op: "search", Err: NewValidationError("id is required")}
	}

	item, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "search", Err: err}
	}

	summary := &ItemSummary{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
	}
	if req.IncludePhoto {
		hasPhoto := item.HasPhoto()
		summary.HasPhoto = &hasPhoto
	}
	return summary, nil
}

// Photo operations

func (s *service) ReplacePhoto(ctx context.Context, id string, photo io.Reader, ext string) (*Item, error) {
	if photo == nil {
		return nil, &ItemError{ItemID: id, Op: "replace_photo", Err: NewValidationError("photo is required")}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	// Check existence first so an unknown id never stores a blob.
	if _, err := s.records.GetByID(ctx, id); err != nil {
		return nil, &ItemError{ItemID: id, Op: "replace_photo", Err: err}
	}

	ref, err := s.assets.Store(ctx, photo, ext)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "replace_photo", Err: err}
	}

	item, previous, err := s.records.UpdatePhotoRef(ctx, id, &ref)
	if err != nil {
		s.logger.WarnContext(ctx, "orphaned photo asset after failed photo swap",
			"item_id", id, "asset_ref", ref, "error", err)
		return nil, &ItemError{ItemID: id, Op: "replace_photo", Err: err}
	}

	// The swap is committed; the superseded asset can go now.
	if previous != nil && *previous != ref {
		s.release(ctx, id, *previous)
	}

	s.notify(ctx, "photo_replaced", id, s.events.PhotoReplaced(ctx, item.Clone(), previous))

	return item, nil
}

func (s *service) OpenPhoto(ctx context.Context, id string) (*Asset, io.ReadCloser, error) {
	// A concurrent replace may release the ref we just read; re-read the
	// record once before reporting a missing asset.
	const attempts = 2

	var lastRef string
	for attempt := 0; attempt < attempts; attempt++ {
		item, err := s.records.GetByID(ctx, id)
		if err != nil {
			return nil, nil, &ItemError{ItemID: id, Op: "open_photo", Err: err}
		}
		if item.PhotoRef == nil {
			s.logger.InfoContext(ctx, "photo requested for item without photo", "item_id", id)
			return nil, nil, &ItemError{ItemID: id, Op: "open_photo", Err: ErrNoPhoto}
		}

		ref := *item.PhotoRef
		if ref == lastRef {
			break
		}
		lastRef = ref

		asset, rc, err := s.openAsset(ctx, ref)
		if errors.Is(err, ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, &ItemError{ItemID: id, Op: "open_photo", Err: err}
		}
		return asset, rc, nil
	}

	s.logger.ErrorContext(ctx, "item references a missing photo asset",
		"item_id", id, "asset_ref", lastRef)
	return nil, nil, &ItemError{ItemID: id, Op: "open_photo", Err: ErrAssetMissing}
}

func (s *service) openAsset(ctx context.Context, ref string) (*Asset, io.ReadCloser, error) {
	asset, err := s.assets.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.assets.Open(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return asset, rc, nil
}

func (s *service) FindOrphans(ctx context.Context) ([]string, error) {
	lister, ok := s.assets.(AssetLister)
	if !ok {
		return nil, &ItemError{Op: "find_orphans", Err: ErrListingUnsupported}
	}

	// The two listings are not atomic, so a photo stored while the scan runs
	// can show up briefly. Nothing is deleted here.
	refs, err := lister.ListRefs(ctx)
	if err != nil {
		return nil, &ItemError{Op: "find_orphans", Err: err}
	}
	items, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, &ItemError{Op: "find_orphans", Err: err}
	}

	referenced := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.PhotoRef != nil {
			referenced[*item.PhotoRef] = struct{}{}
		}
	}

	orphans := make([]string, 0)
	for _, ref := range refs {
		if _, ok := referenced[ref]; !ok {
			orphans = append(orphans, ref)
		}
	}
	sort.Strings(orphans)

	if len(orphans) > 0 {
		s.logger.WarnContext(ctx, "unreferenced photo assets found", "count", len(orphans))
	}
	return orphans, nil
}

// release deletes a superseded asset after its record change committed. A
// failure leaks the asset but does not fail the caller's operation.
func (s *service) release(ctx context.Context, id, ref string) {
	if err := s.assets.Release(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "failed to release photo asset",
			"item_id", id, "asset_ref", ref, "error", err)
	}
}

func (s *service) notify(ctx context.Context, event, id string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "item_id", id, "error", err)
	}
}
