// Package recordtest holds the behavior every simpleinventory.RecordStore
// must share. Backend packages call Run from their own tests.
package recordtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) simpleinventory.RecordStore

// NewItem builds an item with a fresh time-ordered id.
func NewItem(t *testing.T, name string, photoRef *string) *simpleinventory.Item {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &simpleinventory.Item{
		ID:          id.String(),
		Name:        name,
		Description: "",
		PhotoRef:    photoRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// Run executes the shared record store suite against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("ListAll", func(t *testing.T) { testListAll(t, newStore(t)) })
	t.Run("UpdateFields", func(t *testing.T) { testUpdateFields(t, newStore(t)) })
	t.Run("UpdateFieldsNoFields", func(t *testing.T) { testUpdateFieldsNoFields(t, newStore(t)) })
	t.Run("UpdatePhotoRef", func(t *testing.T) { testUpdatePhotoRef(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, newStore(t)) })
	t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	withPhoto := NewItem(t, "Drill", Ptr("1760000000000000000.jpg"))
	withPhoto.Description = "cordless"
	require.NoError(t, store.Insert(ctx, withPhoto))

	withoutPhoto := NewItem(t, "Hammer", nil)
	require.NoError(t, store.Insert(ctx, withoutPhoto))

	got, err := store.GetByID(ctx, withPhoto.ID)
	require.NoError(t, err)
	assert.Equal(t, withPhoto.ID, got.ID)
	assert.Equal(t, "Drill", got.Name)
	assert.Equal(t, "cordless", got.Description)
	require.NotNil(t, got.PhotoRef)
	assert.Equal(t, "1760000000000000000.jpg", *got.PhotoRef)
	assert.True(t, withPhoto.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", withPhoto.CreatedAt, got.CreatedAt)

	got, err = store.GetByID(ctx, withoutPhoto.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hammer", got.Name)
	assert.Equal(t, "", got.Description)
	assert.Nil(t, got.PhotoRef)
}

func testDuplicateID(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", nil)
	require.NoError(t, store.Insert(ctx, item))

	dup := item.Clone()
	dup.Name = "Other"
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, simpleinventory.ErrDuplicateID)

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", got.Name)
}

func testGetMissing(t *testing.T, store simpleinventory.RecordStore) {
	_, err := store.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)
}

func testListAll(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	var ids []string
	for i := 0; i < 5; i++ {
		item := NewItem(t, fmt.Sprintf("item-%d", i), nil)
		require.NoError(t, store.Insert(ctx, item))
		ids = append(ids, item.ID)
	}

	first, err := store.ListAll(ctx)
	require.NoError(t, err)
	second, err := store.ListAll(ctx)
	require.NoError(t, err)

	require.Len(t, first, len(ids))
	var got []string
	for i := range first {
		got = append(got, first[i].ID)
		assert.Equal(t, first[i].ID, second[i].ID, "order must be stable")
	}
	assert.ElementsMatch(t, ids, got)
}

func testUpdateFields(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", Ptr("a.jpg"))
	item.Description = "old"
	require.NoError(t, store.Insert(ctx, item))

	updated, err := store.UpdateFields(ctx, item.ID, simpleinventory.FieldPatch{Description: Ptr("new")})
	require.NoError(t, err)
	assert.Equal(t, "Drill", updated.Name)
	assert.Equal(t, "new", updated.Description)
	require.NotNil(t, updated.PhotoRef)
	assert.Equal(t, "a.jpg", *updated.PhotoRef)
	assert.False(t, updated.UpdatedAt.Before(item.UpdatedAt))

	updated, err = store.UpdateFields(ctx, item.ID, simpleinventory.FieldPatch{Name: Ptr("Impact Drill"), Description: Ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Impact Drill", updated.Name)
	assert.Equal(t, "new", updated.Description)

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Impact Drill", got.Name)
	assert.Equal(t, "new", got.Description)

	_, err = store.UpdateFields(ctx, uuid.NewString(), simpleinventory.FieldPatch{Name: Ptr("x")})
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)
}

func testUpdateFieldsNoFields(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", nil)
	item.Description = "keep"
	require.NoError(t, store.Insert(ctx, item))

	patches := []simpleinventory.FieldPatch{
		{},
		{Name: Ptr(""), Description: Ptr("")},
		{Name: Ptr("   ")},
	}
	for _, patch := range patches {
		_, err := store.UpdateFields(ctx, item.ID, patch)
		assert.ErrorIs(t, err, simpleinventory.ErrNoFieldsProvided)
	}

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", got.Name)
	assert.Equal(t, "keep", got.Description)
	assert.True(t, item.UpdatedAt.Equal(got.UpdatedAt))
}

func testUpdatePhotoRef(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", nil)
	require.NoError(t, store.Insert(ctx, item))

	updated, previous, err := store.UpdatePhotoRef(ctx, item.ID, Ptr("a.jpg"))
	require.NoError(t, err)
	assert.Nil(t, previous)
	require.NotNil(t, updated.PhotoRef)
	assert.Equal(t, "a.jpg", *updated.PhotoRef)

	updated, previous, err = store.UpdatePhotoRef(ctx, item.ID, Ptr("b.jpg"))
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "a.jpg", *previous)
	assert.Equal(t, "b.jpg", *updated.PhotoRef)
	assert.Equal(t, "Drill", updated.Name)

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PhotoRef)
	assert.Equal(t, "b.jpg", *got.PhotoRef)

	updated, previous, err = store.UpdatePhotoRef(ctx, item.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "b.jpg", *previous)
	assert.Nil(t, updated.PhotoRef)

	_, _, err = store.UpdatePhotoRef(ctx, uuid.NewString(), Ptr("c.jpg"))
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)
}

func testDelete(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", Ptr("a.jpg"))
	require.NoError(t, store.Insert(ctx, item))
	other := NewItem(t, "Saw", nil)
	require.NoError(t, store.Insert(ctx, other))

	removed, err := store.Delete(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, removed.ID)
	require.NotNil(t, removed.PhotoRef)
	assert.Equal(t, "a.jpg", *removed.PhotoRef)

	_, err = store.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)

	_, err = store.Delete(ctx, item.ID)
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, other.ID, items[0].ID)
}

func testReturnsCopies(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	item := NewItem(t, "Drill", Ptr("a.jpg"))
	require.NoError(t, store.Insert(ctx, item))

	// Mutating the inserted value or a fetched value must not leak back.
	item.Name = "mutated"
	*item.PhotoRef = "mutated.jpg"

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", got.Name)
	assert.Equal(t, "a.jpg", *got.PhotoRef)

	got.Name = "mutated again"
	again, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", again.Name)
}

func testConcurrentInserts(t *testing.T, store simpleinventory.RecordStore) {
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		item := NewItem(t, fmt.Sprintf("item-%d", i), nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Insert(ctx, item)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, n)
}
