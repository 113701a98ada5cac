package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/records/recordtest"
)

func TestStore_Memory(t *testing.T) {
	recordtest.Run(t, func(t *testing.T) simpleinventory.RecordStore {
		return New()
	})
}

func TestStore_File(t *testing.T) {
	recordtest.Run(t, func(t *testing.T) simpleinventory.RecordStore {
		store, err := Open(filepath.Join(t.TempDir(), "data", "items.json"))
		require.NoError(t, err)
		return store
	})
}

func TestStore_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := New()

	var ids []string
	for _, name := range []string{"c", "a", "b"} {
		item := recordtest.NewItem(t, name, nil)
		require.NoError(t, store.Insert(ctx, item))
		ids = append(ids, item.ID)
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i := range ids {
		assert.Equal(t, ids[i], items[i].ID)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "items.json")

	store, err := Open(path)
	require.NoError(t, err)

	drill := recordtest.NewItem(t, "Drill", recordtest.Ptr("a.jpg"))
	saw := recordtest.NewItem(t, "Saw", nil)
	require.NoError(t, store.Insert(ctx, drill))
	require.NoError(t, store.Insert(ctx, saw))
	_, err = store.UpdateFields(ctx, saw.ID, simpleinventory.FieldPatch{Description: recordtest.Ptr("hand saw")})
	require.NoError(t, err)

	// The file is a plain JSON array of items.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, drill.ID, raw[0]["id"])
	assert.Equal(t, "a.jpg", raw[0]["photo_ref"])

	reopened, err := Open(path)
	require.NoError(t, err)
	items, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, drill.ID, items[0].ID)
	assert.Equal(t, "hand saw", items[1].Description)
	assert.Nil(t, items[1].PhotoRef)

	_, err = reopened.Delete(ctx, drill.ID)
	require.NoError(t, err)

	reopened, err = Open(path)
	require.NoError(t, err)
	items, err = reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, saw.ID, items[0].ID)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	store, err := Open(path)
	require.NoError(t, err)
	items, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_WriteFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "records")
	store, err := Open(filepath.Join(dir, "items.json"))
	require.NoError(t, err)

	item := recordtest.NewItem(t, "Drill", recordtest.Ptr("a.jpg"))
	require.NoError(t, store.Insert(ctx, item))

	require.NoError(t, os.RemoveAll(dir))

	_, _, err = store.UpdatePhotoRef(ctx, item.ID, recordtest.Ptr("b.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, simpleinventory.ErrStorageIO)

	got, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", *got.PhotoRef)

	err = store.Insert(ctx, recordtest.NewItem(t, "Saw", nil))
	assert.ErrorIs(t, err, simpleinventory.ErrStorageIO)

	_, err = store.Delete(ctx, item.ID)
	assert.ErrorIs(t, err, simpleinventory.ErrStorageIO)

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
