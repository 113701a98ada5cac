package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/assetkey"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New(Config{BaseDir: filepath.Join(t.TempDir(), "photos")})
	require.NoError(t, err)
	return backend
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "photos")
	backend, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(backend.BaseDir()))
}

func TestStoreResolveOpen(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	ref, err := backend.Store(ctx, strings.NewReader("jpeg bytes"), ".JPG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	asset, err := backend.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, asset.Ref)
	assert.Equal(t, filepath.Join(backend.BaseDir(), ref), asset.Location)
	assert.True(t, filepath.IsAbs(asset.Location))
	assert.Equal(t, int64(len("jpeg bytes")), asset.Size)
	assert.Equal(t, "image/jpeg", asset.ContentType)

	rc, err := backend.Open(ctx, ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestStore_SameTickDistinctRefs(t *testing.T) {
	ctx := context.Background()
	frozen := time.Unix(1760000000, 0)
	backend, err := New(Config{
		BaseDir:      t.TempDir(),
		KeyGenerator: assetkey.NewTimestampGeneratorWithClock(func() time.Time { return frozen }),
	})
	require.NoError(t, err)

	first, err := backend.Store(ctx, strings.NewReader("a"), ".png")
	require.NoError(t, err)
	second, err := backend.Store(ctx, strings.NewReader("b"), ".png")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStore_NeverOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken.png"), []byte("original"), 0644))

	names := []string{"taken.png", "free.png"}
	i := 0
	backend, err := New(Config{
		BaseDir: dir,
		KeyGenerator: assetkey.NewCustomFuncGenerator(func(ext string) string {
			name := names[i]
			i++
			return name
		}),
	})
	require.NoError(t, err)

	ref, err := backend.Store(ctx, strings.NewReader("new"), ".png")
	require.NoError(t, err)
	assert.Equal(t, "free.png", ref)

	data, err := os.ReadFile(filepath.Join(dir, "taken.png"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStore_RemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	_, err := backend.Store(ctx, io.MultiReader(bytes.NewReader([]byte("partial")), failingReader{}), ".jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, simpleinventory.ErrStorageIO)

	refs, err := backend.ListRefs(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestStore_UnwritableDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "photos")
	backend, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	// Replace the content directory with a regular file.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0644))

	_, err = backend.Store(ctx, strings.NewReader("data"), ".jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, simpleinventory.ErrStorageIO)

	var storageErr *simpleinventory.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "fs", storageErr.Backend)
	assert.Equal(t, "store", storageErr.Op)
}

func TestResolveMissing(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	_, err := backend.Resolve(ctx, "1760000000000000000.jpg")
	assert.ErrorIs(t, err, simpleinventory.ErrAssetNotFound)

	_, err = backend.Open(ctx, "1760000000000000000.jpg")
	assert.ErrorIs(t, err, simpleinventory.ErrAssetNotFound)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	ref, err := backend.Store(ctx, strings.NewReader("data"), ".jpg")
	require.NoError(t, err)

	require.NoError(t, backend.Release(ctx, ref))
	_, err = backend.Resolve(ctx, ref)
	assert.ErrorIs(t, err, simpleinventory.ErrAssetNotFound)

	// Releasing again is a no-op.
	assert.NoError(t, backend.Release(ctx, ref))
	assert.NoError(t, backend.Release(ctx, "never-existed.jpg"))
}

func TestInvalidRefs(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	for _, ref := range []string{"", "../escape.jpg", "/etc/passwd", "a/../../b"} {
		_, err := backend.Resolve(ctx, ref)
		assert.ErrorIs(t, err, simpleinventory.ErrValidation, ref)

		_, err = backend.Open(ctx, ref)
		assert.ErrorIs(t, err, simpleinventory.ErrValidation, ref)

		assert.ErrorIs(t, backend.Release(ctx, ref), simpleinventory.ErrValidation, ref)
	}
}

func TestShardedLayout(t *testing.T) {
	ctx := context.Background()
	backend, err := New(Config{
		BaseDir:      t.TempDir(),
		KeyGenerator: assetkey.NewShardedGenerator(assetkey.NewTimestampGenerator()),
	})
	require.NoError(t, err)

	ref, err := backend.Store(ctx, strings.NewReader("data"), ".gif")
	require.NoError(t, err)
	assert.Contains(t, ref, "/")

	refs, err := backend.ListRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ref}, refs)

	shardDir := filepath.Join(backend.BaseDir(), filepath.Dir(ref))
	require.NoError(t, backend.Release(ctx, ref))

	// The emptied shard directory is removed, the base directory is kept.
	_, err = os.Stat(shardDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(backend.BaseDir())
	assert.NoError(t, err)
}

func TestListRefs(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	var stored []string
	for i := 0; i < 3; i++ {
		ref, err := backend.Store(ctx, strings.NewReader("data"), ".png")
		require.NoError(t, err)
		stored = append(stored, ref)
	}

	refs, err := backend.ListRefs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, stored, refs)
}
