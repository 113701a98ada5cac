package presets

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

func TestNewDevelopment(t *testing.T) {
	t.Run("data survives a restart", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "dev-data")
		ctx := context.Background()

		svc, cleanup, err := NewDevelopment(WithDataDir(dir))
		require.NoError(t, err)

		item, err := svc.Register(ctx, simpleinventory.RegisterRequest{
			Name:     "Drill",
			Photo:    strings.NewReader("A"),
			PhotoExt: ".jpg",
		})
		require.NoError(t, err)

		restarted, _, err := NewDevelopment(WithDataDir(dir))
		require.NoError(t, err)

		got, err := restarted.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "Drill", got.Name)

		_, rc, err := restarted.OpenPhoto(ctx, item.ID)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "A", string(data))

		cleanup()
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err), "data directory should be removed after cleanup")
	})

	t.Run("events are logged", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		svc, cleanup, err := NewDevelopment(
			WithDataDir(filepath.Join(t.TempDir(), "dev-data")),
			WithDevLogger(logger),
		)
		require.NoError(t, err)
		defer cleanup()

		_, err = svc.Register(context.Background(), simpleinventory.RegisterRequest{Name: "Saw"})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Saw")
	})
}

func TestNewTesting(t *testing.T) {
	svc := NewTesting(t)
	ctx := context.Background()

	item, err := svc.Register(ctx, simpleinventory.RegisterRequest{Name: "Hammer", Photo: strings.NewReader("B")})
	require.NoError(t, err)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	orphans, err := svc.FindOrphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	_, err = svc.Delete(ctx, item.ID)
	require.NoError(t, err)
}

func TestNewTesting_IsIsolated(t *testing.T) {
	a := NewTesting(t)
	b := NewTesting(t)
	ctx := context.Background()

	_, err := a.Register(ctx, simpleinventory.RegisterRequest{Name: "Only in a"})
	require.NoError(t, err)

	items, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNewTesting_ExtraOptions(t *testing.T) {
	svc := NewTesting(t, simpleinventory.WithIDGenerator(func() (string, error) {
		return "fixed-id", nil
	}))

	item, err := svc.Register(context.Background(), simpleinventory.RegisterRequest{Name: "Drill"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", item.ID)
}
