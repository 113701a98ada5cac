package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/admin"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/config"
)

type fixture struct {
	databaseURL string
	storageURL  string
	photoDir    string
	withPhoto   *simpleinventory.Item
	withoutOne  *simpleinventory.Item
}

// seed writes two items into a jsonfile record store and a filesystem
// photo store, the same way the server would.
func seed(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		databaseURL: "file://" + filepath.Join(dir, "items.json"),
		storageURL:  "file://" + filepath.Join(dir, "photos"),
		photoDir:    filepath.Join(dir, "photos"),
	}

	cfg, err := config.Load(
		config.WithDatabaseURL(f.databaseURL),
		config.WithStorageURL(f.storageURL),
		config.WithEventLogging(false),
	)
	require.NoError(t, err)
	svc, err := cfg.BuildService()
	require.NoError(t, err)
	defer cfg.Close()

	ctx := context.Background()
	f.withPhoto, err = svc.Register(ctx, simpleinventory.RegisterRequest{
		Name:     "Drill",
		Photo:    strings.NewReader("A"),
		PhotoExt: ".jpg",
	})
	require.NoError(t, err)
	f.withoutOne, err = svc.Register(ctx, simpleinventory.RegisterRequest{Name: "Saw", Description: "hand saw"})
	require.NoError(t, err)

	return f
}

func execute(t *testing.T, f fixture, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_URL", "")

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--database-url", f.databaseURL, "--storage-url", f.storageURL))

	err := root.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	f := seed(t)

	out, err := execute(t, f, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, f.withPhoto.ID)
	assert.Contains(t, out, *f.withPhoto.PhotoRef)
	assert.Contains(t, out, "Saw")
	assert.Contains(t, out, "Total: 2 item(s)")
}

func TestListCommand_JSON(t *testing.T) {
	f := seed(t)

	out, err := execute(t, f, "list", "--json")
	require.NoError(t, err)

	var resp admin.ListItemsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestGetCommand(t *testing.T) {
	f := seed(t)

	out, err := execute(t, f, "get", f.withoutOne.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Name:        Saw")
	assert.Contains(t, out, "Description: hand saw")
	assert.Contains(t, out, "Photo:       -")

	_, err = execute(t, f, "get", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, simpleinventory.ErrNotFound)

	_, err = execute(t, f, "get")
	assert.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	f := seed(t)

	out, err := execute(t, f, "stats", "--json")
	require.NoError(t, err)

	var resp admin.StatisticsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(2), resp.Statistics.TotalCount)
	assert.Equal(t, int64(1), resp.Statistics.WithPhoto)
	assert.Equal(t, int64(1), resp.Statistics.WithoutPhoto)
}

func TestOrphansCommand(t *testing.T) {
	f := seed(t)

	out, err := execute(t, f, "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "No orphaned photos found.")

	require.NoError(t, os.WriteFile(filepath.Join(f.photoDir, "stray.png"), []byte("x"), 0o644))

	out, err = execute(t, f, "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "stray.png")
	assert.Contains(t, out, "1 orphaned photo(s)")
}

func TestLoadConfig_BadURL(t *testing.T) {
	_, err := execute(t, fixture{databaseURL: "ftp://nowhere", storageURL: "file:///tmp"}, "list")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
