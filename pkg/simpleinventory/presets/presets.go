// Package presets builds ready-to-use inventory services for common setups.
package presets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/assets/fs"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/records/jsonfile"
)

// NewDevelopment creates a service for local development.
//
// Records are kept in <dir>/items.json and photos under <dir>/photos, so
// data survives restarts. Lifecycle events are logged. The returned cleanup
// function removes the data directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simpleinventory.Service, func(), error) {
	cfg := &devConfig{
		dataDir: "./dev-data",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	records, err := jsonfile.Open(filepath.Join(cfg.dataDir, "items.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}

	assets, err := fs.New(fs.Config{BaseDir: filepath.Join(cfg.dataDir, "photos")})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create photo store: %w", err)
	}

	svc, err := simpleinventory.New(
		simpleinventory.WithRecordStore(records),
		simpleinventory.WithAssetStore(assets),
		simpleinventory.WithLogger(cfg.logger),
		simpleinventory.WithEventSink(simpleinventory.NewLogEventSink(cfg.logger)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.dataDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated service for tests. Records live in memory
// and photos in a per-test temporary directory that is removed automatically.
// Extra service options are applied last.
func NewTesting(t testing.TB, opts ...simpleinventory.Option) simpleinventory.Service {
	t.Helper()

	assets, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test photo store: %v", err)
	}

	options := append([]simpleinventory.Option{
		simpleinventory.WithRecordStore(jsonfile.New()),
		simpleinventory.WithAssetStore(assets),
	}, opts...)

	svc, err := simpleinventory.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

type devConfig struct {
	dataDir string
	logger  *slog.Logger
}

// DevelopmentOption customizes NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDataDir sets the directory holding records and photos
func WithDataDir(dir string) DevelopmentOption {
	return func(c *devConfig) {
		c.dataDir = dir
	}
}

// WithDevLogger sets the logger for the service and its event log
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(c *devConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}
