package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/assetkey"
)

const backendName = "fs"

// maxCreateAttempts bounds retries when a generated name already exists on
// disk, e.g. because another process shares the directory.
const maxCreateAttempts = 5

// Backend is a filesystem implementation of the simpleinventory.AssetStore
// interface. Every call goes to disk; nothing about existence is cached.
type Backend struct {
	baseDir string
	keys    assetkey.Generator
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Content directory, created if absent
	// KeyGenerator names new assets. Defaults to assetkey.NewDefaultGenerator().
	KeyGenerator assetkey.Generator
}

// New creates a new filesystem asset store
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	keys := config.KeyGenerator
	if keys == nil {
		keys = assetkey.NewDefaultGenerator()
	}

	return &Backend{baseDir: baseDir, keys: keys}, nil
}

// BaseDir returns the absolute content directory
func (b *Backend) BaseDir() string {
	return b.baseDir
}

// Store writes r to a freshly named file. An existing file is never
// overwritten; a partially written file is removed on failure.
func (b *Backend) Store(ctx context.Context, r io.Reader, extHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		ref := b.keys.NewKey(extHint)
		if !assetkey.Validate(ref) {
			return "", fmt.Errorf("%w: generated asset ref %q is not a safe relative path", simpleinventory.ErrValidation, ref)
		}
		filePath := b.path(ref)

		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return "", b.storageError("store", ref, fmt.Errorf("failed to create directory: %w", err))
		}

		file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", b.storageError("store", ref, fmt.Errorf("failed to create file: %w", err))
		}

		_, copyErr := io.Copy(file, r)
		closeErr := file.Close()
		if copyErr != nil || closeErr != nil {
			os.Remove(filePath)
			b.cleanupEmptyDirectories(filepath.Dir(filePath))
			return "", b.storageError("store", ref, fmt.Errorf("failed to write file: %w", errors.Join(copyErr, closeErr)))
		}

		return ref, nil
	}

	return "", b.storageError("store", "", fmt.Errorf("no free asset name after %d attempts", maxCreateAttempts))
}

// Resolve stats the file and reports its absolute path
func (b *Backend) Resolve(ctx context.Context, ref string) (*simpleinventory.Asset, error) {
	if err := b.validate(ref); err != nil {
		return nil, err
	}
	filePath := b.path(ref)

	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", simpleinventory.ErrAssetNotFound, ref)
	} else if err != nil {
		return nil, b.storageError("resolve", ref, fmt.Errorf("failed to get file info: %w", err))
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", simpleinventory.ErrAssetNotFound, ref)
	}

	return &simpleinventory.Asset{
		Ref:         ref,
		Location:    filePath,
		Size:        info.Size(),
		ContentType: detectContentType(filePath),
		ModTime:     info.ModTime(),
	}, nil
}

// Open opens the file for reading
func (b *Backend) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := b.validate(ref); err != nil {
		return nil, err
	}

	file, err := os.Open(b.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", simpleinventory.ErrAssetNotFound, ref)
	} else if err != nil {
		return nil, b.storageError("open", ref, fmt.Errorf("failed to open file: %w", err))
	}
	return file, nil
}

// Release deletes the file. A missing file is not an error.
func (b *Backend) Release(ctx context.Context, ref string) error {
	if err := b.validate(ref); err != nil {
		return err
	}
	filePath := b.path(ref)

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return b.storageError("release", ref, fmt.Errorf("failed to delete file: %w", err))
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// ListRefs walks the content directory and returns every stored ref, sorted
func (b *Backend) ListRefs(ctx context.Context) ([]string, error) {
	refs := make([]string, 0)
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		refs = append(refs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, b.storageError("list", "", err)
	}
	sort.Strings(refs)
	return refs, nil
}

func (b *Backend) path(ref string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(ref))
}

func (b *Backend) validate(ref string) error {
	if !assetkey.Validate(ref) {
		return fmt.Errorf("%w: invalid asset ref %q", simpleinventory.ErrValidation, ref)
	}
	return nil
}

func (b *Backend) storageError(op, ref string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: ref, Op: op, Err: err}
}

// cleanupEmptyDirectories removes empty shard directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

// detectContentType prefers the extension and falls back to sniffing.
func detectContentType(filePath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filePath)); ct != "" {
		return ct
	}

	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil || n > 0 {
			contentType = http.DetectContentType(buffer[:n])
		}
	}
	return contentType
}
