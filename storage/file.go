package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/afilmory/builder/interfaces"
)

// FileBackend implements a storage provider on the local file system.
// Keys map to paths relative to the base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend rooted at baseDir,
// creating the directory if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     filepath.Clean(baseDir),
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

func newLocalProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: local provider requires root", interfaces.ErrInvalidStorageConfig)
	}
	return NewFileBackend(cfg.Root, log)
}

// Get reads the file stored under key.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	filePath, err := b.filePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched object from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// List walks the directory tree below prefix. Temporary files left by
// interrupted writes are skipped.
func (b *FileBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	var objects []interfaces.ObjectInfo

	err := filepath.WalkDir(b.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}

		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, interfaces.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	sortObjects(objects)
	return objects, nil
}

// Put writes data atomically through a temporary file in the target directory.
func (b *FileBackend) Put(ctx context.Context, key string, data []byte, contentType string) (err error) {
	filePath, err := b.filePath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	b.log.Debug("Stored object in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the file stored under key.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	filePath, err := b.filePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// filePath resolves key below the base directory, preventing traversal.
func (b *FileBackend) filePath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(cleaned)), nil
}
