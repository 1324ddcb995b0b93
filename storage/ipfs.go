package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/afilmory/builder/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
)

// mfsDirectory is the entry type the files API reports for directories.
const mfsDirectory = 1

// IPFSBackend implements a storage provider on the IPFS mutable file system (MFS).
// Keys are paths below the configured MFS root.
type IPFSBackend struct {
	shell       *shell.Shell
	address     string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the API at address.
func NewIPFSBackend(address, root string, log *slog.Logger) *IPFSBackend {
	root = "/" + strings.Trim(root, "/")

	return &IPFSBackend{
		shell:       shell.NewShell(address),
		address:     address,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", address, root),
	}
}

func newIPFSProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	address := cfg.Address
	if address == "" {
		address = "localhost:5001"
	}
	return NewIPFSBackend(address, cfg.MountPath, log), nil
}

// Get reads the MFS file at key.
func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	mfsPath, err := b.mfsPath(key)
	if err != nil {
		return nil, err
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if isMFSNotFound(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		b.log.Error("Failed to read data from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// List walks the MFS tree below the root.
func (b *IPFSBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	var objects []interfaces.ObjectInfo
	if err := b.walk(ctx, "", prefix, &objects); err != nil {
		return nil, err
	}
	sortObjects(objects)
	return objects, nil
}

func (b *IPFSBackend) walk(ctx context.Context, dir, prefix string, out *[]interfaces.ObjectInfo) error {
	entries, err := b.shell.FilesLs(ctx, path.Join(b.root, dir), shell.FilesLs.Stat(true))
	if err != nil {
		if isMFSNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to list IPFS directory: %w", err)
	}

	for _, entry := range entries {
		key := path.Join(dir, entry.Name)
		if entry.Type == mfsDirectory {
			// Only descend into directories that can still contain matches
			if strings.HasPrefix(key+"/", prefix) || strings.HasPrefix(prefix, key+"/") {
				if err := b.walk(ctx, key, prefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		*out = append(*out, interfaces.ObjectInfo{
			Key:  key,
			Size: int64(entry.Size),
			ETag: entry.Hash,
		})
	}
	return nil
}

// Put writes data to the MFS file at key, creating parent directories.
func (b *IPFSBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	mfsPath, err := b.mfsPath(key)
	if err != nil {
		return err
	}

	err = b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write data to IPFS: %w", err)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the MFS file at key.
func (b *IPFSBackend) Delete(ctx context.Context, key string) error {
	mfsPath, err := b.mfsPath(key)
	if err != nil {
		return err
	}

	if err := b.shell.FilesRm(ctx, mfsPath, true); err != nil && !isMFSNotFound(err) {
		return fmt.Errorf("failed to delete data from IPFS: %w", err)
	}
	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s", b.address)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(b.root, cleaned), nil
}

func isMFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}
