package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/afilmory/builder/interfaces"
	"github.com/afilmory/builder/metrics"
	"github.com/afilmory/builder/storage"
)

const contentType = "application/json"

// ReadDocument fetches and parses the manifest stored under key.
func ReadDocument(ctx context.Context, provider interfaces.StorageProvider, key string) (Document, error) {
	raw, err := provider.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", key, err)
	}
	return ParseDocument(raw)
}

// Load reads a current-version manifest. Older documents fail with
// ErrVersionMismatch; run MigrateObjectIfNeeded first.
func Load(ctx context.Context, provider interfaces.StorageProvider, key string) (*Manifest, error) {
	doc, err := ReadDocument(ctx, provider, key)
	if err != nil {
		return nil, err
	}
	return Decode(doc)
}

// Save writes m under key.
func Save(ctx context.Context, provider interfaces.StorageProvider, key string, m *Manifest) error {
	raw, err := MarshalManifest(m)
	if err != nil {
		return err
	}
	if err := provider.Put(ctx, key, raw, contentType); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", key, err)
	}
	return nil
}

// MigrateObjectIfNeeded upgrades the manifest stored under key to
// CurrentVersion. A manifest that is already current is not written. The
// returned bool reports whether a new version was written.
func MigrateObjectIfNeeded(ctx context.Context, provider interfaces.StorageProvider, key string, m *Migrator) (bool, error) {
	doc, err := ReadDocument(ctx, provider, key)
	if err != nil {
		m.log.Error("Failed to load manifest for migration",
			slog.String("location", provider.LocationURI()),
			slog.String("key", key),
			"err", err)
		return false, err
	}

	from := doc.Version()
	if from == CurrentVersion {
		m.metrics.RecordMigration(metrics.MigrationCurrent)
		return false, nil
	}

	migrated, err := m.Migrate(doc, CurrentVersion)
	if err != nil {
		m.log.Error("Manifest migration failed",
			slog.String("key", key),
			slog.String("from", from),
			"err", err)
		return false, err
	}

	raw, err := MarshalDocument(migrated)
	if err != nil {
		return false, err
	}
	if err := provider.Put(ctx, key, raw, contentType); err != nil {
		m.log.Error("Failed to write migrated manifest",
			slog.String("location", provider.LocationURI()),
			slog.String("key", key),
			"err", err)
		return false, fmt.Errorf("failed to write manifest %s: %w", key, err)
	}

	m.log.Info("Manifest migration saved",
		slog.String("key", key),
		slog.String("from", from),
		slog.String("to", CurrentVersion))

	return true, nil
}

// MigrateFileIfNeeded is MigrateObjectIfNeeded for a manifest on the local
// file system. The file is replaced atomically.
func MigrateFileIfNeeded(ctx context.Context, path string, m *Migrator) (bool, error) {
	backend, key, err := fileLocation(path, m.log)
	if err != nil {
		return false, err
	}
	return MigrateObjectIfNeeded(ctx, backend, key, m)
}

// LoadFile reads a current-version manifest from path.
func LoadFile(ctx context.Context, path string) (*Manifest, error) {
	backend, key, err := fileLocation(path, nil)
	if err != nil {
		return nil, err
	}
	return Load(ctx, backend, key)
}

// SaveFile writes m to path atomically.
func SaveFile(ctx context.Context, path string, m *Manifest) error {
	backend, key, err := fileLocation(path, nil)
	if err != nil {
		return err
	}
	return Save(ctx, backend, key, m)
}

func fileLocation(path string, log *slog.Logger) (*storage.FileBackend, string, error) {
	if log == nil {
		log = discardLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	backend, err := storage.NewFileBackend(filepath.Dir(abs), log)
	if err != nil {
		return nil, "", err
	}
	return backend, filepath.Base(abs), nil
}
