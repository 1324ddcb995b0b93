package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/afilmory/builder/interfaces"
)

// MultiStorageBackend implements interfaces.StorageProvider over several
// providers. Reads fall back in order; writes go to every available provider.
type MultiStorageBackend struct {
	backends []interfaces.StorageProvider
	log      *slog.Logger
}

// NewMultiProvider creates a new multi-storage provider with fallback.
func NewMultiProvider(backends []interfaces.StorageProvider, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Get returns the object from the first available backend that has it.
func (m *MultiStorageBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key))
			continue
		}

		data, err := backend.Get(ctx, key)
		if err == nil {
			m.log.Debug("Fetched object",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrObjectNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("key", key),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs) {
		return nil, interfaces.ErrObjectNotFound
	}

	m.log.Error("All backends failed to fetch object",
		slog.String("key", key),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %w", key, errors.Join(errs...))
}

// List returns the listing of the first available backend.
func (m *MultiStorageBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		objects, err := backend.List(ctx, prefix)
		if err == nil {
			return objects, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}
	return nil, fmt.Errorf("all backends failed to list %q: %w", prefix, errors.Join(append(errs, interfaces.ErrBackendUnavailable)...))
}

// Put saves data to all available backends. It succeeds if at least one backend accepted it.
func (m *MultiStorageBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := backend.Put(ctx, key, data, contentType); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		success = true
	}

	if !success {
		m.log.Error("All backends failed to store data",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("all backends failed to store %s: %w", key, errors.Join(append(errs, interfaces.ErrBackendUnavailable)...))
	}

	return nil
}

// Delete removes key from every available backend.
func (m *MultiStorageBackend) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		if err := backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI of all backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
