package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/afilmory/builder/interfaces"
)

type memoryObject struct {
	data         []byte
	lastModified time.Time
	etag         string
}

// MemoryBackend keeps objects in process memory. It is safe for concurrent use.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func newMemoryProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	return NewMemoryBackend(), nil
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	objects := make([]interfaces.ObjectInfo, 0, len(b.objects))
	for key, obj := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, interfaces.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			ETag:         obj.etag,
		})
	}

	sortObjects(objects)
	return objects, nil
}

func (b *MemoryBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = memoryObject{
		data:         append([]byte(nil), data...),
		lastModified: b.now().UTC(),
		etag:         hex.EncodeToString(sum[:]),
	}
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBackend) Name() string {
	return "memory"
}

func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}
