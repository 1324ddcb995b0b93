package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/afilmory/builder/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves the KV v2 endpoints of a single "secret" mount.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]any
	sealed  bool
}

func (v *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	writeJSON := func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}

	switch p := r.URL.Path; {
	case p == "/v1/sys/health":
		writeJSON(http.StatusOK, map[string]any{"initialized": true, "sealed": v.sealed})

	case strings.HasPrefix(p, "/v1/secret/data/"):
		key := strings.TrimPrefix(p, "/v1/secret/data/")
		switch r.Method {
		case http.MethodGet:
			data, ok := v.secrets[key]
			if !ok {
				writeJSON(http.StatusNotFound, map[string]any{"errors": []string{}})
				return
			}
			writeJSON(http.StatusOK, map[string]any{"data": map[string]any{"data": data}})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data map[string]any `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSON(http.StatusBadRequest, map[string]any{"errors": []string{err.Error()}})
				return
			}
			v.secrets[key] = body.Data
			writeJSON(http.StatusOK, map[string]any{"data": map[string]any{"version": 1}})
		}

	case strings.HasPrefix(p, "/v1/secret/metadata/"):
		key := strings.TrimPrefix(p, "/v1/secret/metadata/")
		if r.Method == http.MethodDelete {
			delete(v.secrets, key)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		dir := strings.TrimSuffix(key, "/") + "/"
		children := map[string]struct{}{}
		for stored := range v.secrets {
			rest, ok := strings.CutPrefix(stored, dir)
			if !ok {
				continue
			}
			if i := strings.Index(rest, "/"); i >= 0 {
				rest = rest[:i+1]
			}
			children[rest] = struct{}{}
		}
		if len(children) == 0 {
			writeJSON(http.StatusNotFound, map[string]any{"errors": []string{}})
			return
		}
		keys := make([]string, 0, len(children))
		for name := range children {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		writeJSON(http.StatusOK, map[string]any{"data": map[string]any{"keys": keys}})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestVaultBackend(t *testing.T) (*VaultBackend, *fakeVault) {
	t.Helper()
	t.Setenv("VAULT_TOKEN", "")
	fake := &fakeVault{secrets: map[string]map[string]any{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	r := NewDefaultRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	provider, err := r.CreateProvider(interfaces.StorageConfig{
		Provider:  ProviderVault,
		Address:   srv.URL,
		MountPath: "secret",
		Prefix:    "afilmory",
		Token:     "s.test",
	})
	require.NoError(t, err)
	return provider.(*VaultBackend), fake
}

func TestVaultBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, fake := newTestVaultBackend(t)

	binary := []byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9}
	require.NoError(t, backend.Put(ctx, "2024/IMG_0001.jpg", binary, "image/jpeg"))
	require.NoError(t, backend.Put(ctx, "photos-manifest.json", []byte(`{"version":"v8"}`), "application/json"))

	fake.mu.Lock()
	stored := fake.secrets["afilmory/2024/IMG_0001.jpg"]
	fake.mu.Unlock()
	assert.Equal(t, "image/jpeg", stored["content_type"])

	data, err := backend.Get(ctx, "2024/IMG_0001.jpg")
	require.NoError(t, err)
	assert.Equal(t, binary, data)

	_, err = backend.Get(ctx, "missing.jpg")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	objects, err := backend.List(ctx, "")
	require.NoError(t, err)
	keys := []string{}
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"2024/IMG_0001.jpg", "photos-manifest.json"}, keys)

	objects, err = backend.List(ctx, "2024/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	require.NoError(t, backend.Delete(ctx, "2024/IMG_0001.jpg"))
	_, err = backend.Get(ctx, "2024/IMG_0001.jpg")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	_, err = backend.Get(ctx, "../escape")
	assert.ErrorIs(t, err, interfaces.ErrInvalidKey)
}

func TestVaultBackend_Available(t *testing.T) {
	backend, fake := newTestVaultBackend(t)
	assert.True(t, backend.Available(context.Background()))

	fake.mu.Lock()
	fake.sealed = true
	fake.mu.Unlock()
	assert.False(t, backend.Available(context.Background()))
}

func TestVaultProvider_RequiresAddressAndMount(t *testing.T) {
	r := NewDefaultRegistry(nil)
	_, err := r.CreateProvider(interfaces.StorageConfig{Provider: ProviderVault, Address: "http://vault:8200"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidStorageConfig)
}
