package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/afilmory/builder/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHubBackend(t *testing.T, token string, handler http.Handler) *GitHubBackend {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGitHubBackend(interfaces.StorageConfig{
		Owner:   "afilmory",
		Repo:    "gallery",
		Prefix:  "photos",
		Token:   token,
		BaseURL: srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGitHubBackend_Get(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/afilmory/gallery/contents/photos/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		w.Write([]byte("jpeg-bytes"))
	})

	backend := newTestGitHubBackend(t, "", mux)

	data, err := backend.Get(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	_, err = backend.Get(context.Background(), "missing.jpg")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestGitHubBackend_List(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/afilmory/gallery/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		json.NewEncoder(w).Encode(map[string]any{
			"sha": "root",
			"tree": []map[string]any{
				{"path": "README.md", "type": "blob", "sha": "r1", "size": 10},
				{"path": "photos", "type": "tree", "sha": "t1"},
				{"path": "photos/b.jpg", "type": "blob", "sha": "b1", "size": 20},
				{"path": "photos/a.jpg", "type": "blob", "sha": "a1", "size": 30},
				{"path": "photosets/c.jpg", "type": "blob", "sha": "c1", "size": 40},
			},
		})
	})

	backend := newTestGitHubBackend(t, "", mux)

	objects, err := backend.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ObjectInfo{
		{Key: "a.jpg", Size: 30, ETag: "a1"},
		{Key: "b.jpg", Size: 20, ETag: "b1"},
	}, objects)
}

func TestGitHubBackend_WritesRequireToken(t *testing.T) {
	backend := newTestGitHubBackend(t, "", http.NotFoundHandler())

	assert.ErrorIs(t, backend.Put(context.Background(), "a.jpg", []byte("x"), ""), interfaces.ErrReadOnlyProvider)
	assert.ErrorIs(t, backend.Delete(context.Background(), "a.jpg"), interfaces.ErrReadOnlyProvider)
}

func TestGitHubBackend_PutUpdatesExistingFile(t *testing.T) {
	var body map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/afilmory/gallery/contents/photos/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"sha": "old-sha", "path": "photos/manifest.json", "size": 2})
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	backend := newTestGitHubBackend(t, "ghp_test", mux)

	require.NoError(t, backend.Put(context.Background(), "manifest.json", []byte(`{"version":"v8"}`), "application/json"))
	assert.Equal(t, "old-sha", body["sha"])
	assert.Equal(t, "main", body["branch"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(`{"version":"v8"}`)), body["content"])
}

func TestGitHubBackend_Available(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/afilmory/gallery", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"full_name":"afilmory/gallery"}`))
	})

	assert.True(t, newTestGitHubBackend(t, "", mux).Available(context.Background()))
	assert.False(t, newTestGitHubBackend(t, "", http.NotFoundHandler()).Available(context.Background()))
}
