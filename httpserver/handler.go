package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/afilmory/builder/interfaces"
	"github.com/afilmory/builder/manifest"
	"github.com/afilmory/builder/metrics"
	"github.com/afilmory/builder/motionphoto"
	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
)

// ErrManifestNotLoaded is returned while no manifest has been loaded yet.
var ErrManifestNotLoaded = errors.New("manifest not loaded")

// RequestError carries the HTTP status to answer with.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type HandlerConfig struct {
	Provider    interfaces.StorageProvider
	ManifestKey string
	// Providers lists the registered storage provider tags.
	Providers []string
	// CacheSize is the number of originals kept in memory. Zero disables the cache.
	CacheSize int
	Metrics   *metrics.Recorder
	Log       *slog.Logger
}

// Handler serves the manifest and the photo originals it references.
type Handler struct {
	provider    interfaces.StorageProvider
	manifestKey string
	providers   []string
	manifest    atomic.Pointer[manifest.Manifest]
	cache       *lru.Cache[string, []byte]
	metrics     *metrics.Recorder
	log         *slog.Logger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Provider == nil {
		return nil, errors.New("storage provider is required")
	}

	h := &Handler{
		provider:    cfg.Provider,
		manifestKey: cfg.ManifestKey,
		providers:   cfg.Providers,
		metrics:     cfg.Metrics,
		log:         cfg.Log,
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create object cache: %w", err)
		}
		h.cache = cache
	}
	return h, nil
}

// Reload reads the manifest from storage and swaps it in. Originals cached
// for the previous manifest are dropped.
func (h *Handler) Reload(ctx context.Context) error {
	m, err := manifest.Load(ctx, h.provider, h.manifestKey)
	if err != nil {
		h.log.Error("Failed to load manifest",
			slog.String("location", h.provider.LocationURI()),
			slog.String("key", h.manifestKey),
			"err", err)
		return err
	}

	h.manifest.Store(m)
	if h.cache != nil {
		h.cache.Purge()
	}

	h.log.Info("Manifest loaded",
		slog.String("key", h.manifestKey),
		slog.Int("photos", len(m.Data)))
	return nil
}

// HandleManifest returns the current manifest.
//
// URL format: GET /api/manifest
func (h *Handler) HandleManifest(w http.ResponseWriter, r *http.Request) {
	m := h.manifest.Load()
	if m == nil {
		h.writeError(w, &RequestError{http.StatusServiceUnavailable, ErrManifestNotLoaded})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleReload re-reads the manifest from storage.
//
// URL format: POST /api/manifest/reload
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.Reload(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	m := h.manifest.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"version": m.Version,
		"photos":  len(m.Data),
	})
}

// HandlePhoto streams the original image of a photo.
//
// URL format: GET /api/photos/{id}
func (h *Handler) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	item, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.original(r.Context(), item.S3Key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(item.S3Key, "application/octet-stream"))
	if item.Digest != "" {
		w.Header().Set("ETag", `"`+item.Digest+`"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleVideo streams the clip attached to a photo: the MP4 embedded in a
// motion photo, or the sidecar file of a live photo.
//
// URL format: GET /api/photos/{id}/video
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	item, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if item.Video == nil {
		h.writeError(w, &RequestError{http.StatusNotFound, motionphoto.ErrNoEmbeddedVideo})
		return
	}

	var video []byte
	var ctype string

	switch item.Video.Type {
	case manifest.VideoTypeMotionPhoto:
		data, err := h.original(r.Context(), item.S3Key)
		if err != nil {
			h.writeError(w, err)
			return
		}
		video, err = motionphoto.ExtractVideo(data, &motionphoto.Metadata{
			IsMotionPhoto:        true,
			MotionPhotoOffset:    item.Video.Offset,
			MotionPhotoVideoSize: item.Video.Size,
		})
		if err != nil {
			h.log.Warn("Manifest video range does not match original",
				slog.String("id", item.ID),
				slog.String("key", item.S3Key),
				"err", err)
			h.writeError(w, &RequestError{http.StatusConflict, err})
			return
		}
		ctype = "video/mp4"

	case manifest.VideoTypeLivePhoto:
		if item.Video.S3Key == "" {
			h.writeError(w, &RequestError{http.StatusNotFound, motionphoto.ErrNoEmbeddedVideo})
			return
		}
		video, err = h.original(r.Context(), item.Video.S3Key)
		if err != nil {
			h.writeError(w, err)
			return
		}
		ctype = contentType(item.Video.S3Key, "video/quicktime")

	default:
		h.writeError(w, &RequestError{http.StatusNotFound, fmt.Errorf("unknown video type %q", item.Video.Type)})
		return
	}

	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(http.StatusOK)
	w.Write(video)
}

// HandleProviders describes the storage the server reads from.
//
// URL format: GET /api/providers
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"registered": h.providers,
		"active":     h.provider.Name(),
		"location":   h.provider.LocationURI(),
		"available":  h.provider.Available(r.Context()),
	})
}

func (h *Handler) lookup(id string) (*manifest.PhotoManifestItem, error) {
	m := h.manifest.Load()
	if m == nil {
		return nil, &RequestError{http.StatusServiceUnavailable, ErrManifestNotLoaded}
	}
	item, ok := m.Find(id)
	if !ok {
		return nil, &RequestError{http.StatusNotFound, fmt.Errorf("photo %q: %w", id, interfaces.ErrObjectNotFound)}
	}
	return item, nil
}

// original fetches key through the object cache.
func (h *Handler) original(ctx context.Context, key string) ([]byte, error) {
	if h.cache != nil {
		if data, ok := h.cache.Get(key); ok {
			h.metrics.RecordCacheLookup(true)
			return data, nil
		}
		h.metrics.RecordCacheLookup(false)
	}

	data, err := h.provider.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		h.cache.Add(key, data)
	}
	return data, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.StatusCode
	case errors.Is(err, interfaces.ErrObjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, manifest.ErrVersionMismatch), errors.Is(err, manifest.ErrInvalidManifest):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.Int("status", status), "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var extraContentTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
	".mp":   "video/mp4",
}

func contentType(key, fallback string) string {
	ext := strings.ToLower(path.Ext(key))
	if ctype, ok := extraContentTypes[ext]; ok {
		return ctype
	}
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return ctype
	}
	return fallback
}
