package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/afilmory/builder/interfaces"
	"github.com/afilmory/builder/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyV7 = `{
  "version": "v7",
  "data": [
    {
      "id": "IMG_0001",
      "thumbnailUrl": "/thumbnails/IMG_0001.jpg",
      "isLivePhoto": true,
      "livePhotoVideoUrl": "https://cdn/IMG_0001.mov",
      "livePhotoVideoS3Key": "photos/IMG_0001.mov"
    }
  ],
  "cameras": [],
  "lenses": []
}`

func TestMigrateFileIfNeeded(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "photos-manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyV7), 0644))

	migrated, err := MigrateFileIfNeeded(ctx, path, NewMigrator(nil))
	require.NoError(t, err)
	assert.True(t, migrated)

	m, err := LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, m.Version)
	require.Len(t, m.Data, 1)
	require.NotNil(t, m.Data[0].Video)
	assert.Equal(t, "photos/IMG_0001.mov", m.Data[0].Video.S3Key)

	// No temporary files remain next to the manifest
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMigrateFileIfNeeded_CurrentIsUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "photos-manifest.json")
	original := []byte(`{"version":"v8","data":[],"cameras":[],"lenses":[]}`)
	require.NoError(t, os.WriteFile(path, original, 0644))

	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, past, past))

	migrated, err := MigrateFileIfNeeded(ctx, path, NewMigrator(nil))
	require.NoError(t, err)
	assert.False(t, migrated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))
}

func TestMigrateFileIfNeeded_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := MigrateFileIfNeeded(ctx, filepath.Join(dir, "missing.json"), NewMigrator(nil))
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0644))
	_, err = MigrateFileIfNeeded(ctx, garbage, NewMigrator(nil))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"version":"v1"}`), 0644))
	boom := errors.New("boom")
	failing := NewMigrator(nil, WithSteps(Step{
		From: "v1", To: "v8",
		Exec: func(doc Document, ctx StepContext) (Document, error) { return nil, boom },
	}))
	_, err = MigrateFileIfNeeded(ctx, broken, failing)
	assert.ErrorIs(t, err, boom)

	// The failed migration left the file as it was
	data, err := os.ReadFile(broken)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"v1"}`, string(data))
}

// failingPutProvider rejects every write.
type failingPutProvider struct {
	*storage.MemoryBackend
}

func (p failingPutProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return interfaces.ErrReadOnlyProvider
}

func TestMigrateObjectIfNeeded(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewMemoryBackend()
	require.NoError(t, provider.Put(ctx, "manifest.json", []byte(legacyV7), "application/json"))

	migrated, err := MigrateObjectIfNeeded(ctx, provider, "manifest.json", NewMigrator(nil))
	require.NoError(t, err)
	assert.True(t, migrated)

	doc, err := ReadDocument(ctx, provider, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version())

	// Second run is a no-op
	migrated, err = MigrateObjectIfNeeded(ctx, provider, "manifest.json", NewMigrator(nil))
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestMigrateObjectIfNeeded_WriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, "manifest.json", []byte(legacyV7), "application/json"))

	_, err := MigrateObjectIfNeeded(ctx, failingPutProvider{backend}, "manifest.json", NewMigrator(nil))
	assert.ErrorIs(t, err, interfaces.ErrReadOnlyProvider)
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewMemoryBackend()

	ts := int64(1500000)
	m := NewManifest()
	m.Data = append(m.Data, PhotoManifestItem{
		ID:    "PXL_0001",
		S3Key: "photos/PXL_0001.MP.jpg",
		Tags:  []string{"travel"},
		Video: &VideoSource{Type: VideoTypeMotionPhoto, Offset: 4096, Size: 9000, PresentationTimestampUs: &ts},
	})
	m.Cameras = append(m.Cameras, CameraInfo{Make: "Google", Model: "Pixel 8", DisplayName: "Google Pixel 8"})

	require.NoError(t, Save(ctx, provider, "manifest.json", m))

	raw, err := provider.Get(ctx, "manifest.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"version\": \"v8\"")

	loaded, err := Load(ctx, provider, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestLoad_RejectsOldVersion(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewMemoryBackend()
	require.NoError(t, provider.Put(ctx, "manifest.json", []byte(legacyV7), "application/json"))

	_, err := Load(ctx, provider, "manifest.json")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestEncodeDecode(t *testing.T) {
	m := NewManifest()
	m.Data = append(m.Data, PhotoManifestItem{ID: "a", Width: 4000, Height: 3000, AspectRatio: 4.0 / 3.0})

	doc, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version())
	require.Len(t, doc.Items(), 1)

	decoded, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}
