package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "afilmory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
storage:
  provider: multi
  children:
    - provider: s3
      bucket: photos
      region: eu-central-1
      accessKeyId: ${S3_KEY}
      secretAccessKey: ${S3_SECRET}
    - provider: github
      owner: afilmory
      repo: gallery
      token: ${GH_TOKEN}
manifest:
  key: manifests/photos.json
build:
  concurrency: 4
  baseUrl: https://cdn.example.com/$literal
server:
  cacheSize: 16
  drainDuration: 10s
`)

	env := map[string]string{"S3_KEY": "AKIA", "S3_SECRET": "s3cr3t", "GH_TOKEN": "ghp_x"}
	cfg, err := Load(path, WithEnvLookup(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}))
	require.NoError(t, err)

	assert.Equal(t, "multi", cfg.Storage.Provider)
	require.Len(t, cfg.Storage.Children, 2)
	assert.Equal(t, "AKIA", cfg.Storage.Children[0].AccessKeyID)
	assert.Equal(t, "s3cr3t", cfg.Storage.Children[0].SecretAccessKey)
	assert.Equal(t, "ghp_x", cfg.Storage.Children[1].Token)

	assert.Equal(t, "manifests/photos.json", cfg.Manifest.Key)
	assert.Equal(t, 4, cfg.Build.Concurrency)
	assert.Equal(t, "https://cdn.example.com/$literal", cfg.Build.BaseURL)
	assert.Equal(t, 16, cfg.Server.CacheSize)
	assert.Equal(t, 10*time.Second, cfg.Server.DrainDuration)

	// Unset sections keep their defaults
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr)
	assert.Equal(t, "thumbnails", cfg.Build.ThumbnailDir)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(writeConfig(t, "  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "storage: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "build:\n  concurrency: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "storage:\n  provider: \"\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExpandEnvValue(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "HOME" {
			return "/home/photo", true
		}
		return "", false
	}

	assert.Equal(t, "/home/photo/pictures", expandEnvValue(lookup, "${HOME}/pictures"))
	assert.Equal(t, "/pictures", expandEnvValue(lookup, "${UNSET}/pictures"))
	assert.Equal(t, "$HOME", expandEnvValue(lookup, "$HOME"))
}
