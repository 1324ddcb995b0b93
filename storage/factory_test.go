package storage

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/afilmory/builder/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocationURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected interfaces.StorageConfig
		wantErr  bool
	}{
		{
			name:     "absolute file path",
			uri:      "file:///var/lib/photos",
			expected: interfaces.StorageConfig{Provider: ProviderLocal, Root: "/var/lib/photos"},
		},
		{
			name:     "relative file path",
			uri:      "file://./photos",
			expected: interfaces.StorageConfig{Provider: ProviderLocal, Root: "./photos"},
		},
		{
			name:    "empty file path",
			uri:     "file://",
			wantErr: true,
		},
		{
			name:     "memory",
			uri:      "memory://",
			expected: interfaces.StorageConfig{Provider: ProviderMemory},
		},
		{
			name: "s3 with credentials and options",
			uri:  "s3://AKIA:secret@photos/originals?region=eu-west-1&endpoint=minio:9000&path_style=true",
			expected: interfaces.StorageConfig{
				Provider:        ProviderS3,
				Bucket:          "photos",
				Prefix:          "originals",
				Region:          "eu-west-1",
				Endpoint:        "minio:9000",
				ForcePathStyle:  true,
				AccessKeyID:     "AKIA",
				SecretAccessKey: "secret",
			},
		},
		{
			name:    "s3 without bucket",
			uri:     "s3:///prefix",
			wantErr: true,
		},
		{
			name: "github with token and prefix",
			uri:  "github://ghp_x@afilmory/gallery/photos/2024?branch=assets",
			expected: interfaces.StorageConfig{
				Provider: ProviderGitHub,
				Owner:    "afilmory",
				Repo:     "gallery",
				Prefix:   "photos/2024",
				Branch:   "assets",
				Token:    "ghp_x",
			},
		},
		{
			name:    "github without repo",
			uri:     "github://afilmory",
			wantErr: true,
		},
		{
			name: "ipfs default port",
			uri:  "ipfs://node.local/afilmory",
			expected: interfaces.StorageConfig{
				Provider:  ProviderIPFS,
				Address:   "node.local:5001",
				MountPath: "/afilmory",
			},
		},
		{
			name: "vault without tls",
			uri:  "vault://s.token@vault:8200/secret/afilmory?tls=false",
			expected: interfaces.StorageConfig{
				Provider:  ProviderVault,
				Address:   "http://vault:8200",
				MountPath: "secret",
				Prefix:    "afilmory",
				Token:     "s.token",
			},
		},
		{
			name:    "unsupported scheme",
			uri:     "ftp://example.com/photos",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseLocationURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg)
		})
	}
}

func TestRegistry_CreateProvider(t *testing.T) {
	r := NewDefaultRegistry(nil)

	t.Run("memory", func(t *testing.T) {
		provider, err := r.CreateProvider(interfaces.StorageConfig{Provider: ProviderMemory})
		require.NoError(t, err)
		assert.Equal(t, "memory", provider.Name())
	})

	t.Run("local", func(t *testing.T) {
		root := t.TempDir()
		provider, err := r.CreateProvider(interfaces.StorageConfig{Provider: ProviderLocal, Root: root})
		require.NoError(t, err)
		assert.IsType(t, &FileBackend{}, provider)
	})

	t.Run("local without root", func(t *testing.T) {
		_, err := r.CreateProvider(interfaces.StorageConfig{Provider: ProviderLocal})
		assert.ErrorIs(t, err, interfaces.ErrInvalidStorageConfig)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := r.CreateProvider(interfaces.StorageConfig{Provider: "dropbox"})
		require.Error(t, err)

		var unsupported *interfaces.UnsupportedProviderError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "dropbox", unsupported.Provider)
		assert.Contains(t, err.Error(), "dropbox")
	})

	t.Run("multi skips broken children", func(t *testing.T) {
		provider, err := r.CreateProvider(interfaces.StorageConfig{
			Provider: ProviderMulti,
			Children: []interfaces.StorageConfig{
				{Provider: "dropbox"},
				{Provider: ProviderMemory},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "multi:[memory://]", provider.LocationURI())
	})

	t.Run("multi without valid children", func(t *testing.T) {
		_, err := r.CreateProvider(interfaces.StorageConfig{
			Provider: ProviderMulti,
			Children: []interfaces.StorageConfig{{Provider: "dropbox"}},
		})
		assert.ErrorIs(t, err, interfaces.ErrInvalidStorageConfig)
	})
}

func TestRegistry_RegisterProvider(t *testing.T) {
	r := NewRegistry(nil)
	assert.Empty(t, r.ListRegisteredProviders())

	first := NewMemoryBackend()
	second := NewMemoryBackend()

	r.RegisterProvider("custom", func(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
		return first, nil
	})
	r.RegisterProvider("custom", func(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
		return second, nil
	})

	provider, err := r.CreateProvider(interfaces.StorageConfig{Provider: "custom"})
	require.NoError(t, err)
	assert.Same(t, second, provider)
	assert.Equal(t, []string{"custom"}, r.ListRegisteredProviders())
}

func TestRegistry_FactoryErrorIsWrapped(t *testing.T) {
	factoryErr := errors.New("boom")

	r := NewRegistry(nil)
	r.RegisterProvider("broken", func(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
		return nil, factoryErr
	})

	_, err := r.CreateProvider(interfaces.StorageConfig{Provider: "broken"})
	assert.ErrorIs(t, err, factoryErr)
}

func TestRegistry_ListRegisteredProviders(t *testing.T) {
	r := NewDefaultRegistry(nil)
	assert.Equal(t,
		[]string{ProviderGitHub, ProviderIPFS, ProviderLocal, ProviderMemory, ProviderMulti, ProviderS3, ProviderVault},
		r.ListRegisteredProviders())
}
