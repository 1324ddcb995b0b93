package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/afilmory/builder/interfaces"
	"github.com/hashicorp/vault/api"
)

// VaultBackend implements a storage provider using the HashiCorp Vault KV v2 engine.
// Each object is one secret holding base64 content, so binary data survives the JSON API.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend with token authentication.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "afilmory")
//   - token: Vault token; empty uses VAULT_TOKEN from the environment
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

func newVaultProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	if cfg.Address == "" || cfg.MountPath == "" {
		return nil, fmt.Errorf("%w: vault provider requires address and mountPath", interfaces.ErrInvalidStorageConfig)
	}
	return NewVaultBackend(cfg.Address, cfg.MountPath, cfg.Prefix, cfg.Token, log)
}

// Get reads the secret stored under key and decodes its content.
func (b *VaultBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	secretPath, err := b.secretPath("data", key)
	if err != nil {
		return nil, err
	}

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrObjectNotFound
	}

	// KV v2 nests the payload under "data"; deleted versions have nil data
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Fetched content from Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(decoded)),
		slog.Duration("duration", time.Since(start)))

	return decoded, nil
}

// List walks the KV metadata tree below the data path.
func (b *VaultBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	var objects []interfaces.ObjectInfo
	if err := b.walk(ctx, "", prefix, &objects); err != nil {
		return nil, err
	}
	sortObjects(objects)
	return objects, nil
}

func (b *VaultBackend) walk(ctx context.Context, dir, prefix string, out *[]interfaces.ObjectInfo) error {
	listPath := path.Join(b.mountPath, "metadata", b.dataPath, dir)

	secret, err := b.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}

	keys, _ := secret.Data["keys"].([]interface{})
	for _, raw := range keys {
		name, ok := raw.(string)
		if !ok {
			continue
		}
		if strings.HasSuffix(name, "/") {
			sub := path.Join(dir, strings.TrimSuffix(name, "/"))
			if strings.HasPrefix(sub+"/", prefix) || strings.HasPrefix(prefix, sub+"/") {
				if err := b.walk(ctx, sub, prefix, out); err != nil {
					return err
				}
			}
			continue
		}

		key := path.Join(dir, name)
		if strings.HasPrefix(key, prefix) {
			*out = append(*out, interfaces.ObjectInfo{Key: key})
		}
	}
	return nil
}

// Put writes data as a new secret version.
func (b *VaultBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	secretPath, err := b.secretPath("data", key)
	if err != nil {
		return err
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content":      base64.StdEncoding.EncodeToString(data),
			"content_type": contentType,
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return nil
}

// Delete removes every version of the secret stored under key.
func (b *VaultBackend) Delete(ctx context.Context, key string) error {
	metadataPath, err := b.secretPath("metadata", key)
	if err != nil {
		return err
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, metadataPath); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(kind, key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(b.mountPath, kind, b.dataPath, cleaned), nil
}
