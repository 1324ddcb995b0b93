package interfaces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrObjectNotFound is returned when the requested key does not exist in the storage backend.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrReadOnlyProvider is returned by write operations on backends configured without write access.
	ErrReadOnlyProvider = errors.New("storage provider is read-only")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidStorageConfig is returned by provider factories when a required field is missing.
	ErrInvalidStorageConfig = errors.New("invalid storage config")

	// ErrInvalidKey is returned when an object key escapes the provider root or is empty.
	ErrInvalidKey = errors.New("invalid object key")
)

// UnsupportedProviderError is returned when no factory is registered for a provider tag.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported storage provider: %q", e.Provider)
}

// StorageConfig selects and configures a storage backend.
// Provider is the discriminator; the remaining fields are only read by the
// backend that the tag selects.
type StorageConfig struct {
	Provider string `yaml:"provider" json:"provider"`

	// local
	Root string `yaml:"root,omitempty" json:"root,omitempty"`

	// s3
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty" json:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty" json:"secretAccessKey,omitempty"`
	ForcePathStyle  bool   `yaml:"forcePathStyle,omitempty" json:"forcePathStyle,omitempty"`

	// github
	Owner   string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Repo    string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Branch  string `yaml:"branch,omitempty" json:"branch,omitempty"`
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`

	// ipfs, vault
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	MountPath string `yaml:"mountPath,omitempty" json:"mountPath,omitempty"`

	// multi
	Children []StorageConfig `yaml:"children,omitempty" json:"children,omitempty"`
}

// ObjectInfo describes a single stored object as returned by List.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// StorageProvider provides key-addressed access to photo and manifest bytes.
type StorageProvider interface {
	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// ProviderFactory constructs a StorageProvider from its configuration.
type ProviderFactory func(cfg StorageConfig, log *slog.Logger) (StorageProvider, error)
