package storage

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/afilmory/builder/interfaces"
)

// Built-in provider tags.
const (
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderS3     = "s3"
	ProviderGitHub = "github"
	ProviderIPFS   = "ipfs"
	ProviderVault  = "vault"
	ProviderMulti  = "multi"
)

// Registry maps provider tags to factories. Backends are added by
// registering a factory; the registry itself never changes.
//
// Registration is expected during startup only and is not synchronised.
type Registry struct {
	log       *slog.Logger
	factories map[string]interfaces.ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		log:       logger,
		factories: make(map[string]interfaces.ProviderFactory),
	}
}

// NewDefaultRegistry creates a registry with every built-in backend installed.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.RegisterProvider(ProviderLocal, newLocalProviderFromConfig)
	r.RegisterProvider(ProviderMemory, newMemoryProviderFromConfig)
	r.RegisterProvider(ProviderS3, newS3ProviderFromConfig)
	r.RegisterProvider(ProviderGitHub, newGitHubProviderFromConfig)
	r.RegisterProvider(ProviderIPFS, newIPFSProviderFromConfig)
	r.RegisterProvider(ProviderVault, newVaultProviderFromConfig)
	r.RegisterProvider(ProviderMulti, r.newMultiProviderFromConfig)
	return r
}

// RegisterProvider installs factory under name, silently replacing any
// previous registration so tests can swap in doubles.
func (r *Registry) RegisterProvider(name string, factory interfaces.ProviderFactory) {
	r.factories[name] = factory
}

// CreateProvider instantiates the backend selected by cfg.Provider.
// Returns *interfaces.UnsupportedProviderError if the tag is not registered.
func (r *Registry) CreateProvider(cfg interfaces.StorageConfig) (interfaces.StorageProvider, error) {
	factory, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, &interfaces.UnsupportedProviderError{Provider: cfg.Provider}
	}

	r.log.Debug("Creating storage provider", slog.String("provider", cfg.Provider))
	provider, err := factory(cfg, r.log)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	return provider, nil
}

// ListRegisteredProviders returns the installed provider tags in sorted order.
func (r *Registry) ListRegisteredProviders() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newMultiProviderFromConfig builds each child through the same registry and
// skips children that fail to construct.
func (r *Registry) newMultiProviderFromConfig(cfg interfaces.StorageConfig, log *slog.Logger) (interfaces.StorageProvider, error) {
	providers := make([]interfaces.StorageProvider, 0, len(cfg.Children))
	for _, child := range cfg.Children {
		provider, err := r.CreateProvider(child)
		if err != nil {
			log.Warn("Failed to create storage provider",
				"err", err,
				slog.String("provider", child.Provider))
			continue
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no valid child providers", interfaces.ErrInvalidStorageConfig)
	}

	return NewMultiProvider(providers, log), nil
}

// ParseLocationURI converts a location URI into a StorageConfig.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///absolute/path or file://./relative/path - local directory
//   - memory:// - in-process map
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=host&path_style=true
//   - github://[TOKEN@]owner/repo/prefix?branch=main
//   - ipfs://host:port/mfs/root
//   - vault://[TOKEN@]host:port/mount/prefix?tls=false
func ParseLocationURI(locationURI string) (interfaces.StorageConfig, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return interfaces.StorageConfig{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return parseFileURI(u)
	case "memory":
		return interfaces.StorageConfig{Provider: ProviderMemory}, nil
	case "s3":
		return parseS3URI(u)
	case "github":
		return parseGitHubURI(u)
	case "ipfs":
		return parseIPFSURI(u)
	case "vault":
		return parseVaultURI(u)
	default:
		return interfaces.StorageConfig{}, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

func parseFileURI(u *url.URL) (interfaces.StorageConfig, error) {
	// Get the path, handling relative vs absolute paths
	path := u.Path
	if u.Host != "" {
		// Handle Windows-style paths like file://C:/path
		if len(u.Host) == 2 && u.Host[1] == ':' {
			path = u.Host + path
		} else {
			path = u.Host + "/" + strings.TrimPrefix(path, "/")
		}
	}

	if path == "" {
		return interfaces.StorageConfig{}, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return interfaces.StorageConfig{Provider: ProviderLocal, Root: path}, nil
}

func parseS3URI(u *url.URL) (interfaces.StorageConfig, error) {
	if u.Host == "" {
		return interfaces.StorageConfig{}, fmt.Errorf("%w: missing bucket in s3 URI", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	cfg := interfaces.StorageConfig{
		Provider:       ProviderS3,
		Bucket:         u.Host,
		Prefix:         strings.TrimPrefix(u.Path, "/"),
		Region:         query.Get("region"),
		Endpoint:       query.Get("endpoint"),
		ForcePathStyle: queryBool(query, "path_style"),
	}

	// Extract credentials from URI (less secure than the environment chain)
	if u.User != nil {
		cfg.AccessKeyID = u.User.Username()
		cfg.SecretAccessKey, _ = u.User.Password()
	}

	return cfg, nil
}

func parseGitHubURI(u *url.URL) (interfaces.StorageConfig, error) {
	parts := strings.SplitN(strings.Trim(u.Host+u.Path, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return interfaces.StorageConfig{}, fmt.Errorf("%w: expected github://owner/repo[/prefix]", interfaces.ErrInvalidLocationURI)
	}

	cfg := interfaces.StorageConfig{
		Provider: ProviderGitHub,
		Owner:    parts[0],
		Repo:     parts[1],
		Branch:   u.Query().Get("branch"),
		BaseURL:  u.Query().Get("api"),
	}
	if len(parts) == 3 {
		cfg.Prefix = parts[2]
	}
	if u.User != nil {
		cfg.Token = u.User.Username()
	}

	return cfg, nil
}

func parseIPFSURI(u *url.URL) (interfaces.StorageConfig, error) {
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	return interfaces.StorageConfig{
		Provider:  ProviderIPFS,
		Address:   host + ":" + port,
		MountPath: u.Path,
	}, nil
}

func parseVaultURI(u *url.URL) (interfaces.StorageConfig, error) {
	if u.Host == "" {
		return interfaces.StorageConfig{}, fmt.Errorf("%w: missing host in vault URI", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if q := u.Query().Get("tls"); q == "false" || q == "0" {
		scheme = "http"
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	cfg := interfaces.StorageConfig{
		Provider:  ProviderVault,
		Address:   scheme + "://" + u.Host,
		MountPath: parts[0],
	}
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	if u.User != nil {
		cfg.Token = u.User.Username()
	}

	return cfg, nil
}

func queryBool(q url.Values, name string) bool {
	value := q.Get(name)
	return value == "true" || value == "1" || value == "yes"
}
