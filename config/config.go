// Package config loads the builder configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/afilmory/builder/interfaces"
	"gopkg.in/yaml.v3"
)

const DefaultManifestKey = "photos-manifest.json"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Storage  interfaces.StorageConfig `yaml:"storage"`
	Manifest ManifestConfig           `yaml:"manifest"`
	Build    BuildConfig              `yaml:"build"`
	Server   ServerConfig             `yaml:"server"`
}

type ManifestConfig struct {
	// Key of the manifest within the storage provider
	Key string `yaml:"key"`
	// Path writes the manifest to the local file system instead
	Path   string `yaml:"path,omitempty"`
	Strict bool   `yaml:"strict,omitempty"`
}

type BuildConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Prefix      string `yaml:"prefix,omitempty"`
	Force       bool   `yaml:"force,omitempty"`
	// BaseURL is prepended to object keys to form public URLs
	BaseURL      string `yaml:"baseUrl,omitempty"`
	ThumbnailDir string `yaml:"thumbnailDir,omitempty"`
}

type ServerConfig struct {
	ListenAddr    string        `yaml:"listenAddr"`
	MetricsAddr   string        `yaml:"metricsAddr"`
	CacheSize     int           `yaml:"cacheSize"`
	EnablePprof   bool          `yaml:"pprof,omitempty"`
	DrainDuration time.Duration `yaml:"drainDuration"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		Storage: interfaces.StorageConfig{Provider: "local", Root: "./photos"},
		Manifest: ManifestConfig{
			Key: DefaultManifestKey,
		},
		Build: BuildConfig{
			Concurrency:  8,
			ThumbnailDir: "thumbnails",
		},
		Server: ServerConfig{
			ListenAddr:    "127.0.0.1:8080",
			MetricsAddr:   "127.0.0.1:8090",
			CacheSize:     64,
			DrainDuration: 45 * time.Second,
		},
	}
}

// EnvLookup resolves ${NAME} references in string values.
type EnvLookup func(string) (string, bool)

type loadOptions struct {
	envLookup EnvLookup
	readFile  func(string) ([]byte, error)
}

type Option func(*loadOptions)

func WithEnvLookup(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// Load reads the YAML file at path over Default. An empty path returns the defaults.
func Load(path string, opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := options.readFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Storage = expandStorageEnv(options.envLookup, cfg.Storage)
	cfg.Manifest.Key = expandEnvValue(options.envLookup, cfg.Manifest.Key)
	cfg.Manifest.Path = expandEnvValue(options.envLookup, cfg.Manifest.Path)
	cfg.Build.Prefix = expandEnvValue(options.envLookup, cfg.Build.Prefix)
	cfg.Build.BaseURL = expandEnvValue(options.envLookup, cfg.Build.BaseURL)
	cfg.Server.ListenAddr = expandEnvValue(options.envLookup, cfg.Server.ListenAddr)
	cfg.Server.MetricsAddr = expandEnvValue(options.envLookup, cfg.Server.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that have no usable zero value.
func (c Config) Validate() error {
	if c.Storage.Provider == "" {
		return fmt.Errorf("%w: storage.provider is required", ErrInvalidConfig)
	}
	if c.Manifest.Key == "" && c.Manifest.Path == "" {
		return fmt.Errorf("%w: manifest.key or manifest.path is required", ErrInvalidConfig)
	}
	if c.Build.Concurrency < 1 {
		return fmt.Errorf("%w: build.concurrency must be positive", ErrInvalidConfig)
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("%w: server.cacheSize must not be negative", ErrInvalidConfig)
	}
	return nil
}

func expandStorageEnv(lookup EnvLookup, s interfaces.StorageConfig) interfaces.StorageConfig {
	s.Provider = expandEnvValue(lookup, s.Provider)
	s.Root = expandEnvValue(lookup, s.Root)
	s.Bucket = expandEnvValue(lookup, s.Bucket)
	s.Prefix = expandEnvValue(lookup, s.Prefix)
	s.Region = expandEnvValue(lookup, s.Region)
	s.Endpoint = expandEnvValue(lookup, s.Endpoint)
	s.AccessKeyID = expandEnvValue(lookup, s.AccessKeyID)
	s.SecretAccessKey = expandEnvValue(lookup, s.SecretAccessKey)
	s.Owner = expandEnvValue(lookup, s.Owner)
	s.Repo = expandEnvValue(lookup, s.Repo)
	s.Branch = expandEnvValue(lookup, s.Branch)
	s.Token = expandEnvValue(lookup, s.Token)
	s.BaseURL = expandEnvValue(lookup, s.BaseURL)
	s.Address = expandEnvValue(lookup, s.Address)
	s.MountPath = expandEnvValue(lookup, s.MountPath)

	if len(s.Children) > 0 {
		children := make([]interfaces.StorageConfig, 0, len(s.Children))
		for _, child := range s.Children {
			children = append(children, expandStorageEnv(lookup, child))
		}
		s.Children = children
	}
	return s
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvValue replaces ${NAME} with the variable's value. Unset variables
// expand to the empty string. A bare $ is left alone.
func expandEnvValue(lookup EnvLookup, value string) string {
	if lookup == nil || !strings.Contains(value, "${") {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(ref string) string {
		name := envPattern.FindStringSubmatch(ref)[1]
		v, _ := lookup(name)
		return v
	})
}
