// Package storage provides the photo storage providers and the registry that
// selects between them.
//
// Every backend implements interfaces.StorageProvider and addresses objects by
// slash separated keys relative to its root:
//
//   - Local directory, written atomically through temporary files
//   - In-process memory, used by tests and dry runs
//   - S3-compatible object storage
//   - GitHub repository contents (read-only without a token)
//   - IPFS mutable file system
//   - HashiCorp Vault KV v2
//   - Multi-provider with read fallback across children
//
// # Provider Registry
//
// A Registry maps provider tags to factories. NewDefaultRegistry installs all
// built-in backends; further backends are added with RegisterProvider without
// touching the registry code:
//
//	registry := storage.NewDefaultRegistry(logger)
//	registry.RegisterProvider("custom", newCustomProvider)
//
//	provider, err := registry.CreateProvider(interfaces.StorageConfig{Provider: "s3", Bucket: "photos"})
//	var unsupported *interfaces.UnsupportedProviderError
//	if errors.As(err, &unsupported) {
//	    log.Fatalf("no backend for %q", unsupported.Provider)
//	}
//
// # Location URIs
//
// Providers may also be described with a single URI, converted by
// ParseLocationURI:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
//   - file:///var/lib/photos
//   - memory://
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=host&path_style=true
//   - github://[TOKEN@]owner/repo/prefix?branch=main
//   - ipfs://ipfs.example.com:5001/afilmory
//   - vault://[TOKEN@]vault.example.com:8200/secret/afilmory
//
// Keys containing ".." segments are rejected with interfaces.ErrInvalidKey.
package storage
