// Package interfaces defines the storage contract shared by the manifest
// builder, the manifest server and every storage backend, separating
// interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageProvider: key-addressed access (get, list, put, delete) to photo
// and manifest bytes across backends (local disk, memory, S3, a GitHub
// repository, IPFS MFS, Vault KV).
//
// StorageConfig: tagged configuration record. The Provider field selects the
// backend factory; the remaining fields are backend specific.
//
// ProviderFactory: constructor signature installed into a storage registry.
//
// # Errors
//
// Backends translate their native "missing" conditions into ErrObjectNotFound
// and connectivity problems into ErrBackendUnavailable. Lookups of an
// unregistered provider tag fail with *UnsupportedProviderError.
package interfaces
