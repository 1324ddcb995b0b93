// Package manifest defines the photo manifest and upgrades persisted
// manifests across schema versions.
//
// Migrations work on Document, an untyped JSON tree, because older shapes do
// not fit the current Manifest type. Each Step is keyed by the version it
// starts from; the Migrator follows steps until the document reaches the
// target version:
//
//	unknown, v1 ... v5 -> v6   reset to an empty manifest
//	v6 -> v7                   .webp thumbnails become .jpg
//	v7 -> v8                   live/motion photo fields become "video"
//
// A document whose version has no step, or that revisits a transition, has its
// version tag forced to the target and its content left as is. WithStrict turns
// both cases into errors instead.
package manifest
